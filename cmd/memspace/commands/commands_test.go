package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns its stdout. Flag
// variables are package globals, so every test resets them first.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile, logLevel, spaceFlag = "", "", ""
	dumpRanges, dumpOutput, dumpSlots = nil, "table", false
	writeAddress, writeData, writeForce = "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: ERROR
  output: stderr

node:
  image: badger
  image_path: "` + filepath.ToSlash(filepath.Join(dir, "image")) + `"
  size: 256
  max_reply: 7
  read_only: ["0xF0:0x100"]

cache:
  max_chunk: 16
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestInit_CustomPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memspace.yaml")

	out, err := run(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = run(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")
}

func TestWriteThenDump(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "write", "--config", cfg, "--address", "0x10", "--data", "de ad be ef", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 4 bytes at 0x10")

	out, err = run(t, "dump", "--config", cfg, "--range", "0x0c:0x18", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"address": "0xc"`)
	assert.Contains(t, out, `"data": "00000000deadbeef00000000"`)
}

func TestDump_TableWithSlots(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "dump", "--config", cfg, "--range", "0:0x20", "--range", "0x40:0x48", "--slots")
	require.NoError(t, err)
	assert.Contains(t, out, "00000000")
	assert.Contains(t, out, "00000040")
	assert.Contains(t, out, "[0x40,0x48)")
	assert.Contains(t, out, "LOADED")
}

func TestDump_OutOfBoundsFaults(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := run(t, "dump", "--config", cfg, "--range", "0xF8:0x108")
	assert.ErrorContains(t, err, "prefetch failed")
}

func TestDump_RangeTooLarge(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := run(t, "dump", "--config", cfg, "--range", "0x0:0xFFFFFFFFFFFFFFFF")
	assert.ErrorContains(t, err, "exceeds maximum slot size")
}

func TestWrite_ReadOnlyRejected(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := run(t, "write", "--config", cfg, "--address", "0xF0", "--data", "01", "--force")
	assert.ErrorContains(t, err, "code 0x1083")
}

func TestDump_MissingConfig(t *testing.T) {
	_, err := run(t, "dump", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "not found")
}

func TestParseHexData(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "deadbeef", want: []byte{0xde, 0xad, 0xbe, 0xef}},
		{in: "0x01 02", want: []byte{1, 2}},
		{in: "", wantErr: true},
		{in: "zz", wantErr: true},
		{in: "abc", wantErr: true},
		{in: string(bytes.Repeat([]byte("00"), 65)), wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseHexData(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
