package commands

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/memspace/internal/cli/output"
	"github.com/marmos91/memspace/internal/cli/prompt"
	"github.com/marmos91/memspace/pkg/mcs"
)

var (
	writeAddress string
	writeData    string
	writeForce   bool
	writeTimeout time.Duration
)

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Write bytes to the node through the cache",
	Long: `Write up to 64 bytes at an address and wait for the node's reply.

Examples:
  # Write four bytes at 0x10
  memspace write --address 0x10 --data deadbeef

  # Skip the confirmation prompt
  memspace write --address 0x10 --data "de ad be ef" --force`,
	RunE: runWrite,
}

func init() {
	writeCmd.Flags().StringVarP(&writeAddress, "address", "a", "", "start address (required)")
	writeCmd.Flags().StringVarP(&writeData, "data", "d", "", "bytes to write, in hex (required)")
	writeCmd.Flags().BoolVarP(&writeForce, "force", "f", false, "skip confirmation")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 10*time.Second, "give up when the node does not reply")
	_ = writeCmd.MarkFlagRequired("address")
	_ = writeCmd.MarkFlagRequired("data")
}

func runWrite(cmd *cobra.Command, args []string) error {
	addr, err := strconv.ParseUint(writeAddress, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", writeAddress, err)
	}
	data, err := parseHexData(writeData)
	if err != nil {
		return err
	}

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Write %d bytes at 0x%x", len(data), addr), writeForce)
	if err != nil {
		return err
	}
	if !ok {
		return prompt.ErrAborted
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), writeTimeout)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	replies := make(chan mcs.WriteReply, 1)
	if err := s.cache.Write(ctx, addr, data, func(r mcs.WriteReply) { replies <- r }); err != nil {
		return err
	}

	var reply mcs.WriteReply
	select {
	case reply = <-replies:
	case <-ctx.Done():
		return fmt.Errorf("write timed out: %w", ctx.Err())
	}

	switch {
	case reply.Err != nil:
		return fmt.Errorf("write failed: %w", reply.Err)
	case !reply.OK():
		return fmt.Errorf("write failed: %w", &mcs.RemoteError{Code: reply.Code})
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, stdoutIsTerminal())
	printer.Success(fmt.Sprintf("Wrote %d bytes at 0x%x", len(data), addr))
	return nil
}

// parseHexData decodes hex with optional 0x prefix and whitespace between
// bytes.
func parseHexData(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, errors.New("no data to write")
	}

	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	if len(data) > mcs.MaxDatagramPayload {
		return nil, fmt.Errorf("%d bytes exceeds the %d byte write limit", len(data), mcs.MaxDatagramPayload)
	}
	return data, nil
}
