package output

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/memspace/pkg/memspace"
)

// BytesPerRow is the width of a hex dump row.
const BytesPerRow = 16

// HexDump is a block of memory at an address. JSON and YAML carry the
// bytes as one hex string; the table shows classic hex dump rows.
type HexDump struct {
	Address string `json:"address" yaml:"address"`
	Length  int    `json:"length" yaml:"length"`
	Data    string `json:"data" yaml:"data"`

	base uint64
	raw  []byte
}

// NewHexDump wraps data read from addr.
func NewHexDump(addr uint64, data []byte) *HexDump {
	return &HexDump{
		Address: fmt.Sprintf("0x%x", addr),
		Length:  len(data),
		Data:    hex.EncodeToString(data),
		base:    addr,
		raw:     data,
	}
}

// Headers implements TableRenderer.
func (h *HexDump) Headers() []string {
	return []string{"Address", "Hex", "ASCII"}
}

// Rows implements TableRenderer. Rows are aligned to the dump's base
// address, not to multiples of BytesPerRow.
func (h *HexDump) Rows() [][]string {
	rows := make([][]string, 0, (len(h.raw)+BytesPerRow-1)/BytesPerRow)
	for off := 0; off < len(h.raw); off += BytesPerRow {
		line := h.raw[off:min(off+BytesPerRow, len(h.raw))]
		rows = append(rows, []string{
			fmt.Sprintf("%08x", h.base+uint64(off)),
			hexColumn(line),
			asciiColumn(line),
		})
	}
	return rows
}

func hexColumn(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
			if i == BytesPerRow/2 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(hex.EncodeToString([]byte{c}))
	}
	return sb.String()
}

func asciiColumn(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 0x20 && c < 0x7f {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

// SlotRow is one cache slot.
type SlotRow struct {
	Range     string `json:"range" yaml:"range"`
	Length    uint64 `json:"length" yaml:"length"`
	Allocated bool   `json:"allocated" yaml:"allocated"`
	Loaded    bool   `json:"loaded" yaml:"loaded"`
}

// SlotTable lists a cache's slots.
type SlotTable []SlotRow

// NewSlotTable converts memspace.Cache.Slots output.
func NewSlotTable(slots []memspace.SlotInfo) SlotTable {
	t := make(SlotTable, len(slots))
	for i, s := range slots {
		t[i] = SlotRow{
			Range:     s.Range.String(),
			Length:    s.Range.Length(),
			Allocated: s.Allocated,
			Loaded:    s.Loaded,
		}
	}
	return t
}

// Headers implements TableRenderer.
func (t SlotTable) Headers() []string {
	return []string{"Range", "Length", "Allocated", "Loaded"}
}

// Rows implements TableRenderer.
func (t SlotTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, s := range t {
		rows[i] = []string{
			s.Range,
			strconv.FormatUint(s.Length, 10),
			strconv.FormatBool(s.Allocated),
			strconv.FormatBool(s.Loaded),
		}
	}
	return rows
}
