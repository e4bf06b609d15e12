package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/memspace/internal/cli/output"
	"github.com/marmos91/memspace/internal/logger"
	"github.com/marmos91/memspace/pkg/memspace"
)

var (
	dumpRanges  []string
	dumpOutput  string
	dumpSlots   bool
	dumpTimeout time.Duration
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Prefetch ranges into the cache and print them",
	Long: `Declare one or more address ranges, prefetch them from the node and print
the cached bytes.

Ranges are "start:end" with end exclusive; numbers accept 0x, 0o and 0b
prefixes. Without --range the whole image is dumped.

Examples:
  # First 64 bytes of the configuration space
  memspace dump --range 0:0x40

  # Two ranges from space 0xFB as JSON, with the slot map
  memspace dump --space 0xFB --range 0:8 --range 0x20:0x40 -o json --slots`,
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringArrayVarP(&dumpRanges, "range", "r", nil, "range to dump as start:end (repeatable)")
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "table", "output format (table, json, yaml)")
	dumpCmd.Flags().BoolVar(&dumpSlots, "slots", false, "also print the cache slot map")
	dumpCmd.Flags().DurationVar(&dumpTimeout, "timeout", 30*time.Second, "give up when loading takes longer")
}

func runDump(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(dumpOutput)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), dumpTimeout)
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ranges, err := dumpRangesOrImage(s)
	if err != nil {
		return err
	}
	for _, r := range ranges {
		if err := s.cache.AddRangeToCache(r.Start, r.End); err != nil {
			return err
		}
		remove, err := s.cache.AddRangeListener(r.Start, r.End, func(ev memspace.Event) error {
			logger.Debug("Range loaded", logger.Range(r.Start, r.End))
			return nil
		})
		if err != nil {
			return err
		}
		defer remove()
	}

	ev, err := fillAndWait(ctx, s.cache)
	if err != nil {
		return err
	}
	if ev.Type == memspace.EventLoadFault {
		return fmt.Errorf("prefetch failed: %w", ev.Err)
	}

	printer := output.NewPrinter(cmd.OutOrStdout(), format, stdoutIsTerminal())
	dumps := make([]*output.HexDump, 0, len(ranges))
	for _, r := range s.cache.Declared() {
		// FillCache accepted the slot map, so every range fits the slot cap.
		data, ok := s.cache.Read(r.Start, int(r.Length()))
		if !ok {
			return fmt.Errorf("range %s missing from cache", r)
		}
		dumps = append(dumps, output.NewHexDump(r.Start, data))
	}

	if format == output.FormatTable {
		for _, d := range dumps {
			if err := printer.Print(d); err != nil {
				return err
			}
		}
	} else if err := printer.Print(dumps); err != nil {
		return err
	}

	if dumpSlots {
		return printer.Print(output.NewSlotTable(s.cache.Slots()))
	}
	return nil
}

// dumpRangesOrImage parses --range flags, defaulting to the whole image.
func dumpRangesOrImage(s *session) ([]memspace.Range, error) {
	if len(dumpRanges) == 0 {
		r, err := memspace.NewRange(0, s.image.Size())
		if err != nil {
			return nil, err
		}
		return []memspace.Range{r}, nil
	}

	out := make([]memspace.Range, 0, len(dumpRanges))
	for _, spec := range dumpRanges {
		r, err := memspace.ParseRange(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// fillAndWait starts prefetching and blocks until the cache reports
// completion or a fault, or ctx ends.
func fillAndWait(ctx context.Context, c *memspace.Cache) (memspace.Event, error) {
	events := make(chan memspace.Event, 1)
	remove := c.Subscribe(func(ev memspace.Event) error {
		select {
		case events <- ev:
		default:
		}
		return nil
	})
	defer remove()

	if err := c.FillCache(ctx); err != nil {
		return memspace.Event{}, err
	}
	if c.State() == memspace.StateDone {
		return memspace.Event{Type: memspace.EventLoadingComplete, Node: c.Node(), Space: c.Space()}, nil
	}

	select {
	case ev := <-events:
		return ev, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return memspace.Event{}, fmt.Errorf("prefetch timed out in state %s", c.State())
		}
		return memspace.Event{}, ctx.Err()
	}
}
