package memspace

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is a half-open address interval [Start, End). A usable Range has
// Start < End; empty and inverted ranges are rejected by every API that
// accepts one.
type Range struct {
	Start uint64
	End   uint64
}

// NewRange returns [start, end) or ErrEmptyRange if it is empty.
func NewRange(start, end uint64) (Range, error) {
	r := Range{Start: start, End: end}
	if !r.WellFormed() {
		return Range{}, fmt.Errorf("%w: %s", ErrEmptyRange, r)
	}
	return r, nil
}

// rangeOf returns [offset, offset+length) or ErrEmptyRange if length is
// not positive or the end would overflow the address space.
func rangeOf(offset uint64, length int) (Range, error) {
	if length <= 0 {
		return Range{}, fmt.Errorf("%w: length %d at 0x%x", ErrEmptyRange, length, offset)
	}
	end := offset + uint64(length)
	if end < offset {
		return Range{}, fmt.Errorf("%w: length %d at 0x%x overflows", ErrEmptyRange, length, offset)
	}
	return Range{Start: offset, End: end}, nil
}

// WellFormed reports whether r is non-empty.
func (r Range) WellFormed() bool {
	return r.Start < r.End
}

// Length returns the number of addresses in r.
func (r Range) Length() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether addr lies in r.
func (r Range) Contains(addr uint64) bool {
	return r.Start <= addr && addr < r.End
}

// Overlaps reports whether r and r2 share at least one address.
func (r Range) Overlaps(r2 Range) bool {
	return r.Start < r2.End && r2.Start < r.End
}

// Touches reports whether r and r2 overlap or abut, i.e. whether their union
// is a single contiguous range.
func (r Range) Touches(r2 Range) bool {
	return r.Start <= r2.End && r2.Start <= r.End
}

// IsSupersetOf reports whether r2 lies entirely within r.
func (r Range) IsSupersetOf(r2 Range) bool {
	return r.Start <= r2.Start && r2.End <= r.End
}

// Union returns the smallest range covering both r and r2. It is only
// meaningful when r.Touches(r2).
func (r Range) Union(r2 Range) Range {
	return Range{Start: min(r.Start, r2.Start), End: max(r.End, r2.End)}
}

// Intersect returns the addresses shared by r and r2. The result has zero
// Length when they do not overlap.
func (r Range) Intersect(r2 Range) Range {
	out := Range{Start: max(r.Start, r2.Start), End: min(r.End, r2.End)}
	if out.End < out.Start {
		out.End = out.Start
	}
	return out
}

// Less orders ranges by Start, then by End.
func (r Range) Less(r2 Range) bool {
	if r.Start != r2.Start {
		return r.Start < r2.Start
	}
	return r.End < r2.End
}

// String formats r as [0xstart,0xend).
func (r Range) String() string {
	return fmt.Sprintf("[0x%x,0x%x)", r.Start, r.End)
}

// ParseRange parses "start:end" where both bounds are decimal or 0x-prefixed
// hexadecimal addresses.
func ParseRange(s string) (Range, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Range{}, fmt.Errorf("invalid range %q: want start:end", s)
	}
	start, err := strconv.ParseUint(strings.TrimSpace(lo), 0, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range start %q: %w", lo, err)
	}
	end, err := strconv.ParseUint(strings.TrimSpace(hi), 0, 64)
	if err != nil {
		return Range{}, fmt.Errorf("invalid range end %q: %w", hi, err)
	}
	return NewRange(start, end)
}
