package memspace

import (
	"math"

	"github.com/google/btree"
)

// rangeSetDegree is the B-tree degree. Declared layouts are small, so a low
// degree keeps nodes compact.
const rangeSetDegree = 8

// RangeSet is the minimal sorted set of disjoint ranges covering every range
// added to it. Overlapping or touching ranges are merged, so no two members
// overlap or abut.
//
// The zero value is not usable; create one with NewRangeSet. RangeSet is not
// safe for concurrent use.
type RangeSet struct {
	tree *btree.BTreeG[Range]
}

// NewRangeSet returns an empty RangeSet.
func NewRangeSet() *RangeSet {
	return &RangeSet{tree: btree.NewG(rangeSetDegree, Range.Less)}
}

// Add folds [start, end) into the set.
func (s *RangeSet) Add(start, end uint64) error {
	r, err := NewRange(start, end)
	if err != nil {
		return err
	}
	s.AddRange(r)
	return nil
}

// AddRange folds r into the set. Empty ranges are ignored. Adding a range
// that is already covered leaves the set unchanged.
func (s *RangeSet) AddRange(r Range) {
	if !r.WellFormed() {
		return
	}

	merged := r
	var absorbed []Range

	// Members are disjoint and never touch, so only the closest member
	// starting at or before r can reach it from the left.
	s.tree.DescendLessOrEqual(Range{Start: r.Start, End: math.MaxUint64}, func(p Range) bool {
		if p.Touches(merged) {
			absorbed = append(absorbed, p)
			merged = merged.Union(p)
		}
		return false
	})

	s.tree.AscendGreaterOrEqual(Range{Start: merged.Start}, func(n Range) bool {
		if n.Start > merged.End {
			return false
		}
		absorbed = append(absorbed, n)
		merged = merged.Union(n)
		return true
	})

	for _, a := range absorbed {
		s.tree.Delete(a)
	}
	s.tree.ReplaceOrInsert(merged)
}

// Ranges returns the members in ascending order.
func (s *RangeSet) Ranges() []Range {
	out := make([]Range, 0, s.tree.Len())
	s.tree.Ascend(func(r Range) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Len returns the number of disjoint members.
func (s *RangeSet) Len() int {
	return s.tree.Len()
}

// Contains reports whether a single member covers all of r.
func (s *RangeSet) Contains(r Range) bool {
	if !r.WellFormed() {
		return false
	}
	found := false
	s.tree.DescendLessOrEqual(Range{Start: r.Start, End: math.MaxUint64}, func(p Range) bool {
		found = p.IsSupersetOf(r)
		return false
	})
	return found
}

// Covered returns the total number of addresses in the set.
func (s *RangeSet) Covered() uint64 {
	var n uint64
	s.tree.Ascend(func(r Range) bool {
		n += r.Length()
		return true
	})
	return n
}
