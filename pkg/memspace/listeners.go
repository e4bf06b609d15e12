package memspace

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/marmos91/memspace/internal/logger"
)

// ListenerRegistry maps registered ranges to the listeners interested in
// them. Identical ranges share one entry. The registry has its own lock and
// may be used concurrently with loading and writes.
type ListenerRegistry struct {
	mu      sync.RWMutex
	entries []*rangeEntry
	seq     uint64
}

type rangeEntry struct {
	rng      Range
	handlers []*handler
}

// handler wraps one registration. seq orders delivery across entries.
type handler struct {
	seq uint64
	fn  Listener
}

// delivery is one pending listener invocation, collected under the registry
// lock and run after it is released.
type delivery struct {
	rng Range
	h   *handler
}

// NewListenerRegistry returns an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{}
}

// Add registers l for r and returns a function that removes it again.
// Calling the remove function more than once is harmless.
func (lr *ListenerRegistry) Add(r Range, l Listener) (remove func()) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	lr.seq++
	h := &handler{seq: lr.seq, fn: l}

	idx := slices.IndexFunc(lr.entries, func(e *rangeEntry) bool { return e.rng == r })
	if idx < 0 {
		lr.entries = append(lr.entries, &rangeEntry{rng: r})
		idx = len(lr.entries) - 1
	}
	lr.entries[idx].handlers = append(lr.entries[idx].handlers, h)

	var once sync.Once
	return func() {
		once.Do(func() { lr.remove(r, h) })
	}
}

func (lr *ListenerRegistry) remove(r Range, h *handler) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	for i, e := range lr.entries {
		if e.rng != r {
			continue
		}
		e.handlers = slices.DeleteFunc(e.handlers, func(x *handler) bool { return x == h })
		if len(e.handlers) == 0 {
			lr.entries = slices.Delete(lr.entries, i, i+1)
		}
		return
	}
}

// Len returns the number of registrations.
func (lr *ListenerRegistry) Len() int {
	lr.mu.RLock()
	defer lr.mu.RUnlock()

	n := 0
	for _, e := range lr.entries {
		n += len(e.handlers)
	}
	return n
}

// Ranges returns the distinct registered ranges in first-registration order.
func (lr *ListenerRegistry) Ranges() []Range {
	lr.mu.RLock()
	defer lr.mu.RUnlock()

	out := make([]Range, len(lr.entries))
	for i, e := range lr.entries {
		out[i] = e.rng
	}
	return out
}

// overlapping collects the registrations whose range overlaps r and, when
// loaded is non-nil, is entirely covered by loaded.
func (lr *ListenerRegistry) overlapping(r Range, loaded *RangeSet) []delivery {
	lr.mu.RLock()
	defer lr.mu.RUnlock()

	var out []delivery
	for _, e := range lr.entries {
		if !e.rng.Overlaps(r) {
			continue
		}
		if loaded != nil && !loaded.Contains(e.rng) {
			continue
		}
		for _, h := range e.handlers {
			out = append(out, delivery{rng: e.rng, h: h})
		}
	}
	slices.SortFunc(out, func(a, b delivery) int { return cmp.Compare(a.h.seq, b.h.seq) })
	return out
}

// dispatch runs each delivery with ev.Range set to the registered range.
func dispatch(ds []delivery, ev Event) {
	for _, d := range ds {
		ev.Range = d.rng
		invoke(d.h.fn, ev)
	}
}

// invoke calls l, converting a panic into a logged error.
func invoke(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("memspace: listener panicked",
				"event", ev.Type.String(),
				logger.Node(ev.Node),
				logger.Space(uint8(ev.Space)),
				"panic", fmt.Sprint(r))
		}
	}()

	if err := l(ev); err != nil {
		logger.Error("memspace: listener failed",
			"event", ev.Type.String(),
			logger.Node(ev.Node),
			logger.Space(uint8(ev.Space)),
			logger.Err(err))
	}
}

// subscriberList holds cache-wide listeners in registration order.
type subscriberList struct {
	mu   sync.RWMutex
	subs []*handler
	seq  uint64
}

func (s *subscriberList) add(l Listener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	h := &handler{seq: s.seq, fn: l}
	s.subs = append(s.subs, h)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(x *handler) bool { return x == h })
		})
	}
}

func (s *subscriberList) publish(ev Event) {
	s.mu.RLock()
	subs := slices.Clone(s.subs)
	s.mu.RUnlock()

	for _, h := range subs {
		invoke(h.fn, ev)
	}
}
