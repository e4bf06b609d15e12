// Package memspace caches one memory space of one remote node.
//
// A Cache is told which address ranges matter (AddRangeToCache), prefetches
// them in protocol-sized chunks once FillCache is called, and then serves
// reads from memory. Writes go through: the cached bytes change at once and
// the remote write is submitted without waiting for its reply. Observers can
// register interest in address ranges and are told when those bytes are first
// fully loaded and whenever a write touches them.
package memspace

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/memspace/internal/logger"
	"github.com/marmos91/memspace/internal/telemetry"
	"github.com/marmos91/memspace/pkg/mcs"
)

// Options tune a Cache. The zero value is valid.
type Options struct {
	// Metrics receives cache observations. Nil disables collection.
	Metrics CacheMetrics

	// MaxChunk caps the bytes requested per chunk read. Values outside
	// 1..mcs.MaxDatagramPayload select mcs.MaxDatagramPayload.
	MaxChunk int

	// MaxSlotSize caps the bytes held by one slot. Zero selects
	// DefaultMaxSlotSize; values above math.MaxInt are clamped.
	MaxSlotSize uint64
}

// DefaultMaxSlotSize is the slot cap used when Options.MaxSlotSize is zero.
const DefaultMaxSlotSize = 16 << 20

// SlotInfo describes one slot for diagnostics.
type SlotInfo struct {
	Range Range

	// Allocated is true once the loader has reached the slot. Reads and
	// local write application only succeed on allocated slots.
	Allocated bool

	// Loaded is true when every byte of the slot has been received.
	Loaded bool
}

// slot is one contiguous cached region. data is nil until the loader reaches
// the slot and then exactly rng.Length() bytes.
type slot struct {
	rng  Range
	data []byte
}

// Cache holds the configuration memory of one (node, space) pair.
//
// All methods are safe for concurrent use. Listener callbacks are never run
// while the cache lock is held.
type Cache struct {
	svc      mcs.Service
	node     mcs.NodeID
	space    mcs.Space
	maxChunk int
	maxSlot  uint64
	metrics  CacheMetrics

	mu       sync.Mutex
	declared *RangeSet
	slots    []*slot
	loaded   *RangeSet
	state    State
	cur      cursor
	err      error

	// fillCtx carries the fill span and is forwarded with every chunk read.
	fillCtx   context.Context
	fillSpan  trace.Span
	fillStart time.Time

	listeners   *ListenerRegistry
	subscribers subscriberList
}

// New creates an empty cache for space on node, served by svc.
func New(svc mcs.Service, node mcs.NodeID, space mcs.Space, opts Options) *Cache {
	maxChunk := opts.MaxChunk
	if maxChunk <= 0 || maxChunk > mcs.MaxDatagramPayload {
		maxChunk = mcs.MaxDatagramPayload
	}
	maxSlot := opts.MaxSlotSize
	if maxSlot == 0 {
		maxSlot = DefaultMaxSlotSize
	}
	maxSlot = min(maxSlot, math.MaxInt)

	return &Cache{
		svc:       svc,
		node:      node,
		space:     space,
		maxChunk:  maxChunk,
		maxSlot:   maxSlot,
		metrics:   opts.Metrics,
		declared:  NewRangeSet(),
		loaded:    NewRangeSet(),
		listeners: NewListenerRegistry(),
	}
}

// Node returns the remote node this cache reads from.
func (c *Cache) Node() mcs.NodeID { return c.node }

// Space returns the memory space this cache covers.
func (c *Cache) Space() mcs.Space { return c.space }

// AddRangeToCache declares [start, end) as worth caching. Overlapping and
// adjacent declarations are merged. Declarations are only accepted before
// FillCache runs, and a range longer than the slot cap is rejected.
func (c *Cache) AddRangeToCache(start, end uint64) error {
	r, err := NewRange(start, end)
	if err != nil {
		return err
	}
	if r.Length() > c.maxSlot {
		return fmt.Errorf("%w: %s holds %d bytes, limit %d", ErrRangeTooLarge, r, r.Length(), c.maxSlot)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("%w: cannot declare %s", ErrAlreadyFilled, r)
	}
	c.declared.AddRange(r)
	return nil
}

// AddRangeListener registers l for [start, end). l receives EventDataChanged
// once every byte of the range has been loaded and after every write that
// overlaps it. The returned function unregisters l.
func (c *Cache) AddRangeListener(start, end uint64, l Listener) (remove func(), err error) {
	r, err := NewRange(start, end)
	if err != nil {
		return nil, err
	}
	return c.listeners.Add(r, l), nil
}

// Subscribe registers l for cache-wide events: EventLoadingComplete and
// EventLoadFault. The returned function unregisters l.
func (c *Cache) Subscribe(l Listener) (remove func()) {
	return c.subscribers.add(l)
}

// Read returns a copy of length bytes at offset. It reports false unless a
// single slot contains the whole window and the loader has reached that
// slot. Bytes of a reached slot whose reply is still outstanding read as
// zero.
func (c *Cache) Read(offset uint64, length int) ([]byte, bool) {
	r, err := rangeOf(offset, length)
	if err != nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.slotForLocked(r)
	if s == nil || s.data == nil {
		recordRead(c.metrics, false)
		return nil, false
	}

	recordRead(c.metrics, true)
	return bytes.Clone(s.window(r)), true
}

// Write stores data at offset. When a reached slot covers the whole window
// the cached bytes are updated before Write returns. The remote write is
// submitted in every case, and listeners whose range overlaps the window are
// notified. done, if not nil, receives the remote reply; a rejected write is
// not rolled back locally.
func (c *Cache) Write(ctx context.Context, offset uint64, data []byte, done func(mcs.WriteReply)) error {
	r, err := rangeOf(offset, len(data))
	if err != nil {
		return err
	}
	payload := bytes.Clone(data)

	c.mu.Lock()
	if s := c.slotForLocked(r); s != nil && s.data != nil {
		copy(s.window(r), payload)
	}
	c.mu.Unlock()

	c.submitWrite(ctx, r, payload, done)

	dispatch(c.listeners.overlapping(r, nil), Event{
		Type:  EventDataChanged,
		Node:  c.node,
		Space: c.space,
	})
	return nil
}

func (c *Cache) submitWrite(ctx context.Context, r Range, payload []byte, done func(mcs.WriteReply)) {
	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheWrite, c.node, uint8(c.space),
		telemetry.Address(r.Start), telemetry.Count(len(payload)))
	start := time.Now()

	req := mcs.WriteRequest{Node: c.node, Space: c.space, Address: r.Start, Data: payload}
	c.svc.Write(ctx, req, func(reply mcs.WriteReply) {
		defer span.End()
		span.SetAttributes(telemetry.Code(reply.Code), telemetry.BytesWritten(len(payload)))

		switch {
		case reply.Err != nil:
			span.RecordError(reply.Err)
			logger.WarnCtx(ctx, "memspace: write failed",
				logger.Node(c.node), logger.Space(uint8(c.space)),
				logger.Range(r.Start, r.End), logger.Err(reply.Err))
		case reply.Code != mcs.CodeOK:
			logger.WarnCtx(ctx, "memspace: write rejected",
				logger.Node(c.node), logger.Space(uint8(c.space)),
				logger.Range(r.Start, r.End), logger.Code(reply.Code))
		default:
			logger.DebugCtx(ctx, "memspace: write complete",
				logger.Node(c.node), logger.Space(uint8(c.space)),
				logger.Range(r.Start, r.End))
		}
		observeWrite(c.metrics, len(payload), reply.Code, time.Since(start))

		if done != nil {
			done(reply)
		}
	})
}

// State returns the loader state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that stopped loading, or nil.
func (c *Cache) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Slots returns a snapshot of the slot map. It is empty before FillCache.
func (c *Cache) Slots() []SlotInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SlotInfo, len(c.slots))
	for i, s := range c.slots {
		out[i] = SlotInfo{
			Range:     s.rng,
			Allocated: s.data != nil,
			Loaded:    c.loaded.Contains(s.rng),
		}
	}
	return out
}

// Declared returns the coalesced declared ranges.
func (c *Cache) Declared() []Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.declared.Ranges()
}

// slotForLocked returns the slot containing all of r, or nil.
func (c *Cache) slotForLocked(r Range) *slot {
	i := sort.Search(len(c.slots), func(i int) bool { return c.slots[i].rng.End > r.Start })
	if i == len(c.slots) || !c.slots[i].rng.IsSupersetOf(r) {
		return nil
	}
	return c.slots[i]
}

// window returns the part of s.data backing r. r must lie within s.rng.
func (s *slot) window(r Range) []byte {
	return s.data[r.Start-s.rng.Start : r.End-s.rng.Start]
}
