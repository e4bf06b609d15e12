package memspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/memspace/internal/logger"
	"github.com/marmos91/memspace/internal/telemetry"
	"github.com/marmos91/memspace/pkg/mcs"
)

// State is the prefetch state of a Cache.
type State int

const (
	// StateIdle means FillCache has not run.
	StateIdle State = iota
	// StateLoading means a chunk read is outstanding.
	StateLoading
	// StateDone means every slot has been requested and answered.
	StateDone
	// StateFaulted means loading stopped on an error; see Cache.Err.
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateDone:
		return "done"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// cursor tracks the outstanding chunk. It is only meaningful in
// StateLoading.
type cursor struct {
	slot      int
	next      uint64
	requested int
}

// FillCache fixes the slot map from the declared ranges and starts
// prefetching. Loading proceeds one chunk at a time from reply callbacks;
// FillCache itself does not wait for the network. ctx is forwarded to every
// chunk read.
//
// With nothing declared the cache moves straight to StateDone and no event
// fires. Any later call returns ErrAlreadyFilled. If a merged declaration
// exceeds the slot cap FillCache returns ErrRangeTooLarge and the cache stays
// idle.
func (c *Cache) FillCache(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyFilled
	}

	declared := c.declared.Ranges()
	for _, r := range declared {
		if r.Length() > c.maxSlot {
			c.mu.Unlock()
			return fmt.Errorf("%w: merged slot %s holds %d bytes, limit %d",
				ErrRangeTooLarge, r, r.Length(), c.maxSlot)
		}
	}
	if len(declared) == 0 {
		c.state = StateDone
		c.mu.Unlock()
		logger.DebugCtx(ctx, "memspace: nothing declared, cache complete",
			logger.Node(c.node), logger.Space(uint8(c.space)))
		return nil
	}

	c.slots = make([]*slot, len(declared))
	for i, r := range declared {
		c.slots[i] = &slot{rng: r}
	}
	c.fillCtx, c.fillSpan = telemetry.StartCacheSpan(ctx, telemetry.SpanCacheFill, c.node, uint8(c.space),
		telemetry.CacheSlots(len(c.slots)))
	c.fillCtx = telemetry.WithLogTrace(c.fillCtx)
	c.fillStart = time.Now()
	c.state = StateLoading
	c.cur = cursor{}

	req, more := c.advanceLocked()
	fillCtx := c.fillCtx
	c.mu.Unlock()

	logger.InfoCtx(fillCtx, "memspace: prefetch started",
		logger.Node(c.node), logger.Space(uint8(c.space)),
		logger.Slots(len(declared)), logger.Count(c.maxChunk))

	// Declared ranges are never empty, so the first slot always yields a
	// request.
	if more {
		c.requestChunk(fillCtx, req)
	}
	return nil
}

// advanceLocked moves the cursor to the next byte that still needs a request
// and returns that request. When every slot is exhausted it sets StateDone
// and reports false.
func (c *Cache) advanceLocked() (mcs.ReadRequest, bool) {
	for c.cur.slot < len(c.slots) {
		s := c.slots[c.cur.slot]
		if s.data == nil {
			s.data = make([]byte, s.rng.Length())
			c.cur.next = s.rng.Start
		}
		if c.cur.next < s.rng.End {
			c.cur.requested = int(min(s.rng.End-c.cur.next, uint64(c.maxChunk)))
			return mcs.ReadRequest{
				Node:    c.node,
				Space:   c.space,
				Address: c.cur.next,
				Count:   c.cur.requested,
			}, true
		}
		c.cur.slot++
	}

	c.state = StateDone
	return mcs.ReadRequest{}, false
}

// requestChunk submits one chunk read. The reply callback drives the next
// request, so at most one read is in flight per cache.
func (c *Cache) requestChunk(ctx context.Context, req mcs.ReadRequest) {
	_, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheChunk, c.node, uint8(c.space),
		telemetry.Address(req.Address), telemetry.Count(req.Count))
	start := time.Now()

	c.svc.Read(ctx, req, func(reply mcs.ReadReply) {
		span.SetAttributes(telemetry.BytesRead(len(reply.Data)))
		telemetry.EndSpan(span, reply.Err)

		c.onReadReply(ctx, req, reply, time.Since(start))
	})
}

// onReadReply applies one chunk reply, notifies listeners whose range became
// fully loaded and either requests the next chunk or finishes the fill.
func (c *Cache) onReadReply(ctx context.Context, req mcs.ReadRequest, reply mcs.ReadReply, elapsed time.Duration) {
	c.mu.Lock()
	if c.state != StateLoading {
		state := c.state
		c.mu.Unlock()
		logger.WarnCtx(ctx, "memspace: read reply after loading stopped",
			logger.Node(c.node), logger.Space(uint8(c.space)),
			logger.Address(reply.Address), logger.CacheState(state.String()))
		return
	}

	var (
		notify []delivery
		fault  error
	)
	s := c.slots[c.cur.slot]

	switch {
	case reply.Err != nil:
		fault = fmt.Errorf("%w: %d bytes at 0x%x: %w", ErrReadFailed, req.Count, req.Address, reply.Err)

	case reply.Address != c.cur.next:
		fault = fmt.Errorf("%w: reply for 0x%x while waiting for 0x%x", ErrSpuriousReply, reply.Address, c.cur.next)

	case len(reply.Data) == 0:
		logger.WarnCtx(ctx, "memspace: empty read reply, skipping chunk",
			logger.Node(c.node), logger.Space(uint8(c.space)),
			logger.Address(c.cur.next), logger.Count(c.cur.requested))
		recordChunkSkipped(c.metrics)
		c.cur.next += uint64(c.cur.requested)

	default:
		off := c.cur.next - s.rng.Start
		if uint64(len(reply.Data)) > uint64(len(s.data))-off {
			fault = fmt.Errorf("%w: %d bytes at 0x%x, slot %s", ErrReplyOverflow, len(reply.Data), reply.Address, s.rng)
			break
		}

		copy(s.data[off:], reply.Data)
		got := Range{Start: c.cur.next, End: c.cur.next + uint64(len(reply.Data))}
		c.loaded.AddRange(got)
		notify = c.listeners.overlapping(got, c.loaded)
		c.cur.next = got.End
		observeChunkRead(c.metrics, len(reply.Data), elapsed)
	}

	if fault != nil {
		c.state = StateFaulted
		c.err = fault
		c.mu.Unlock()
		c.fail(fault)
		return
	}

	next, more := c.advanceLocked()
	slots := len(c.slots)
	c.mu.Unlock()

	dispatch(notify, Event{Type: EventDataChanged, Node: c.node, Space: c.space})

	if more {
		c.requestChunk(ctx, next)
		return
	}
	c.complete(slots)
}

// complete finishes a successful fill. advanceLocked reports the end of the
// slots once, so this runs at most once per cache.
func (c *Cache) complete(slots int) {
	c.mu.Lock()
	loaded := c.loaded.Covered()
	elapsed := time.Since(c.fillStart)
	ctx, span := c.fillCtx, c.fillSpan
	c.mu.Unlock()

	logger.InfoCtx(ctx, "memspace: prefetch complete",
		logger.Node(c.node), logger.Space(uint8(c.space)),
		logger.Slots(slots), logger.BytesRead(int(loaded)),
		logger.DurationMs(float64(elapsed.Microseconds())/1000))
	recordLoadComplete(c.metrics, slots, loaded, elapsed)
	span.End()

	c.subscribers.publish(Event{Type: EventLoadingComplete, Node: c.node, Space: c.space})
}

// fail reports a fault that stopped loading.
func (c *Cache) fail(err error) {
	c.mu.Lock()
	ctx, span := c.fillCtx, c.fillSpan
	c.mu.Unlock()

	logger.ErrorCtx(ctx, "memspace: prefetch stopped",
		logger.Node(c.node), logger.Space(uint8(c.space)), logger.Err(err))
	recordFault(c.metrics, faultKind(err))
	telemetry.EndSpan(span, err)

	c.subscribers.publish(Event{Type: EventLoadFault, Node: c.node, Space: c.space, Err: err})
}

func faultKind(err error) string {
	switch {
	case errors.Is(err, ErrSpuriousReply):
		return "spurious"
	case errors.Is(err, ErrReplyOverflow):
		return "overflow"
	default:
		return "read"
	}
}
