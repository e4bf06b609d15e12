package memspace

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/memspace/internal/logger"
	"github.com/marmos91/memspace/pkg/mcs"
)

func newTestCache(t *testing.T, svc mcs.Service, opts Options, ranges ...Range) *Cache {
	t.Helper()
	c := New(svc, testNode, mcs.SpaceConfig, opts)
	for _, r := range ranges {
		if err := c.AddRangeToCache(r.Start, r.End); err != nil {
			t.Fatalf("AddRangeToCache(%v): %v", r, err)
		}
	}
	return c
}

func TestFillCache_Twice(t *testing.T) {
	svc := newFakeService(256)
	c := newTestCache(t, svc, Options{}, Range{0, 16})

	if err := c.FillCache(context.Background()); err != nil {
		t.Fatalf("first FillCache: %v", err)
	}
	if err := c.FillCache(context.Background()); !errors.Is(err, ErrAlreadyFilled) {
		t.Fatalf("second FillCache error = %v, want ErrAlreadyFilled", err)
	}
	if err := c.AddRangeToCache(32, 48); !errors.Is(err, ErrAlreadyFilled) {
		t.Fatalf("AddRangeToCache after fill error = %v, want ErrAlreadyFilled", err)
	}
	if got := len(svc.readLog()); got != 1 {
		t.Errorf("second fill issued reads: %d total", got)
	}
}

func TestFillCache_NothingDeclared(t *testing.T) {
	svc := newFakeService(16)
	c := New(svc, testNode, mcs.SpaceConfig, Options{})

	var events recorder
	c.Subscribe(events.listener())

	require.NoError(t, c.FillCache(context.Background()))
	assert.Equal(t, StateDone, c.State())
	assert.Zero(t, events.count(), "no event for an empty fill")
	assert.Empty(t, svc.readLog())
	assert.Empty(t, c.Slots())
}

func TestFillCache_AfterEmptyFillRejected(t *testing.T) {
	svc := newFakeService(64)
	c := New(svc, testNode, mcs.SpaceConfig, Options{})

	require.NoError(t, c.FillCache(context.Background()))
	require.Equal(t, StateDone, c.State())

	assert.ErrorIs(t, c.AddRangeToCache(0, 16), ErrAlreadyFilled)
	assert.ErrorIs(t, c.FillCache(context.Background()), ErrAlreadyFilled)
	assert.Equal(t, StateDone, c.State())
	assert.Empty(t, svc.readLog())
	assert.Empty(t, c.Declared())
}

func TestAddRangeToCache_RangeTooLarge(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		start, end uint64
	}{
		{"whole address space", Options{}, 0, math.MaxUint64},
		{"above default cap", Options{}, 0x100, 0x100 + DefaultMaxSlotSize + 1},
		{"above configured cap", Options{MaxSlotSize: 32}, 0, 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(64)
			c := New(svc, testNode, mcs.SpaceConfig, tt.opts)

			err := c.AddRangeToCache(tt.start, tt.end)
			require.ErrorIs(t, err, ErrRangeTooLarge)
			assert.Empty(t, c.Declared())

			require.NoError(t, c.FillCache(context.Background()))
			assert.Equal(t, StateDone, c.State())
			assert.Empty(t, svc.readLog())
		})
	}
}

func TestFillCache_MergedSlotTooLarge(t *testing.T) {
	svc := newFakeService(64)
	c := newTestCache(t, svc, Options{MaxSlotSize: 32}, Range{0, 20}, Range{20, 40})

	err := c.FillCache(context.Background())
	require.ErrorIs(t, err, ErrRangeTooLarge)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Slots())
	assert.Empty(t, svc.readLog())

	// The cache lock was released on the error path.
	_, ok := c.Read(0, 1)
	assert.False(t, ok)
	assert.NoError(t, c.AddRangeToCache(48, 50))
}

func TestFillCache_SlotAtCap(t *testing.T) {
	svc := newFakeService(64)
	c := newTestCache(t, svc, Options{MaxSlotSize: 32}, Range{0, 32})

	require.NoError(t, c.FillCache(context.Background()))
	for svc.pendingCount() > 0 {
		svc.answer()
	}
	assert.Equal(t, StateDone, c.State())
	_, ok := c.Read(0, 32)
	assert.True(t, ok)
}

func TestFillCache_SlotsAreCoalesced(t *testing.T) {
	svc := newFakeService(512)
	c := newTestCache(t, svc, Options{},
		Range{200, 300}, Range{0, 50}, Range{50, 100}, Range{250, 260})

	assert.Equal(t, rangesOf(0, 100, 200, 300), c.Declared())
	require.NoError(t, c.FillCache(context.Background()))

	slots := c.Slots()
	require.Len(t, slots, 2)
	assert.Equal(t, Range{0, 100}, slots[0].Range)
	assert.Equal(t, Range{200, 300}, slots[1].Range)
	for _, s := range slots {
		assert.True(t, s.Allocated)
		assert.True(t, s.Loaded)
	}
}

func TestRead_Completeness(t *testing.T) {
	svc := newFakeService(512)
	c := newTestCache(t, svc, Options{}, Range{0, 100}, Range{200, 300})

	if _, ok := c.Read(0, 10); ok {
		t.Fatal("Read before FillCache must miss")
	}
	require.NoError(t, c.FillCache(context.Background()))
	require.Equal(t, StateDone, c.State())

	tests := []struct {
		name   string
		offset uint64
		length int
		hit    bool
	}{
		{"whole first slot", 0, 100, true},
		{"inside second slot", 250, 50, true},
		{"spans slot end", 50, 60, false},
		{"crosses slot boundary by one", 99, 2, false},
		{"in the gap", 150, 10, false},
		{"past last slot", 300, 1, false},
		{"zero length", 10, 0, false},
		{"negative length", 10, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Read(tt.offset, tt.length)
			if ok != tt.hit {
				t.Fatalf("Read(%d, %d) hit = %v, want %v", tt.offset, tt.length, ok, tt.hit)
			}
			if !tt.hit {
				if got != nil {
					t.Errorf("miss returned data %v", got)
				}
				return
			}
			want := svc.mem[tt.offset : tt.offset+uint64(tt.length)]
			if !bytes.Equal(got, want) {
				t.Errorf("Read(%d, %d) = %v, want %v", tt.offset, tt.length, got, want)
			}
		})
	}
}

func TestRead_ReturnsCopy(t *testing.T) {
	svc := newFakeService(64)
	c := newTestCache(t, svc, Options{}, Range{0, 8})
	require.NoError(t, c.FillCache(context.Background()))

	got, ok := c.Read(0, 4)
	require.True(t, ok)
	got[0] = 0xFF

	again, ok := c.Read(0, 4)
	require.True(t, ok)
	assert.Equal(t, byte(0), again[0])
}

func TestLoader_ChunkSequence(t *testing.T) {
	svc := newFakeService(256)
	svc.immediate = false
	c := newTestCache(t, svc, Options{}, Range{0, 150})

	var events recorder
	c.Subscribe(events.listener())

	require.NoError(t, c.FillCache(context.Background()))
	assert.Equal(t, StateLoading, c.State())

	wantReqs := []struct {
		addr  uint64
		count int
	}{{0, 64}, {64, 64}, {128, 22}}

	for i, want := range wantReqs {
		require.Equal(t, 1, svc.pendingCount(), "exactly one read in flight before reply %d", i)
		req := svc.answer()
		assert.Equal(t, want.addr, req.Address, "request %d address", i)
		assert.Equal(t, want.count, req.Count, "request %d count", i)
		assert.Equal(t, testNode, req.Node)
		assert.Equal(t, mcs.SpaceConfig, req.Space)

		if i < len(wantReqs)-1 {
			assert.Zero(t, events.count(), "complete fired early after reply %d", i)
		}
	}

	assert.Zero(t, svc.pendingCount())
	assert.Equal(t, StateDone, c.State())
	require.Equal(t, 1, events.count())
	assert.Equal(t, EventLoadingComplete, events.all()[0].Type)

	got, ok := c.Read(0, 150)
	require.True(t, ok)
	assert.Equal(t, svc.mem[:150], got)
}

func TestLoader_SlotsInOrder(t *testing.T) {
	svc := newFakeService(512)
	c := newTestCache(t, svc, Options{}, Range{300, 310}, Range{0, 70}, Range{100, 101})
	require.NoError(t, c.FillCache(context.Background()))

	var addrs []uint64
	for _, r := range svc.readLog() {
		addrs = append(addrs, r.Address)
	}
	assert.Equal(t, []uint64{0, 64, 100, 300}, addrs)
}

func TestLoader_MaxChunk(t *testing.T) {
	tests := []struct {
		name     string
		maxChunk int
		want     []int
	}{
		{"small datagrams", 16, []int{16, 16, 8}},
		{"default", 0, []int{40}},
		{"clamped", 1000, []int{40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(64)
			c := newTestCache(t, svc, Options{MaxChunk: tt.maxChunk}, Range{0, 40})
			require.NoError(t, c.FillCache(context.Background()))

			var counts []int
			for _, r := range svc.readLog() {
				counts = append(counts, r.Count)
			}
			assert.Equal(t, tt.want, counts)
		})
	}
}

func TestListener_NotifiedOnceWhenFullyLoaded(t *testing.T) {
	svc := newFakeService(64)
	svc.immediate = false
	svc.maxReply = 5
	c := newTestCache(t, svc, Options{}, Range{0, 30})

	var seen []byte
	calls := 0
	_, err := c.AddRangeListener(10, 20, func(ev Event) error {
		calls++
		assert.Equal(t, EventDataChanged, ev.Type)
		assert.Equal(t, Range{10, 20}, ev.Range)
		data, ok := c.Read(10, 10)
		require.True(t, ok, "listener must be able to read its range")
		seen = data
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, c.FillCache(context.Background()))

	// Replies carry 5 bytes: [0,5) [5,10) [10,15) [15,20) [20,25) [25,30).
	wantCalls := []int{0, 0, 0, 1, 1, 1}
	for i, want := range wantCalls {
		req := svc.answer()
		if calls != want {
			t.Fatalf("after reply %d (addr 0x%x) listener calls = %d, want %d", i, req.Address, calls, want)
		}
	}

	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, svc.mem[10:20], seen)
}

func TestListener_NotifiedPerLoadedRange(t *testing.T) {
	svc := newFakeService(256)
	c := New(svc, testNode, mcs.SpaceConfig, Options{})
	require.NoError(t, c.AddRangeToCache(0, 200))

	var early, late, straddle recorder
	_, _ = c.AddRangeListener(0, 10, early.listener())
	_, _ = c.AddRangeListener(150, 160, late.listener())
	_, _ = c.AddRangeListener(60, 70, straddle.listener())
	var outside recorder
	_, _ = c.AddRangeListener(190, 210, outside.listener())

	require.NoError(t, c.FillCache(context.Background()))

	assert.Equal(t, 1, early.count())
	assert.Equal(t, 1, late.count())
	assert.Equal(t, 1, straddle.count(), "range split across chunks fires once")
	assert.Zero(t, outside.count(), "range extending past the slot is never fully loaded")
}

func TestListener_SharedRangeAndOrder(t *testing.T) {
	svc := newFakeService(64)
	c := newTestCache(t, svc, Options{}, Range{0, 32})
	require.NoError(t, c.FillCache(context.Background()))

	var order []string
	add := func(name string, start, end uint64) {
		_, err := c.AddRangeListener(start, end, func(Event) error {
			order = append(order, name)
			return nil
		})
		require.NoError(t, err)
	}
	add("first", 5, 15)
	add("second", 0, 10)
	add("third", 5, 15)

	assert.Len(t, c.listeners.Ranges(), 2, "identical ranges share one entry")
	assert.Equal(t, 3, c.listeners.Len())

	require.NoError(t, c.Write(context.Background(), 6, []byte{1}, nil))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestListener_Remove(t *testing.T) {
	svc := newFakeService(64)
	c := newTestCache(t, svc, Options{}, Range{0, 32})
	require.NoError(t, c.FillCache(context.Background()))

	var rec recorder
	remove, err := c.AddRangeListener(0, 8, rec.listener())
	require.NoError(t, err)

	require.NoError(t, c.Write(context.Background(), 0, []byte{1}, nil))
	remove()
	remove()
	require.NoError(t, c.Write(context.Background(), 0, []byte{2}, nil))

	assert.Equal(t, 1, rec.count())
	assert.Zero(t, c.listeners.Len())
}

func TestListener_InvalidRange(t *testing.T) {
	c := New(newFakeService(8), testNode, mcs.SpaceConfig, Options{})
	_, err := c.AddRangeListener(8, 8, func(Event) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyRange)
}

func TestListener_FailuresAreIsolated(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "DEBUG", "json", false)
	t.Cleanup(func() { logger.InitWithWriter(os.Stdout, "INFO", "text", false) })

	svc := newFakeService(64)
	c := newTestCache(t, svc, Options{}, Range{0, 32})
	require.NoError(t, c.FillCache(context.Background()))

	_, _ = c.AddRangeListener(0, 10, func(Event) error { panic("boom") })
	_, _ = c.AddRangeListener(0, 10, func(Event) error { return errors.New("listener broke") })
	var last recorder
	_, _ = c.AddRangeListener(0, 10, last.listener())

	require.NotPanics(t, func() {
		require.NoError(t, c.Write(context.Background(), 2, []byte{7}, nil))
	})

	assert.Equal(t, 1, last.count())
	assert.Contains(t, buf.String(), "listener panicked")
	assert.Contains(t, buf.String(), "listener broke")
}

func TestWrite_NotifiesOverlappingListeners(t *testing.T) {
	svc := newFakeService(64)
	c := newTestCache(t, svc, Options{}, Range{0, 64})
	require.NoError(t, c.FillCache(context.Background()))

	var a, b, other recorder
	_, _ = c.AddRangeListener(0, 10, a.listener())
	_, _ = c.AddRangeListener(5, 15, b.listener())
	_, _ = c.AddRangeListener(20, 30, other.listener())

	var reply *mcs.WriteReply
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, c.Write(context.Background(), 8, data, func(r mcs.WriteReply) { reply = &r }))

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Zero(t, other.count())
	assert.Equal(t, Range{0, 10}, a.all()[0].Range)
	assert.Equal(t, Range{5, 15}, b.all()[0].Range)

	got, ok := c.Read(8, 4)
	require.True(t, ok)
	assert.Equal(t, data, got)

	writes := svc.writeLog()
	require.Len(t, writes, 1)
	assert.Equal(t, uint64(8), writes[0].Address)
	assert.Equal(t, data, writes[0].Data)

	require.NotNil(t, reply)
	assert.True(t, reply.OK())
}

func TestWrite_PayloadIsCopied(t *testing.T) {
	svc := newFakeService(64)
	svc.writeCode = mcs.CodeTemporaryError
	c := newTestCache(t, svc, Options{}, Range{0, 16})
	require.NoError(t, c.FillCache(context.Background()))

	data := []byte{1, 2}
	require.NoError(t, c.Write(context.Background(), 0, data, nil))
	data[0] = 9

	got, _ := c.Read(0, 2)
	assert.Equal(t, []byte{1, 2}, got)
	assert.Equal(t, []byte{1, 2}, svc.writeLog()[0].Data)
}

func TestWrite_OutsideSlotsStillSubmitted(t *testing.T) {
	svc := newFakeService(256)
	c := newTestCache(t, svc, Options{}, Range{0, 16})
	require.NoError(t, c.FillCache(context.Background()))

	require.NoError(t, c.Write(context.Background(), 100, []byte{1, 2, 3}, nil))
	require.NoError(t, c.Write(context.Background(), 14, []byte{1, 2, 3}, nil))

	assert.Len(t, svc.writeLog(), 2)
	_, ok := c.Read(100, 3)
	assert.False(t, ok)

	got, ok := c.Read(14, 2)
	require.True(t, ok)
	assert.Equal(t, []byte{14, 15}, got, "write straddling the slot end is not applied locally")
}

func TestWrite_BeforeFillNotAppliedLocally(t *testing.T) {
	svc := newFakeService(64)
	c := newTestCache(t, svc, Options{}, Range{0, 16})

	require.NoError(t, c.Write(context.Background(), 0, []byte{0xAA}, nil))
	require.NoError(t, c.FillCache(context.Background()))

	got, ok := c.Read(0, 1)
	require.True(t, ok)
	assert.Equal(t, []byte{0xAA}, got, "loaded from the remote, which accepted the write")
}

func TestWrite_RejectedIsNotRolledBack(t *testing.T) {
	m := &fakeMetrics{}
	svc := newFakeService(64)
	svc.writeCode = mcs.CodeWriteReadOnly
	c := newTestCache(t, svc, Options{Metrics: m}, Range{0, 16})
	require.NoError(t, c.FillCache(context.Background()))

	var code uint16
	require.NoError(t, c.Write(context.Background(), 4, []byte{0x55}, func(r mcs.WriteReply) { code = r.Code }))

	assert.Equal(t, mcs.CodeWriteReadOnly, code)
	got, _ := c.Read(4, 1)
	assert.Equal(t, []byte{0x55}, got)
	assert.Equal(t, []uint16{mcs.CodeWriteReadOnly}, m.writes)
}

func TestWrite_Empty(t *testing.T) {
	svc := newFakeService(8)
	c := New(svc, testNode, mcs.SpaceConfig, Options{})
	assert.ErrorIs(t, c.Write(context.Background(), 0, nil, nil), ErrEmptyRange)
	assert.Empty(t, svc.writeLog())
}

func TestLoader_SpuriousReply(t *testing.T) {
	svc := newFakeService(256)
	svc.immediate = false
	m := &fakeMetrics{}
	c := newTestCache(t, svc, Options{Metrics: m}, Range{0, 150})

	var events recorder
	c.Subscribe(events.listener())
	var rec recorder
	_, _ = c.AddRangeListener(0, 10, rec.listener())

	require.NoError(t, c.FillCache(context.Background()))
	svc.answerWith(func(req mcs.ReadRequest) mcs.ReadReply {
		return mcs.ReadReply{Node: req.Node, Space: req.Space, Address: 64, Data: bytes.Repeat([]byte{0xAA}, 64)}
	})

	assert.Equal(t, StateFaulted, c.State())
	assert.ErrorIs(t, c.Err(), ErrSpuriousReply)
	assert.Zero(t, svc.pendingCount(), "no further reads after a fault")
	assert.Len(t, svc.readLog(), 1)
	assert.Zero(t, rec.count())

	got, ok := c.Read(0, 64)
	require.True(t, ok)
	assert.Equal(t, make([]byte, 64), got, "buffer left untouched")

	evs := events.all()
	require.Len(t, evs, 1)
	assert.Equal(t, EventLoadFault, evs[0].Type)
	assert.ErrorIs(t, evs[0].Err, ErrSpuriousReply)
	assert.Equal(t, []string{"spurious"}, m.faults)
	assert.Zero(t, m.completes)
}

func TestLoader_Overflow(t *testing.T) {
	svc := newFakeService(64)
	svc.immediate = false
	c := newTestCache(t, svc, Options{}, Range{0, 10})

	require.NoError(t, c.FillCache(context.Background()))
	svc.answerWith(func(req mcs.ReadRequest) mcs.ReadReply {
		return mcs.ReadReply{Address: req.Address, Data: bytes.Repeat([]byte{0xAA}, 20)}
	})

	assert.Equal(t, StateFaulted, c.State())
	assert.ErrorIs(t, c.Err(), ErrReplyOverflow)
	got, _ := c.Read(0, 10)
	assert.Equal(t, make([]byte, 10), got)
}

func TestLoader_ReadError(t *testing.T) {
	svc := newFakeService(64)
	svc.immediate = false
	c := newTestCache(t, svc, Options{}, Range{0, 10})

	require.NoError(t, c.FillCache(context.Background()))
	svc.answerWith(func(req mcs.ReadRequest) mcs.ReadReply {
		return mcs.ReadReply{Address: req.Address, Err: mcs.ErrNoReply}
	})

	assert.Equal(t, StateFaulted, c.State())
	assert.ErrorIs(t, c.Err(), ErrReadFailed)
	assert.ErrorIs(t, c.Err(), mcs.ErrNoReply)
}

func TestLoader_ZeroLengthReplySkipsChunk(t *testing.T) {
	svc := newFakeService(256)
	svc.immediate = false
	m := &fakeMetrics{}
	c := newTestCache(t, svc, Options{Metrics: m}, Range{0, 150})

	var events recorder
	c.Subscribe(events.listener())
	var head, hole recorder
	_, _ = c.AddRangeListener(0, 10, head.listener())
	_, _ = c.AddRangeListener(70, 80, hole.listener())

	require.NoError(t, c.FillCache(context.Background()))
	svc.answer()
	skipped := svc.answerWith(func(req mcs.ReadRequest) mcs.ReadReply {
		return mcs.ReadReply{Address: req.Address}
	})
	assert.Equal(t, uint64(64), skipped.Address)

	last := svc.answer()
	assert.Equal(t, uint64(128), last.Address, "cursor advanced by the requested count")
	assert.Equal(t, 22, last.Count)

	assert.Equal(t, StateDone, c.State())
	assert.NoError(t, c.Err())
	assert.Equal(t, 1, events.count())
	assert.Equal(t, 1, head.count())
	assert.Zero(t, hole.count(), "skipped bytes never count as loaded")

	got, ok := c.Read(64, 64)
	require.True(t, ok)
	assert.Equal(t, make([]byte, 64), got)

	slots := c.Slots()
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Allocated)
	assert.False(t, slots[0].Loaded)

	assert.Equal(t, 1, m.skipped)
	assert.Equal(t, 86, m.chunkBytes)
	assert.Equal(t, 1, m.completes)
}

func TestLoader_LateReplyIgnored(t *testing.T) {
	svc := newFakeService(64)
	svc.immediate = false
	c := newTestCache(t, svc, Options{}, Range{0, 10})
	require.NoError(t, c.FillCache(context.Background()))

	p := svc.next()
	p.done(mcs.ReadReply{Address: 5, Data: []byte{1}})
	require.Equal(t, StateFaulted, c.State())

	// A duplicate delivery after the fault must not touch the slot.
	p.done(mcs.ReadReply{Address: 0, Data: []byte{1, 2, 3}})
	assert.Equal(t, StateFaulted, c.State())
	got, _ := c.Read(0, 3)
	assert.Equal(t, []byte{0, 0, 0}, got)
}

func TestCache_Metrics(t *testing.T) {
	m := &fakeMetrics{}
	svc := newFakeService(256)
	c := newTestCache(t, svc, Options{Metrics: m}, Range{0, 100})
	require.NoError(t, c.FillCache(context.Background()))

	c.Read(0, 10)
	c.Read(200, 10)

	assert.Equal(t, 100, m.chunkBytes)
	assert.Equal(t, 1, m.completes)
	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
}

// asyncService answers every read on a new goroutine after a short delay.
type asyncService struct {
	*fakeService
}

func (a asyncService) Read(ctx context.Context, req mcs.ReadRequest, done func(mcs.ReadReply)) {
	a.mu.Lock()
	reply := a.replyLocked(req)
	a.mu.Unlock()

	go func() {
		time.Sleep(100 * time.Microsecond)
		done(reply)
	}()
}

func TestCache_ConcurrentReadsDuringLoad(t *testing.T) {
	svc := asyncService{newFakeService(1024)}
	c := newTestCache(t, svc, Options{}, Range{0, 512}, Range{600, 1024})

	complete := make(chan struct{})
	c.Subscribe(func(ev Event) error {
		if ev.Type == EventLoadingComplete {
			close(complete)
		}
		return nil
	})

	require.NoError(t, c.FillCache(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Read(uint64(i*8), 8)
				_ = c.Slots()
				_ = c.State()
			}
		}(i)
	}
	wg.Wait()

	select {
	case <-complete:
	case <-time.After(5 * time.Second):
		t.Fatal("prefetch did not complete")
	}

	got, ok := c.Read(600, 424)
	require.True(t, ok)
	assert.Equal(t, svc.mem[600:1024], got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "faulted", StateFaulted.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.Equal(t, "UPDATE_DATA", EventDataChanged.String())
	assert.Equal(t, "UPDATE_LOADING_COMPLETE", EventLoadingComplete.String())
}
