package memspace

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/memspace/pkg/mcs"
)

var testNode = mcs.MustParseNodeID("05.01.01.01.22.00")

// pendingRead is a read the fake has not answered yet.
type pendingRead struct {
	req  mcs.ReadRequest
	done func(mcs.ReadReply)
}

// fakeService is a scripted transport. In immediate mode it answers reads
// from mem inside Read; otherwise reads queue until the test answers them.
type fakeService struct {
	mu        sync.Mutex
	mem       []byte
	immediate bool
	maxReply  int
	writeCode uint16

	reads   []mcs.ReadRequest
	writes  []mcs.WriteRequest
	pending []pendingRead
}

func newFakeService(size int) *fakeService {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = byte(i)
	}
	return &fakeService{mem: mem, immediate: true}
}

func (f *fakeService) Read(_ context.Context, req mcs.ReadRequest, done func(mcs.ReadReply)) {
	f.mu.Lock()
	f.reads = append(f.reads, req)
	if !f.immediate {
		f.pending = append(f.pending, pendingRead{req: req, done: done})
		f.mu.Unlock()
		return
	}
	reply := f.replyLocked(req)
	f.mu.Unlock()

	done(reply)
}

func (f *fakeService) replyLocked(req mcs.ReadRequest) mcs.ReadReply {
	n := req.Count
	if f.maxReply > 0 && n > f.maxReply {
		n = f.maxReply
	}
	end := min(int(req.Address)+n, len(f.mem))
	data := append([]byte(nil), f.mem[req.Address:end]...)
	return mcs.ReadReply{Node: req.Node, Space: req.Space, Address: req.Address, Data: data}
}

func (f *fakeService) Write(_ context.Context, req mcs.WriteRequest, done func(mcs.WriteReply)) {
	f.mu.Lock()
	f.writes = append(f.writes, req)
	code := f.writeCode
	if code == mcs.CodeOK && int(req.Address)+len(req.Data) <= len(f.mem) {
		copy(f.mem[req.Address:], req.Data)
	}
	f.mu.Unlock()

	done(mcs.WriteReply{Code: code})
}

// next removes the oldest pending read.
func (f *fakeService) next() pendingRead {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		panic("fakeService: no pending read")
	}
	p := f.pending[0]
	f.pending = f.pending[1:]
	return p
}

// answer replies to the oldest pending read from mem.
func (f *fakeService) answer() mcs.ReadRequest {
	p := f.next()
	f.mu.Lock()
	reply := f.replyLocked(p.req)
	f.mu.Unlock()
	p.done(reply)
	return p.req
}

// answerWith replies to the oldest pending read with a crafted reply.
func (f *fakeService) answerWith(build func(req mcs.ReadRequest) mcs.ReadReply) mcs.ReadRequest {
	p := f.next()
	p.done(build(p.req))
	return p.req
}

func (f *fakeService) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeService) readLog() []mcs.ReadRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mcs.ReadRequest(nil), f.reads...)
}

func (f *fakeService) writeLog() []mcs.WriteRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mcs.WriteRequest(nil), f.writes...)
}

// recorder collects events delivered to a listener.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listener() Listener {
	return func(ev Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, ev)
		return nil
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// fakeMetrics counts metric calls.
type fakeMetrics struct {
	mu           sync.Mutex
	chunkBytes   int
	skipped      int
	hits, misses int
	writes       []uint16
	completes    int
	faults       []string
}

func (m *fakeMetrics) ObserveChunkRead(bytes int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkBytes += bytes
}

func (m *fakeMetrics) RecordChunkSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func (m *fakeMetrics) RecordRead(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *fakeMetrics) ObserveWrite(_ int, code uint16, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, code)
}

func (m *fakeMetrics) RecordLoadComplete(int, uint64, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completes++
}

func (m *fakeMetrics) RecordFault(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, kind)
}
