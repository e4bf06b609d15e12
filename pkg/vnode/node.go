// Package vnode implements a virtual remote node: an in-process device that
// answers memory configuration requests from backing images.
//
// Every reply is delivered from a single worker goroutine in request order,
// never on the caller's goroutine; only requests submitted after Close fail
// inline. This matches the delivery a cache expects from a real transport, so
// a Node can stand in for one in tests and tools. Fault injection (short
// replies, unreadable holes, read-only windows) exercises the cache's
// degraded paths.
package vnode

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/memspace/internal/logger"
	"github.com/marmos91/memspace/internal/telemetry"
	"github.com/marmos91/memspace/pkg/mcs"
	"github.com/marmos91/memspace/pkg/memspace"
)

// ErrClosed is reported for requests submitted after Close.
var ErrClosed = errors.New("vnode: node closed")

// Options configure a Node. The zero value serves full replies instantly.
type Options struct {
	// MaxReply caps the bytes returned per read reply. Zero or values above
	// mcs.MaxDatagramPayload select mcs.MaxDatagramPayload.
	MaxReply int

	// Latency delays every reply.
	Latency time.Duration

	// Holes are address ranges the node cannot read. A read touching a hole
	// is answered with zero bytes.
	Holes []memspace.Range

	// ReadOnly are address ranges that reject writes with
	// mcs.CodeWriteReadOnly.
	ReadOnly []memspace.Range
}

// Node is a virtual remote node serving one or more memory spaces.
type Node struct {
	id       mcs.NodeID
	opts     Options
	maxReply int

	spacesMu sync.RWMutex
	spaces   map[mcs.Space]Image

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	wg     sync.WaitGroup
}

// New starts a node with the given ID. Spaces are attached with AddSpace.
func New(id mcs.NodeID, opts Options) *Node {
	maxReply := opts.MaxReply
	if maxReply <= 0 || maxReply > mcs.MaxDatagramPayload {
		maxReply = mcs.MaxDatagramPayload
	}

	n := &Node{
		id:       id,
		opts:     opts,
		maxReply: maxReply,
		spaces:   make(map[mcs.Space]Image),
		wake:     make(chan struct{}, 1),
	}

	n.wg.Add(1)
	go n.run()
	return n
}

// ID returns the node ID.
func (n *Node) ID() mcs.NodeID { return n.id }

// AddSpace serves img as space, replacing any image already attached to it.
// The node does not take ownership of img.
func (n *Node) AddSpace(space mcs.Space, img Image) {
	n.spacesMu.Lock()
	defer n.spacesMu.Unlock()
	n.spaces[space] = img
}

func (n *Node) image(space mcs.Space) (Image, bool) {
	n.spacesMu.RLock()
	defer n.spacesMu.RUnlock()
	img, ok := n.spaces[space]
	return img, ok
}

// Close stops accepting requests, answers everything already queued and
// waits for the worker to exit. Attached images are left open.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.signal()
	n.wg.Wait()
	return nil
}

// Read implements mcs.Service.
func (n *Node) Read(ctx context.Context, req mcs.ReadRequest, done func(mcs.ReadReply)) {
	if !n.enqueue(func() { done(n.serveRead(ctx, req)) }) {
		done(mcs.ReadReply{Node: n.id, Space: req.Space, Address: req.Address, Err: ErrClosed})
	}
}

// Write implements mcs.Service.
func (n *Node) Write(ctx context.Context, req mcs.WriteRequest, done func(mcs.WriteReply)) {
	req.Data = slices.Clone(req.Data)
	if !n.enqueue(func() { done(n.serveWrite(ctx, req)) }) {
		done(mcs.WriteReply{Err: ErrClosed})
	}
}

func (n *Node) serveRead(ctx context.Context, req mcs.ReadRequest) mcs.ReadReply {
	reqID := uuid.NewString()
	ctx, span := telemetry.StartNodeSpan(ctx, telemetry.SpanNodeRead, n.id, uint8(req.Space),
		telemetry.Address(req.Address), telemetry.Count(req.Count), telemetry.RequestID(reqID))
	defer span.End()

	n.delay()

	reply := mcs.ReadReply{Node: n.id, Space: req.Space, Address: req.Address}

	img, ok := n.image(req.Space)
	if !ok {
		reply.Err = &mcs.RemoteError{Code: mcs.CodeAddressSpaceUnknown}
		n.logRejected(ctx, "read", reqID, req.Space, req.Address, mcs.CodeAddressSpaceUnknown)
		span.SetStatus(codes.Error, reply.Err.Error())
		return reply
	}

	if req.Address >= img.Size() || req.Count <= 0 {
		reply.Err = &mcs.RemoteError{Code: mcs.CodeAddressOutOfBounds}
		n.logRejected(ctx, "read", reqID, req.Space, req.Address, mcs.CodeAddressOutOfBounds)
		span.SetStatus(codes.Error, reply.Err.Error())
		return reply
	}

	count := min(req.Count, n.maxReply)
	count = int(min(uint64(count), img.Size()-req.Address))
	want := memspace.Range{Start: req.Address, End: req.Address + uint64(count)}

	if overlapsAny(n.opts.Holes, want) {
		logger.DebugCtx(ctx, "vnode: read hits hole, empty reply",
			logger.Node(n.id), logger.Space(uint8(req.Space)),
			logger.Address(req.Address), logger.RequestID(reqID))
		return reply
	}

	data := make([]byte, count)
	if err := img.ReadAt(ctx, data, req.Address); err != nil {
		reply.Err = fmt.Errorf("vnode read 0x%x: %w", req.Address, err)
		span.RecordError(err)
		logger.ErrorCtx(ctx, "vnode: image read failed",
			logger.Node(n.id), logger.Space(uint8(req.Space)),
			logger.Address(req.Address), logger.RequestID(reqID), logger.Err(err))
		return reply
	}

	reply.Data = data
	span.SetAttributes(telemetry.BytesRead(count))
	logger.DebugCtx(ctx, "vnode: read",
		logger.Node(n.id), logger.Space(uint8(req.Space)),
		logger.Address(req.Address), logger.BytesRead(count), logger.RequestID(reqID))
	return reply
}

func (n *Node) serveWrite(ctx context.Context, req mcs.WriteRequest) mcs.WriteReply {
	reqID := uuid.NewString()
	ctx, span := telemetry.StartNodeSpan(ctx, telemetry.SpanNodeWrite, n.id, uint8(req.Space),
		telemetry.Address(req.Address), telemetry.Count(len(req.Data)), telemetry.RequestID(reqID))
	defer span.End()

	n.delay()

	reject := func(code uint16) mcs.WriteReply {
		n.logRejected(ctx, "write", reqID, req.Space, req.Address, code)
		span.SetAttributes(telemetry.Code(code))
		return mcs.WriteReply{Code: code}
	}

	img, ok := n.image(req.Space)
	if !ok {
		return reject(mcs.CodeAddressSpaceUnknown)
	}
	if len(req.Data) == 0 || CheckBounds(req.Address, len(req.Data), img.Size()) != nil {
		return reject(mcs.CodeAddressOutOfBounds)
	}
	want := memspace.Range{Start: req.Address, End: req.Address + uint64(len(req.Data))}
	if overlapsAny(n.opts.ReadOnly, want) {
		return reject(mcs.CodeWriteReadOnly)
	}

	if err := img.WriteAt(ctx, req.Data, req.Address); err != nil {
		span.RecordError(err)
		logger.ErrorCtx(ctx, "vnode: image write failed",
			logger.Node(n.id), logger.Space(uint8(req.Space)),
			logger.Address(req.Address), logger.RequestID(reqID), logger.Err(err))
		return reject(mcs.CodePermanentError)
	}

	span.SetAttributes(telemetry.Code(mcs.CodeOK), telemetry.BytesWritten(len(req.Data)))
	logger.DebugCtx(ctx, "vnode: write",
		logger.Node(n.id), logger.Space(uint8(req.Space)),
		logger.Address(req.Address), logger.BytesWritten(len(req.Data)), logger.RequestID(reqID))
	return mcs.WriteReply{Code: mcs.CodeOK}
}

func (n *Node) logRejected(ctx context.Context, op, reqID string, space mcs.Space, addr uint64, code uint16) {
	logger.DebugCtx(ctx, "vnode: request rejected",
		logger.Operation(op), logger.Node(n.id), logger.Space(uint8(space)),
		logger.Address(addr), logger.Code(code), logger.RequestID(reqID))
}

func (n *Node) delay() {
	if n.opts.Latency > 0 {
		time.Sleep(n.opts.Latency)
	}
}

func overlapsAny(ranges []memspace.Range, r memspace.Range) bool {
	return slices.ContainsFunc(ranges, r.Overlaps)
}

// enqueue appends fn to the worker queue. The queue is unbounded so that
// reply callbacks running on the worker may submit follow-up requests.
func (n *Node) enqueue(fn func()) bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.queue = append(n.queue, fn)
	n.mu.Unlock()

	n.signal()
	return true
}

func (n *Node) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *Node) run() {
	defer n.wg.Done()

	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			closed := n.closed
			n.mu.Unlock()
			if closed {
				return
			}
			<-n.wake
			continue
		}
		fn := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()

		fn()
	}
}
