package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for memory configuration operations.
const (
	AttrNode       = "mcs.node"
	AttrSpace      = "mcs.space"
	AttrAddress    = "mcs.address"
	AttrCount      = "mcs.count"
	AttrBytesRead  = "mcs.bytes_read"
	AttrBytesWrite = "mcs.bytes_written"
	AttrCode       = "mcs.code"
	AttrRequestID  = "mcs.request_id"

	AttrCacheHit   = "cache.hit"
	AttrCacheSlots = "cache.slots"
	AttrCacheState = "cache.state"

	AttrStoreType = "store.type"
)

// Span names. Format: <component>.<operation>
const (
	SpanCacheFill  = "cache.fill"
	SpanCacheChunk = "cache.chunk_read"
	SpanCacheWrite = "cache.write"

	SpanNodeRead  = "vnode.read"
	SpanNodeWrite = "vnode.write"
)

// Node returns the node ID attribute.
func Node(id fmt.Stringer) attribute.KeyValue {
	return attribute.String(AttrNode, id.String())
}

// Space returns the memory space attribute.
func Space(space uint8) attribute.KeyValue {
	return attribute.Int(AttrSpace, int(space))
}

// Address returns the address attribute.
func Address(addr uint64) attribute.KeyValue {
	return attribute.Int64(AttrAddress, int64(addr))
}

// Count returns the requested byte count attribute.
func Count(n int) attribute.KeyValue {
	return attribute.Int(AttrCount, n)
}

// BytesRead returns the attribute for bytes returned by a read.
func BytesRead(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesRead, n)
}

// BytesWritten returns the attribute for bytes submitted by a write.
func BytesWritten(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesWrite, n)
}

// Code returns the remote status code attribute.
func Code(code uint16) attribute.KeyValue {
	return attribute.Int(AttrCode, int(code))
}

// RequestID returns the transport request ID attribute.
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// CacheHit returns the cache hit attribute.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSlots returns the number of disjoint cache slots.
func CacheSlots(n int) attribute.KeyValue {
	return attribute.Int(AttrCacheSlots, n)
}

// StoreType returns the device image store type attribute.
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// StartCacheSpan starts a span for a cache operation bound to one node and
// space.
func StartCacheSpan(ctx context.Context, name string, node fmt.Stringer, space uint8, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, 2+len(attrs))
	allAttrs = append(allAttrs, Node(node), Space(space))
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartNodeSpan starts a server-side span for a request handled by a
// virtual node.
func StartNodeSpan(ctx context.Context, name string, node fmt.Stringer, space uint8, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, 2+len(attrs))
	allAttrs = append(allAttrs, Node(node), Space(space))
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...), trace.WithSpanKind(trace.SpanKindServer))
}
