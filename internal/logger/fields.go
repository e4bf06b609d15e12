package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that cache,
// transport and virtual node logs can be correlated.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Remote Node Addressing
	// ========================================================================
	KeyNode      = "node"       // Remote node ID, dotted hex form
	KeySpace     = "space"      // Memory space identifier
	KeyAddress   = "address"    // Address within the space
	KeyCount     = "count"      // Byte count requested
	KeyRange     = "range"      // Half-open address range
	KeyCode      = "code"       // Remote status code
	KeyRequestID = "request_id" // Transport request correlation ID

	// ========================================================================
	// I/O
	// ========================================================================
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"
	KeyOperation    = "operation"

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeySlots      = "slots"       // Number of disjoint cache slots
	KeyCacheHit   = "cache_hit"   // Cache hit indicator
	KeyCacheState = "cache_state" // idle, loading, done, faulted
	KeyListeners  = "listeners"   // Number of registered listeners

	// ========================================================================
	// Device Image Store
	// ========================================================================
	KeyStoreType = "store_type" // memory, badger
	KeyPath      = "path"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// ============================================================================
// Remote Node Addressing
// ============================================================================

// Node returns a slog.Attr for a node ID
func Node(id fmt.Stringer) slog.Attr {
	return slog.String(KeyNode, id.String())
}

// Space returns a slog.Attr for a memory space, printed in hex
func Space(space uint8) slog.Attr {
	return slog.String(KeySpace, fmt.Sprintf("0x%02X", space))
}

// Address returns a slog.Attr for an address, printed in hex
func Address(addr uint64) slog.Attr {
	return slog.String(KeyAddress, fmt.Sprintf("0x%x", addr))
}

// Count returns a slog.Attr for a requested byte count
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Range returns a slog.Attr for a half-open range
func Range(start, end uint64) slog.Attr {
	return slog.String(KeyRange, fmt.Sprintf("[0x%x,0x%x)", start, end))
}

// Code returns a slog.Attr for a remote status code
func Code(code uint16) slog.Attr {
	return slog.String(KeyCode, fmt.Sprintf("0x%04x", code))
}

// RequestID returns a slog.Attr for a transport request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// ============================================================================
// I/O
// ============================================================================

func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// ============================================================================
// Cache Layer
// ============================================================================

func Slots(n int) slog.Attr {
	return slog.Int(KeySlots, n)
}

func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

func CacheState(state string) slog.Attr {
	return slog.String(KeyCacheState, state)
}

func Listeners(n int) slog.Attr {
	return slog.Int(KeyListeners, n)
}

// ============================================================================
// Device Image Store
// ============================================================================

func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// ============================================================================
// Operation Metadata
// ============================================================================

// DurationMs returns a slog.Attr for a duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error. A nil error yields an empty attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
