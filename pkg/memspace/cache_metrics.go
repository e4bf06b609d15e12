package memspace

import "time"

// CacheMetrics receives observations from a Cache. It is optional: a nil
// CacheMetrics disables collection.
type CacheMetrics interface {
	// ObserveChunkRead records a chunk reply that was copied into a slot.
	ObserveChunkRead(bytes int, duration time.Duration)

	// RecordChunkSkipped records a zero-length chunk reply.
	RecordChunkSkipped()

	// RecordRead records a Read call as a hit or a miss.
	RecordRead(hit bool)

	// ObserveWrite records a completed remote write and its status code.
	ObserveWrite(bytes int, code uint16, duration time.Duration)

	// RecordLoadComplete records the end of a prefetch.
	RecordLoadComplete(slots int, bytes uint64, duration time.Duration)

	// RecordFault records a prefetch that stopped on an error. kind is one of
	// "spurious", "overflow" or "read".
	RecordFault(kind string)
}

func observeChunkRead(m CacheMetrics, bytes int, d time.Duration) {
	if m != nil {
		m.ObserveChunkRead(bytes, d)
	}
}

func recordChunkSkipped(m CacheMetrics) {
	if m != nil {
		m.RecordChunkSkipped()
	}
}

func recordRead(m CacheMetrics, hit bool) {
	if m != nil {
		m.RecordRead(hit)
	}
}

func observeWrite(m CacheMetrics, bytes int, code uint16, d time.Duration) {
	if m != nil {
		m.ObserveWrite(bytes, code, d)
	}
}

func recordLoadComplete(m CacheMetrics, slots int, bytes uint64, d time.Duration) {
	if m != nil {
		m.RecordLoadComplete(slots, bytes, d)
	}
}

func recordFault(m CacheMetrics, kind string) {
	if m != nil {
		m.RecordFault(kind)
	}
}
