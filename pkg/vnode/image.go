package vnode

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrOutOfBounds is returned by images for accesses past their size.
var ErrOutOfBounds = errors.New("vnode: address out of bounds")

// Image is the backing memory of one space on a virtual node.
//
// Implementations must be safe for concurrent use. Bytes that were never
// written read as zero.
type Image interface {
	// ReadAt fills p from addr. Reads that extend past Size return
	// ErrOutOfBounds and read nothing.
	ReadAt(ctx context.Context, p []byte, addr uint64) error

	// WriteAt stores p at addr. Writes that extend past Size return
	// ErrOutOfBounds and store nothing.
	WriteAt(ctx context.Context, p []byte, addr uint64) error

	// Size returns the number of addressable bytes.
	Size() uint64

	// Close releases resources held by the image.
	Close() error
}

// CheckBounds returns ErrOutOfBounds unless [addr, addr+n) lies within size.
func CheckBounds(addr uint64, n int, size uint64) error {
	end := addr + uint64(n)
	if n < 0 || end < addr || end > size {
		return fmt.Errorf("%w: %d bytes at 0x%x, size 0x%x", ErrOutOfBounds, n, addr, size)
	}
	return nil
}

// ImageMetrics receives observations from persistent images. A nil
// ImageMetrics disables collection.
type ImageMetrics interface {
	// RecordPageRead records a page lookup; present is false when the page
	// was never written and read as zeros.
	RecordPageRead(present bool)

	// ObserveImageOp records one ReadAt or WriteAt.
	ObserveImageOp(op string, bytes int, duration time.Duration, err error)
}
