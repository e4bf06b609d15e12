// Package memory provides an in-RAM device image for virtual nodes.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/memspace/pkg/vnode"
)

// Image keeps a device image in a byte slice.
type Image struct {
	mu   sync.RWMutex
	data []byte
}

// New returns a zeroed image of size bytes.
func New(size uint64) *Image {
	return &Image{data: make([]byte, size)}
}

// NewFrom returns an image holding a copy of data.
func NewFrom(data []byte) *Image {
	return &Image{data: append([]byte(nil), data...)}
}

func (m *Image) ReadAt(ctx context.Context, p []byte, addr uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := vnode.CheckBounds(addr, len(p), uint64(len(m.data))); err != nil {
		return err
	}
	copy(p, m.data[addr:])
	return nil
}

func (m *Image) WriteAt(ctx context.Context, p []byte, addr uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := vnode.CheckBounds(addr, len(p), uint64(len(m.data))); err != nil {
		return err
	}
	copy(m.data[addr:], p)
	return nil
}

func (m *Image) Size() uint64 {
	return uint64(len(m.data))
}

func (m *Image) Close() error {
	return nil
}
