// Package badger provides a persistent device image for virtual nodes,
// stored as fixed-size pages in BadgerDB.
//
// Key layout:
//
//	cfg:size          image size, 8 bytes big-endian
//	pg:<16 hex>       one page, PageSize bytes
//
// Pages that were never written are absent and read as zeros.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/memspace/internal/logger"
	"github.com/marmos91/memspace/pkg/vnode"
)

// PageSize is the number of image bytes stored under one key.
const PageSize = 256

// ErrSizeMismatch is returned when an existing database was created for an
// image of a different size.
var ErrSizeMismatch = errors.New("badger image: size mismatch")

const (
	prefixPage   = "pg:"
	prefixConfig = "cfg:"
)

func keyPage(n uint64) []byte {
	return fmt.Appendf(nil, "%s%016x", prefixPage, n)
}

func keySize() []byte {
	return []byte(prefixConfig + "size")
}

// Image is a BadgerDB-backed vnode.Image.
type Image struct {
	db      *badgerdb.DB
	size    uint64
	metrics vnode.ImageMetrics
}

// Options configure Open.
type Options struct {
	// Path is the database directory. Empty opens an in-memory database.
	Path string

	// Size is the image size in bytes.
	Size uint64

	// Metrics is optional.
	Metrics vnode.ImageMetrics
}

// Open opens or creates the image database at opts.Path. Reopening an
// existing database with a different size fails with ErrSizeMismatch.
func Open(opts Options) (*Image, error) {
	if opts.Size == 0 {
		return nil, fmt.Errorf("badger image: size must be positive")
	}

	bopts := badgerdb.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	}

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger image at %q: %w", opts.Path, err)
	}

	img := &Image{db: db, size: opts.Size, metrics: opts.Metrics}
	if err := img.initSize(); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("badger image opened",
		logger.Path(opts.Path), logger.StoreType("badger"), logger.Count(int(opts.Size)))
	return img, nil
}

// initSize records the size on first use and checks it afterwards.
func (b *Image) initSize() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keySize())
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set(keySize(), binary.BigEndian.AppendUint64(nil, b.size))
		}
		if err != nil {
			return fmt.Errorf("failed to read image size: %w", err)
		}

		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt image size record (%d bytes)", len(val))
			}
			if stored := binary.BigEndian.Uint64(val); stored != b.size {
				return fmt.Errorf("%w: database holds %d bytes, requested %d", ErrSizeMismatch, stored, b.size)
			}
			return nil
		})
	})
}

// ReadAt implements vnode.Image.
func (b *Image) ReadAt(ctx context.Context, p []byte, addr uint64) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := vnode.CheckBounds(addr, len(p), b.size); err != nil {
		return err
	}

	start := time.Now()
	defer func() { b.observe("read", len(p), start, err) }()

	return b.db.View(func(txn *badgerdb.Txn) error {
		return forEachPage(addr, len(p), func(page uint64, pageOff, bufOff, n int) error {
			dst := p[bufOff : bufOff+n]

			item, err := txn.Get(keyPage(page))
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				b.recordPage(false)
				clear(dst)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read page %d: %w", page, err)
			}
			b.recordPage(true)

			return item.Value(func(val []byte) error {
				copy(dst, val[pageOff:pageOff+n])
				return nil
			})
		})
	})
}

// WriteAt implements vnode.Image. Partially covered pages are read, patched
// and rewritten within one transaction.
func (b *Image) WriteAt(ctx context.Context, p []byte, addr uint64) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := vnode.CheckBounds(addr, len(p), b.size); err != nil {
		return err
	}

	start := time.Now()
	defer func() { b.observe("write", len(p), start, err) }()

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return forEachPage(addr, len(p), func(page uint64, pageOff, bufOff, n int) error {
			buf := make([]byte, PageSize)

			item, err := txn.Get(keyPage(page))
			switch {
			case errors.Is(err, badgerdb.ErrKeyNotFound):
			case err != nil:
				return fmt.Errorf("failed to read page %d: %w", page, err)
			default:
				if err := item.Value(func(val []byte) error {
					copy(buf, val)
					return nil
				}); err != nil {
					return fmt.Errorf("failed to copy page %d: %w", page, err)
				}
			}

			copy(buf[pageOff:], p[bufOff:bufOff+n])
			if err := txn.Set(keyPage(page), buf); err != nil {
				return fmt.Errorf("failed to store page %d: %w", page, err)
			}
			return nil
		})
	})
}

// Size implements vnode.Image.
func (b *Image) Size() uint64 {
	return b.size
}

// Close implements vnode.Image.
func (b *Image) Close() error {
	return b.db.Close()
}

// forEachPage splits [addr, addr+n) at page boundaries.
func forEachPage(addr uint64, n int, fn func(page uint64, pageOff, bufOff, count int) error) error {
	bufOff := 0
	for bufOff < n {
		cur := addr + uint64(bufOff)
		page := cur / PageSize
		pageOff := int(cur % PageSize)
		count := min(PageSize-pageOff, n-bufOff)

		if err := fn(page, pageOff, bufOff, count); err != nil {
			return err
		}
		bufOff += count
	}
	return nil
}

func (b *Image) recordPage(present bool) {
	if b.metrics != nil {
		b.metrics.RecordPageRead(present)
	}
}

func (b *Image) observe(op string, n int, start time.Time, err error) {
	if b.metrics != nil {
		b.metrics.ObserveImageOp(op, n, time.Since(start), err)
	}
}
