package config

import (
	"fmt"

	"github.com/marmos91/memspace/pkg/mcs"
	"github.com/marmos91/memspace/pkg/memspace"
	"github.com/marmos91/memspace/pkg/metrics"
	"github.com/marmos91/memspace/pkg/vnode"
	"github.com/marmos91/memspace/pkg/vnode/badger"
	"github.com/marmos91/memspace/pkg/vnode/memory"
)

// NodeID returns the parsed node ID.
func (c NodeConfig) NodeID() (mcs.NodeID, error) {
	return mcs.ParseNodeID(c.ID)
}

// MemorySpace returns the parsed memory space.
func (c NodeConfig) MemorySpace() (mcs.Space, error) {
	return ParseSpace(c.Space)
}

// Options converts the fault injection and reply settings to vnode.Options.
func (c NodeConfig) Options() (vnode.Options, error) {
	holes, err := parseRanges(c.Holes)
	if err != nil {
		return vnode.Options{}, fmt.Errorf("node.holes: %w", err)
	}
	readOnly, err := parseRanges(c.ReadOnly)
	if err != nil {
		return vnode.Options{}, fmt.Errorf("node.read_only: %w", err)
	}
	return vnode.Options{
		MaxReply: c.MaxReply,
		Latency:  c.Latency,
		Holes:    holes,
		ReadOnly: readOnly,
	}, nil
}

// OpenImage opens the configured device image.
func OpenImage(cfg NodeConfig) (vnode.Image, error) {
	switch cfg.Image {
	case "memory":
		return memory.New(cfg.Size.Uint64()), nil
	case "badger":
		img, err := badger.Open(badger.Options{
			Path:    cfg.ImagePath,
			Size:    cfg.Size.Uint64(),
			Metrics: metrics.NewImageMetrics("badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger image: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unknown image type: %q", cfg.Image)
	}
}

// NewNode builds a virtual node serving the configured space from the
// configured image. Closing the node does not close the image; the returned
// image must be closed by the caller after the node.
func NewNode(cfg NodeConfig) (*vnode.Node, vnode.Image, error) {
	id, err := cfg.NodeID()
	if err != nil {
		return nil, nil, err
	}
	space, err := cfg.MemorySpace()
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}

	img, err := OpenImage(cfg)
	if err != nil {
		return nil, nil, err
	}

	n := vnode.New(id, opts)
	n.AddSpace(space, img)
	return n, img, nil
}

// CacheOptions converts the cache section to memspace.Options.
func (c CacheConfig) CacheOptions() memspace.Options {
	return memspace.Options{
		MaxChunk:    c.MaxChunk,
		MaxSlotSize: uint64(c.MaxSlot),
		Metrics:     metrics.NewCacheMetrics(),
	}
}
