package vnode_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/memspace/pkg/mcs"
	"github.com/marmos91/memspace/pkg/memspace"
	"github.com/marmos91/memspace/pkg/vnode"
)

// fill prefetches c and waits for the load to finish or fault.
func fill(t *testing.T, c *memspace.Cache) memspace.Event {
	t.Helper()
	ch := make(chan memspace.Event, 1)
	remove := c.Subscribe(func(ev memspace.Event) error {
		ch <- ev
		return nil
	})
	defer remove()

	require.NoError(t, c.FillCache(context.Background()))
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("prefetch did not finish")
		return memspace.Event{}
	}
}

func TestCacheOverNode_Prefetch(t *testing.T) {
	n, data := newNode(t, vnode.Options{MaxReply: 24}, 1024)

	c := memspace.New(n, nodeID, mcs.SpaceConfig, memspace.Options{})
	require.NoError(t, c.AddRangeToCache(0, 200))
	require.NoError(t, c.AddRangeToCache(512, 700))

	notified := make(chan memspace.Range, 4)
	_, err := c.AddRangeListener(150, 160, func(ev memspace.Event) error {
		notified <- ev.Range
		return nil
	})
	require.NoError(t, err)

	ev := fill(t, c)
	require.Equal(t, memspace.EventLoadingComplete, ev.Type)
	assert.Equal(t, memspace.StateDone, c.State())

	got, ok := c.Read(512, 188)
	require.True(t, ok)
	assert.Equal(t, data[512:700], got)

	select {
	case r := <-notified:
		assert.Equal(t, memspace.Range{Start: 150, End: 160}, r)
	default:
		t.Fatal("listener was not notified")
	}
	assert.Empty(t, notified)
}

func TestCacheOverNode_HoleSkipped(t *testing.T) {
	n, data := newNode(t, vnode.Options{Holes: []memspace.Range{{Start: 70, End: 71}}}, 256)

	c := memspace.New(n, nodeID, mcs.SpaceConfig, memspace.Options{})
	require.NoError(t, c.AddRangeToCache(0, 150))

	var holeCalls int
	_, _ = c.AddRangeListener(64, 128, func(memspace.Event) error {
		holeCalls++
		return nil
	})

	ev := fill(t, c)
	require.Equal(t, memspace.EventLoadingComplete, ev.Type)
	assert.Zero(t, holeCalls)

	got, ok := c.Read(128, 22)
	require.True(t, ok)
	assert.Equal(t, data[128:150], got)
	assert.False(t, c.Slots()[0].Loaded)
}

func TestCacheOverNode_OutOfBoundsFaults(t *testing.T) {
	n, _ := newNode(t, vnode.Options{}, 100)

	c := memspace.New(n, nodeID, mcs.SpaceConfig, memspace.Options{})
	require.NoError(t, c.AddRangeToCache(64, 200))

	ev := fill(t, c)
	require.Equal(t, memspace.EventLoadFault, ev.Type)
	assert.ErrorIs(t, ev.Err, memspace.ErrReadFailed)
	assert.Equal(t, memspace.StateFaulted, c.State())
}

func TestCacheOverNode_WriteThrough(t *testing.T) {
	n, _ := newNode(t, vnode.Options{ReadOnly: []memspace.Range{{Start: 32, End: 40}}}, 64)

	c := memspace.New(n, nodeID, mcs.SpaceConfig, memspace.Options{})
	require.NoError(t, c.AddRangeToCache(0, 64))
	fill(t, c)

	codes := make(chan uint16, 2)
	require.NoError(t, c.Write(context.Background(), 8, []byte{0xCA, 0xFE}, func(r mcs.WriteReply) { codes <- r.Code }))
	require.NoError(t, c.Write(context.Background(), 34, []byte{0x01}, func(r mcs.WriteReply) { codes <- r.Code }))

	assert.Equal(t, mcs.CodeOK, <-codes)
	assert.Equal(t, mcs.CodeWriteReadOnly, <-codes)

	r := readSync(t, n, mcs.SpaceConfig, 8, 2)
	assert.Equal(t, []byte{0xCA, 0xFE}, r.Data)

	local, ok := c.Read(34, 1)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01}, local, "rejected write stays applied locally")
}
