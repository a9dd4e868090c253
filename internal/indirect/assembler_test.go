package indirect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxmesh/internal/buckets"
	"voxmesh/internal/upload"
	"voxmesh/internal/world"
)

var testConfig = buckets.Config{VertexCapacity: 1024, IndexCapacity: 1536, BucketsPerSide: 4}

func TestSlotsStartHiddenAtBucketOrigin(t *testing.T) {
	a := New(testConfig)
	for _, side := range world.Sides {
		cmds := a.Commands(side)
		require.Len(t, cmds, 4)
		for i, c := range cmds {
			assert.Equal(t, Command{FirstIndex: uint32(i * 1536), BaseVertex: int32(i * 1024)}, c)
		}
		assert.Zero(t, a.Visible(side))
	}
	assert.True(t, a.Dirty())

	writes := a.DirtyWrites()
	require.Len(t, writes, 6, "one contiguous run per side")
	for _, w := range writes {
		assert.Equal(t, upload.KindIndirect, w.Target.Kind)
		assert.Zero(t, w.Offset)
		assert.Len(t, w.Payload, 4*CommandSize)
	}
	assert.False(t, a.Dirty())
	assert.Empty(t, a.DirtyWrites())
}

func TestShowRequiresUpload(t *testing.T) {
	a := New(testConfig)
	a.DirtyWrites()

	a.Rebind(world.SideTop, 2, 2*1536, 2*1024, 600)
	err := a.Show(world.SideTop, 2)
	assert.ErrorIs(t, err, ErrNotUploaded)
	assert.False(t, a.Command(world.SideTop, 2).Visible())

	a.MarkUploaded(world.SideTop, 2)
	require.NoError(t, a.Show(world.SideTop, 2))
	c := a.Command(world.SideTop, 2)
	assert.Equal(t, Command{IndexCount: 600, InstanceCount: 1, FirstIndex: 3072, BaseVertex: 2048}, c)
	assert.Equal(t, 1, a.Visible(world.SideTop))

	// owner change: hidden again until the new data is confirmed
	a.Rebind(world.SideTop, 2, 2*1536, 2*1024, 6)
	assert.False(t, a.Uploaded(world.SideTop, 2))
	assert.Zero(t, a.Visible(world.SideTop))
	assert.ErrorIs(t, a.Show(world.SideTop, 2), ErrNotUploaded)
}

func TestHideKeepsSlotAndReshowIsSingleFieldWrite(t *testing.T) {
	a := New(testConfig)
	a.DirtyWrites()
	a.Rebind(world.SideLeft, 1, 1536, 1024, 12)
	a.MarkUploaded(world.SideLeft, 1)
	require.NoError(t, a.Show(world.SideLeft, 1))
	a.DirtyWrites()

	a.Hide(world.SideLeft, 1)
	c := a.Command(world.SideLeft, 1)
	assert.Equal(t, uint32(0), c.InstanceCount)
	assert.Equal(t, uint32(12), c.IndexCount)

	writes := a.DirtyWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, uint64(CommandSize), writes[0].Offset)
	assert.Equal(t, c, DecodeCommand(writes[0].Payload))

	require.NoError(t, a.Show(world.SideLeft, 1), "hide keeps the uploaded flag")
	a.Hide(world.SideLeft, 1)
	a.Hide(world.SideLeft, 1)
	assert.Zero(t, a.Visible(world.SideLeft))
}

func TestReleaseRestoresInitialSlot(t *testing.T) {
	a := New(testConfig)
	a.DirtyWrites()
	a.Rebind(world.SideBack, 3, 4608, 3072, 36)
	a.MarkUploaded(world.SideBack, 3)
	require.NoError(t, a.Show(world.SideBack, 3))

	a.Release(world.SideBack, 3)
	assert.Equal(t, Command{FirstIndex: 4608, BaseVertex: 3072}, a.Command(world.SideBack, 3))
	assert.False(t, a.Uploaded(world.SideBack, 3))
	assert.Zero(t, a.Visible(world.SideBack))
}

func TestDirtyWritesCoalesceRuns(t *testing.T) {
	a := New(testConfig)
	a.DirtyWrites()
	for _, i := range []int{0, 1, 3} {
		a.Rebind(world.SideFront, i, i*1536, i*1024, 6)
	}
	writes := a.DirtyWrites()
	require.Len(t, writes, 2)
	assert.Equal(t, uint64(0), writes[0].Offset)
	assert.Len(t, writes[0].Payload, 2*CommandSize)
	assert.Equal(t, uint64(3*CommandSize), writes[1].Offset)
	assert.Len(t, writes[1].Payload, CommandSize)
}

func TestRequeueAfterFailedUpload(t *testing.T) {
	a := New(testConfig)
	a.DirtyWrites()
	a.Rebind(world.SideRight, 2, 2*1536, 2*1024, 6)
	writes := a.DirtyWrites()
	assert.False(t, a.Dirty())

	a.Requeue(writes)
	again := a.DirtyWrites()
	require.Len(t, again, 1)
	assert.Equal(t, writes[0].Offset, again[0].Offset)
	assert.Equal(t, writes[0].Payload, again[0].Payload)
}

func TestExposedUntilHideIsConfirmed(t *testing.T) {
	a := New(testConfig)
	a.Confirm(a.DirtyWrites())
	a.Rebind(world.SideTop, 1, 1536, 1024, 6)
	a.MarkUploaded(world.SideTop, 1)
	require.NoError(t, a.Show(world.SideTop, 1))
	assert.Zero(t, a.Exposed())
	a.Confirm(a.DirtyWrites())
	assert.Zero(t, a.Exposed())

	a.Release(world.SideTop, 1)
	assert.Equal(t, 1, a.Exposed(), "buffer still draws the old owner")
	a.Requeue(a.DirtyWrites())
	assert.Equal(t, 1, a.Exposed())
	a.Confirm(a.DirtyWrites())
	assert.Zero(t, a.Exposed())

	a.Rebind(world.SideTop, 2, 2*1536, 2*1024, 6)
	a.MarkUploaded(world.SideTop, 2)
	require.NoError(t, a.Show(world.SideTop, 2))
	a.Confirm(a.DirtyWrites())
	a.Hide(world.SideTop, 2)
	assert.Zero(t, a.Exposed(), "a culled slot still points at valid data")
	a.Rebind(world.SideTop, 2, 2*1536, 2*1024, 12)
	assert.Equal(t, 1, a.Exposed())
}

func TestWritesRoundTripThroughUploader(t *testing.T) {
	a := New(testConfig)
	u := upload.NewMemoryUploader(upload.NewLayout(testConfig))
	q := upload.NewQueue()

	a.Rebind(world.SideBottom, 1, 1536, 1024, 42)
	a.MarkUploaded(world.SideBottom, 1)
	require.NoError(t, a.Show(world.SideBottom, 1))
	q.Enqueue(upload.Batch{Commands: a.DirtyWrites()})
	for _, o := range q.Flush(context.Background(), u) {
		require.NoError(t, o.Err)
	}

	id := upload.BufferID{Side: world.SideBottom, Kind: upload.KindIndirect}
	raw := u.Read(id, 0, 4*CommandSize)
	assert.Equal(t, Encode(a.Commands(world.SideBottom)), raw)
	assert.Equal(t, a.Command(world.SideBottom, 1), DecodeCommand(raw[CommandSize:]))
}
