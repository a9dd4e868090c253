package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSetBlockTracksEmptiness(t *testing.T) {
	c := NewChunk(ChunkCoord{})
	assert.True(t, c.IsEmpty())
	c.SetBlock(3, 4, 5, BlockTypeDirt)
	assert.False(t, c.IsEmpty())
	assert.Equal(t, BlockTypeDirt, c.GetBlock(3, 4, 5))
	c.SetBlock(3, 4, 5, BlockTypeAir)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, BlockTypeAir, c.GetBlock(16, 0, 0))
}

func TestStoreEventsOnAddAndRemove(t *testing.T) {
	cs := NewChunkStore()
	a := ChunkCoord{X: 0, Y: 0, Z: 0}
	b := ChunkCoord{X: 1, Y: 0, Z: 0}

	cs.AddChunk(a, NewChunk(a))
	assert.Equal(t, []Event{{Kind: EventLoaded, Coord: a}}, cs.DrainEvents())
	assert.Empty(t, cs.DrainEvents())

	cs.AddChunk(b, NewChunk(b))
	assert.Equal(t, []Event{
		{Kind: EventLoaded, Coord: b},
		{Kind: EventDirty, Coord: a},
	}, cs.DrainEvents())

	require.True(t, cs.RemoveChunk(a))
	assert.Equal(t, []Event{
		{Kind: EventUnloaded, Coord: a},
		{Kind: EventDirty, Coord: b},
	}, cs.DrainEvents())
	assert.False(t, cs.RemoveChunk(a))
	assert.Equal(t, 1, cs.Len())
}

func TestStoreSetMarksBorderNeighboursDirty(t *testing.T) {
	cs := NewChunkStore()
	a := ChunkCoord{}
	left := ChunkCoord{X: -1}
	cs.AddChunk(a, NewChunk(a))
	cs.AddChunk(left, NewChunk(left))
	cs.DrainEvents()

	cs.Set(0, 3, 3, BlockTypeWood)
	assert.Equal(t, []Event{
		{Kind: EventDirty, Coord: a},
		{Kind: EventDirty, Coord: left},
	}, cs.DrainEvents())
	assert.Equal(t, BlockTypeWood, cs.Get(0, 3, 3))

	// Unchanged value publishes nothing.
	cs.Set(0, 3, 3, BlockTypeWood)
	assert.Empty(t, cs.DrainEvents())
}

func TestPaddedCopiesNeighbourFaces(t *testing.T) {
	cs := NewChunkStore()
	a := ChunkCoord{}
	top := a.Neighbor(SideTop)
	back := a.Neighbor(SideBack)
	cs.AddChunk(a, NewChunk(a))
	cs.AddChunk(top, NewChunk(top))
	cs.AddChunk(back, NewChunk(back))

	cs.Set(2, 2, 2, BlockTypeDirt)
	cs.Set(5, ChunkSize, 7, BlockTypeGlass)   // bottom layer of top neighbour
	cs.Set(ChunkSize, 9, 1, BlockTypeWhite)   // front layer of back neighbour
	cs.Set(5, ChunkSize+1, 7, BlockTypeGrass) // not adjacent

	p, ok := cs.Padded(a)
	require.True(t, ok)
	assert.Equal(t, a, p.Coord())

	b, ok := p.Block(2, 2, 2)
	assert.True(t, ok)
	assert.Equal(t, BlockTypeDirt, b)

	b, _ = p.Block(5, ChunkSize, 7)
	assert.Equal(t, BlockTypeGlass, b)
	b, _ = p.Block(ChunkSize, 9, 1)
	assert.Equal(t, BlockTypeWhite, b)

	// Missing neighbours read as available air.
	b, ok = p.Block(-1, 0, 0)
	assert.True(t, ok)
	assert.Equal(t, BlockTypeAir, b)

	_, ok = p.Block(ChunkSize+1, 0, 0)
	assert.False(t, ok)
	assert.False(t, p.IsEmpty())

	_, ok = cs.Padded(ChunkCoord{X: 99})
	assert.False(t, ok)
}

func TestPaddedMarkUnavailable(t *testing.T) {
	p := NewPadded(ChunkCoord{})
	assert.True(t, p.IsEmpty())
	p.MarkUnavailable(SideLeft)

	_, ok := p.Block(4, 4, -1)
	assert.False(t, ok)
	_, ok = p.Block(4, 4, 0)
	assert.True(t, ok)
	_, ok = p.Block(4, 4, ChunkSize)
	assert.True(t, ok)
}

func TestFlatGeneratorPopulate(t *testing.T) {
	c := NewChunk(ChunkCoord{})
	g := NewFlatGenerator(5)
	g.PopulateChunk(c)

	assert.Equal(t, BlockTypeWhite, c.GetBlock(0, 0, 0))
	for y := 1; y < 5; y++ {
		assert.Equal(t, BlockTypeDirt, c.GetBlock(0, y, 0))
	}
	assert.Equal(t, BlockTypeGrass, c.GetBlock(0, 5, 0))
	assert.Equal(t, BlockTypeAir, c.GetBlock(0, 6, 0))

	above := NewChunk(ChunkCoord{Y: 1})
	g.PopulateChunk(above)
	assert.True(t, above.IsEmpty())
}

func TestGeneratorDeterministic(t *testing.T) {
	g1 := NewGenerator(42)
	g2 := NewGenerator(42)
	for i := 0; i < 64; i++ {
		x, z := i*37-500, i*11+3
		assert.Equal(t, g1.HeightAt(x, z), g2.HeightAt(x, z))
		h := g1.HeightAt(x, z)
		assert.GreaterOrEqual(t, h, 24)
		assert.LessOrEqual(t, h, 48)
	}
}

func TestHeightNoiseRangeAndSeeds(t *testing.T) {
	a := newHeightNoise(1, 4, 0.5, 2)
	b := newHeightNoise(2, 4, 0.5, 2)
	differ := false
	for i := 0; i < 200; i++ {
		x, z := float64(i)*0.37-20, float64(i)*0.11+5
		v := a.at(x, z)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
		assert.InDelta(t, v, a.at(x+1e-4, z), 1e-2, "continuous at %v,%v", x, z)
		if v != b.at(x, z) {
			differ = true
		}
	}
	assert.True(t, differ, "seed changes the terrain")
	assert.Zero(t, newHeightNoise(1, 0, 0.5, 2).at(3, 4))
}

func TestStreamerSyncLoadsColumns(t *testing.T) {
	cs := NewChunkStore()
	st := NewChunkStreamer(cs, NewFlatGenerator(20), 1)
	defer st.Close()

	st.StreamChunksAroundSync(ChunkCoord{}, 1)
	// Radius 1 covers 5 columns, each two chunks tall at height 20.
	assert.Equal(t, 10, cs.Len())
	assert.True(t, cs.HasChunk(ChunkCoord{X: 1, Y: 1, Z: 0}))
	assert.False(t, cs.HasChunk(ChunkCoord{X: 1, Y: 0, Z: 1}))

	removed := st.EvictFarChunks(ChunkCoord{X: 10}, 1)
	assert.Equal(t, 10, removed)
	assert.Zero(t, cs.Len())
}

func BenchmarkPopulateChunk(b *testing.B) {
	g := NewGenerator(1)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ch := NewChunk(ChunkCoord{X: i % 8, Y: 1, Z: 0})
		g.PopulateChunk(ch)
	}
}

func BenchmarkPadded(b *testing.B) {
	cs := NewChunkStore()
	st := NewChunkStreamer(cs, NewGenerator(1), 1)
	defer st.Close()
	st.StreamChunksAroundSync(ChunkCoord{}, 2)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = cs.Padded(ChunkCoord{X: 0, Y: 1, Z: 0})
	}
}
