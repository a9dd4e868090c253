package buckets

import (
	"encoding/binary"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxmesh/internal/meshing"
	"voxmesh/internal/world"
)

// quadGeometry returns n quads of vertices with 0,1,2,0,2,3 index patterns.
func quadGeometry(n int) ([]meshing.Vertex, []uint32) {
	vs := make([]meshing.Vertex, 0, n*meshing.VerticesPerQuad)
	idx := make([]uint32, 0, n*meshing.IndicesPerQuad)
	for q := 0; q < n; q++ {
		for c := 0; c < meshing.VerticesPerQuad; c++ {
			vs = append(vs, meshing.Vertex{X: int32(q), Y: int32(c), Texture: 1})
		}
		for _, k := range []uint32{0, 1, 2, 0, 2, 3} {
			idx = append(idx, uint32(q*meshing.VerticesPerQuad)+k)
		}
	}
	return vs, idx
}

func newManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func allocQuads(t *testing.T, m *Manager, c world.ChunkCoord, side world.BlockSide, quads int) (Allocation, []Eviction) {
	t.Helper()
	vs, idx := quadGeometry(quads)
	a, ev, err := m.Allocate(c, side, vs, idx)
	require.NoError(t, err)
	require.NoError(t, m.Check())
	return a, ev
}

var (
	chunkA = world.ChunkCoord{X: 0}
	chunkB = world.ChunkCoord{X: 1}
	chunkC = world.ChunkCoord{X: 2}
	chunkD = world.ChunkCoord{X: 3}
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{VertexCapacity: 1022, IndexCapacity: 1536, BucketsPerSide: 1}.Validate())
	assert.Error(t, Config{VertexCapacity: 1024, IndexCapacity: 1535, BucketsPerSide: 1}.Validate())
	assert.Error(t, Config{VertexCapacity: 1024, IndexCapacity: 1536}.Validate())

	cfg := DefaultConfig()
	assert.Equal(t, 256, cfg.QuadsPerBucket())
	assert.Equal(t, 0, cfg.BucketsNeeded(0))
	assert.Equal(t, 1, cfg.BucketsNeeded(1024))
	assert.Equal(t, 2, cfg.BucketsNeeded(1028))
	assert.Equal(t, 2048*1024*meshing.VertexSize, cfg.VertexBufferSize())
}

func TestSplitAcrossTwoBuckets(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 1024, IndexCapacity: 1536, BucketsPerSide: 2})

	// 375 quads = 1500 vertices.
	a, ev := allocQuads(t, m, chunkA, world.SideTop, 375)
	assert.Empty(t, ev)
	require.Len(t, a.Placements, 2)
	assert.Equal(t, chunkA, a.Chunk)
	assert.Equal(t, world.SideTop, a.Side)

	first, second := a.Placements[0], a.Placements[1]
	assert.Equal(t, 1024, first.VertexCount)
	assert.Equal(t, 1536, first.IndexCount)
	assert.Equal(t, 476, second.VertexCount)
	assert.Equal(t, 714, second.IndexCount)

	assert.Equal(t, 0, first.Bucket)
	assert.Equal(t, 1, second.Bucket)
	assert.Equal(t, 1024*meshing.VertexSize, second.VertexOffset)
	assert.Equal(t, 1536*meshing.IndexSize, second.IndexOffset)
	assert.Equal(t, 1536, second.FirstIndex)
	assert.Equal(t, 1024, second.BaseVertex)
	assert.Len(t, second.Vertices, 476*meshing.VertexSize)
	assert.Len(t, second.Indices, 714*meshing.IndexSize)

	// Indices are rebased to the bucket's first vertex.
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(second.Indices[0:]))
	assert.Equal(t, uint32(475), binary.LittleEndian.Uint32(second.Indices[len(second.Indices)-4:]))
	// The bucket's first vertex is quad 256.
	assert.Equal(t, int32(256), meshing.DecodeVertex(second.Vertices).X)

	held, ok := m.Lookup(chunkA)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, held[world.SideTop].Buckets())
	assert.Equal(t, 2, m.Occupied(world.SideTop))
	assert.Zero(t, m.Occupied(world.SideBottom))

	b := m.Bucket(world.SideTop, 1)
	assert.True(t, b.Owned)
	assert.Equal(t, chunkA, b.Owner)
	assert.Equal(t, 476, b.VertexCount)
}

func TestEvictLeastRecentlyUsedHolder(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 1024, IndexCapacity: 1536, BucketsPerSide: 2})

	m.SetFrame(1)
	allocQuads(t, m, chunkA, world.SideTop, 375)
	allocQuads(t, m, chunkA, world.SideFront, 1)

	m.SetFrame(2)
	a, ev := allocQuads(t, m, chunkB, world.SideTop, 300)

	require.Len(t, ev, 1)
	assert.Equal(t, Eviction{Chunk: chunkA, Side: world.SideTop, Buckets: []int{0, 1}, Kind: Evicted}, ev[0])
	assert.ElementsMatch(t, []int{0, 1}, a.Buckets())

	held, ok := m.Lookup(chunkA)
	require.True(t, ok, "A still holds its FRONT bucket")
	_, hasTop := held[world.SideTop]
	assert.False(t, hasTop)
	assert.Contains(t, held, world.SideFront)

	for _, i := range a.Buckets() {
		assert.Equal(t, chunkB, m.Bucket(world.SideTop, i).Owner)
	}
	assert.Equal(t, uint64(1), m.Stats().Evictions)
}

func TestEvictionOfOnlySideRemovesEntry(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 1})
	m.SetFrame(1)
	allocQuads(t, m, chunkA, world.SideTop, 1)
	m.SetFrame(2)
	allocQuads(t, m, chunkB, world.SideTop, 1)

	assert.False(t, m.Holds(chunkA))
	assert.True(t, m.Holds(chunkB))
	assert.Equal(t, 1, m.Chunks())
}

func TestEvictsOldestWithPositionTieBreak(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 3})

	m.SetFrame(1)
	allocQuads(t, m, chunkC, world.SideTop, 1)
	allocQuads(t, m, chunkB, world.SideTop, 1)
	m.SetFrame(2)
	allocQuads(t, m, chunkA, world.SideTop, 1)

	// B and C share frame 1; B has the lower position.
	m.SetFrame(3)
	_, ev := allocQuads(t, m, chunkD, world.SideTop, 1)
	require.Len(t, ev, 1)
	assert.Equal(t, chunkB, ev[0].Chunk)

	// Touching C makes A the oldest.
	m.SetFrame(4)
	require.True(t, m.Touch(chunkC))
	m.SetFrame(5)
	_, ev = allocQuads(t, m, chunkB, world.SideTop, 1)
	require.Len(t, ev, 1)
	assert.Equal(t, chunkA, ev[0].Chunk)
}

func TestRemeshReusesOwnBuckets(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 3})
	m.SetFrame(1)
	first, _ := allocQuads(t, m, chunkA, world.SideTop, 3)
	m.SetFrame(9)
	again, ev := allocQuads(t, m, chunkA, world.SideTop, 3)
	assert.Empty(t, ev)
	assert.Equal(t, first.Buckets(), again.Buckets())

	// Shrinking releases the tail.
	smaller, ev := allocQuads(t, m, chunkA, world.SideTop, 1)
	assert.Equal(t, first.Buckets()[:1], smaller.Buckets())
	require.Len(t, ev, 1)
	assert.Equal(t, Released, ev[0].Kind)
	assert.Equal(t, first.Buckets()[1:], ev[0].Buckets)
	assert.Equal(t, 1, m.Occupied(world.SideTop))
}

func TestNeverEvictsRequestingChunk(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 3})
	m.SetFrame(1)
	allocQuads(t, m, chunkA, world.SideTop, 2)
	m.SetFrame(2)
	allocQuads(t, m, chunkB, world.SideTop, 1)

	// A is older than B but grows into the whole pool: B must go, not A.
	m.SetFrame(3)
	a, ev := allocQuads(t, m, chunkA, world.SideTop, 3)
	require.Len(t, ev, 1)
	assert.Equal(t, chunkB, ev[0].Chunk)
	assert.Len(t, a.Placements, 3)
}

func TestOutOfMemoryLeavesStateUntouched(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 1024, IndexCapacity: 1536, BucketsPerSide: 2})
	allocQuads(t, m, chunkA, world.SideTop, 10)

	vs, idx := quadGeometry(600) // 2400 vertices, three buckets
	_, ev, err := m.Allocate(chunkB, world.SideTop, vs, idx)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.NotErrorIs(t, err, ErrPoolExhausted)
	assert.Empty(t, ev)
	assert.True(t, m.Holds(chunkA))
	assert.False(t, m.Holds(chunkB))
	assert.Equal(t, 1, m.Occupied(world.SideTop))
	require.NoError(t, m.Check())
}

func TestPinnedHoldersAreNotEvicted(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 2})
	m.SetFrame(1)
	allocQuads(t, m, chunkA, world.SideTop, 2)
	m.Pin(chunkA)

	m.SetFrame(2)
	vs, idx := quadGeometry(1)
	_, _, err := m.Allocate(chunkB, world.SideTop, vs, idx)
	require.ErrorIs(t, err, ErrPoolExhausted)
	assert.Equal(t, 2, m.Occupied(world.SideTop))
	held, _ := m.Lookup(chunkA)
	assert.Len(t, held[world.SideTop].Spans, 2)

	m.Unpin(chunkA)
	_, ev, err := m.Allocate(chunkB, world.SideTop, vs, idx)
	require.NoError(t, err)
	require.Len(t, ev, 1)
	assert.Equal(t, chunkA, ev[0].Chunk)
	// A's extra bucket is freed with it.
	assert.Equal(t, 1, m.Occupied(world.SideTop))
	require.NoError(t, m.Check())
}

func TestPinnedRequesterIsRejected(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 2})
	m.Pin(chunkA)
	m.Pin(chunkA)
	m.Unpin(chunkA)
	assert.True(t, m.Pinned(chunkA))

	vs, idx := quadGeometry(1)
	_, _, err := m.Allocate(chunkA, world.SideTop, vs, idx)
	assert.ErrorIs(t, err, ErrChunkPinned)

	m.Unpin(chunkA)
	assert.False(t, m.Pinned(chunkA))
}

func TestInvalidGeometry(t *testing.T) {
	m := newManager(t, DefaultConfig())
	vs, idx := quadGeometry(2)

	_, _, err := m.Allocate(chunkA, world.SideTop, vs[:7], idx)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, _, err = m.Allocate(chunkA, world.SideTop, vs, idx[:11])
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, _, err = m.Allocate(chunkA, world.BlockSide(6), vs, idx)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	assert.False(t, m.Holds(chunkA))
}

func TestEmptyMeshReleasesSide(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 4})
	allocQuads(t, m, chunkA, world.SideLeft, 2)
	a, ev := allocQuads(t, m, chunkA, world.SideLeft, 0)
	assert.Empty(t, a.Placements)
	require.Len(t, ev, 1)
	assert.Equal(t, Released, ev[0].Kind)
	assert.False(t, m.Holds(chunkA))
}

func TestFreeReleasesAllSides(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 4})
	m.SetFrame(3)
	for _, side := range world.Sides {
		allocQuads(t, m, chunkA, side, 2)
	}
	m.Pin(chunkA)

	ev := m.Free(chunkA)
	assert.Len(t, ev, world.SideCount)
	for _, side := range world.Sides {
		assert.Zero(t, m.Occupied(side))
	}
	assert.False(t, m.Holds(chunkA))
	assert.False(t, m.Pinned(chunkA))
	assert.Nil(t, m.Free(chunkA))
	require.NoError(t, m.Check())
}

func TestFreeSideKeepsOtherSides(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 4})
	allocQuads(t, m, chunkA, world.SideTop, 1)
	allocQuads(t, m, chunkA, world.SideBottom, 1)

	ev, ok := m.FreeSide(chunkA, world.SideTop)
	require.True(t, ok)
	assert.Equal(t, world.SideTop, ev.Side)
	assert.True(t, m.Holds(chunkA))
	assert.False(t, m.HoldsSide(chunkA, world.SideTop))
	assert.True(t, m.HoldsSide(chunkA, world.SideBottom))
	_, ok = m.FreeSide(chunkA, world.SideTop)
	assert.False(t, ok)
	require.NoError(t, m.Check())
}

func TestSnapshotSerialises(t *testing.T) {
	m := newManager(t, Config{VertexCapacity: 4, IndexCapacity: 6, BucketsPerSide: 2})
	m.SetFrame(1)
	allocQuads(t, m, chunkB, world.SideTop, 1)
	m.SetFrame(2)
	allocQuads(t, m, chunkA, world.SideTop, 1)
	m.Pin(chunkA)

	s := m.Snapshot()
	assert.Equal(t, uint64(2), s.Frame)
	assert.Equal(t, 2, s.Sides[world.SideTop].Occupied)
	assert.Empty(t, s.Sides[world.SideTop].Free)
	require.Len(t, s.Chunks, 2)
	assert.Equal(t, chunkB, s.Chunks[0].Coord)
	assert.True(t, s.Chunks[1].Pinned)
	assert.Equal(t, []int{1}, s.Chunks[1].Sides["top"])
	assert.Equal(t, 2, s.Sides[world.SideTop].Holders)
	require.NotNil(t, s.Sides[world.SideTop].NextVictim)
	assert.Equal(t, chunkB, *s.Sides[world.SideTop].NextVictim)
	assert.Nil(t, s.Sides[world.SideLeft].NextVictim)

	m.Pin(chunkB)
	assert.Nil(t, m.Snapshot().Sides[world.SideTop].NextVictim, "every holder pinned")
	m.Unpin(chunkB)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"occupied":2`)
}

// TestRandomChurnKeepsInvariants drives allocations, frees and pins at random
// and checks the arena after every step, including that each eviction picks
// the least recently accessed eligible holder.
func TestRandomChurnKeepsInvariants(t *testing.T) {
	const pool = 8
	m := newManager(t, Config{VertexCapacity: 8, IndexCapacity: 12, BucketsPerSide: pool})
	rng := rand.New(rand.NewSource(42))

	chunks := make([]world.ChunkCoord, 12)
	for i := range chunks {
		chunks[i] = world.ChunkCoord{X: i % 4, Z: i / 4}
	}

	for step := 0; step < 2000; step++ {
		m.SetFrame(uint64(step / 3))
		c := chunks[rng.Intn(len(chunks))]
		side := world.Sides[rng.Intn(world.SideCount)]

		switch op := rng.Intn(10); {
		case op < 6:
			if m.Pinned(c) {
				break
			}
			expected, hasExpected := oldestEligible(m, side, c)
			vs, idx := quadGeometry(rng.Intn(2 * pool))
			_, ev, err := m.Allocate(c, side, vs, idx)
			if err != nil {
				require.ErrorIs(t, err, ErrPoolExhausted)
				break
			}
			for _, e := range ev {
				if e.Kind == Evicted {
					require.True(t, hasExpected)
					require.Equal(t, expected, e.Chunk, "step %d", step)
					break
				}
			}
		case op < 7:
			m.Free(c)
		case op < 8:
			m.Pin(c)
		case op < 9:
			m.Unpin(c)
		default:
			m.Touch(c)
		}

		require.NoError(t, m.Check(), "step %d", step)
		for _, s := range world.Sides {
			require.LessOrEqual(t, m.Occupied(s), pool)
		}
	}
}

func oldestEligible(m *Manager, side world.BlockSide, requester world.ChunkCoord) (world.ChunkCoord, bool) {
	return m.index.Oldest(side, func(c world.ChunkCoord) bool {
		return c == requester || m.Pinned(c)
	})
}

func BenchmarkAllocateWithEviction(b *testing.B) {
	m, err := New(Config{VertexCapacity: 1024, IndexCapacity: 1536, BucketsPerSide: 64})
	require.NoError(b, err)
	vs, idx := quadGeometry(300)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.SetFrame(uint64(i))
		if _, _, err := m.Allocate(world.ChunkCoord{X: i % 256}, world.SideTop, vs, idx); err != nil {
			b.Fatal(err)
		}
	}
}
