// Package buckets manages per-side arenas of fixed-capacity vertex/index
// buckets carved out of shared GPU buffers.
package buckets

import (
	"errors"
	"fmt"

	"voxmesh/internal/chunkindex"
	"voxmesh/internal/logging"
	"voxmesh/internal/meshing"
	"voxmesh/internal/profiling"
	"voxmesh/internal/world"
)

var (
	// ErrOutOfMemory means a mesh needs more buckets than a side's whole
	// pool. It is a configuration error and will not resolve by waiting.
	ErrOutOfMemory = errors.New("buckets: mesh exceeds pool capacity")
	// ErrPoolExhausted means not enough buckets could be freed right now,
	// because the remaining holders are pinned.
	ErrPoolExhausted = errors.New("buckets: pool exhausted")
	// ErrInvalidGeometry reports vertex/index counts that are not whole quads.
	ErrInvalidGeometry = errors.New("buckets: invalid geometry")
	// ErrChunkPinned is returned when allocating for a chunk whose previous
	// upload is still pending.
	ErrChunkPinned = errors.New("buckets: chunk has a pending upload")
)

// Config sizes the arenas. It is fixed for the lifetime of a Manager.
type Config struct {
	VertexCapacity int `json:"vertex_capacity"`
	IndexCapacity  int `json:"index_capacity"`
	BucketsPerSide int `json:"buckets_per_side"`
}

// DefaultConfig matches 2048 buckets of 1024 vertices / 1536 indices.
func DefaultConfig() Config {
	return Config{VertexCapacity: 1024, IndexCapacity: 1536, BucketsPerSide: 2048}
}

// Validate checks that a bucket holds whole quads.
func (c Config) Validate() error {
	switch {
	case c.VertexCapacity < meshing.VerticesPerQuad || c.VertexCapacity%meshing.VerticesPerQuad != 0:
		return fmt.Errorf("buckets: vertex capacity %d must be a positive multiple of %d", c.VertexCapacity, meshing.VerticesPerQuad)
	case c.IndexCapacity < meshing.IndicesPerQuad || c.IndexCapacity%meshing.IndicesPerQuad != 0:
		return fmt.Errorf("buckets: index capacity %d must be a positive multiple of %d", c.IndexCapacity, meshing.IndicesPerQuad)
	case c.BucketsPerSide <= 0:
		return fmt.Errorf("buckets: buckets per side must be positive, got %d", c.BucketsPerSide)
	}
	return nil
}

// QuadsPerBucket is the number of whole quads a bucket can hold.
func (c Config) QuadsPerBucket() int {
	return min(c.VertexCapacity/meshing.VerticesPerQuad, c.IndexCapacity/meshing.IndicesPerQuad)
}

// BucketsNeeded returns max(ceil(v/Vcap), ceil(i/Icap)) for a whole-quad mesh.
func (c Config) BucketsNeeded(vertices int) int {
	quads := vertices / meshing.VerticesPerQuad
	qpb := c.QuadsPerBucket()
	return (quads + qpb - 1) / qpb
}

// VertexBufferSize is the byte size of one side's shared vertex buffer.
func (c Config) VertexBufferSize() int {
	return c.BucketsPerSide * c.VertexCapacity * meshing.VertexSize
}

// IndexBufferSize is the byte size of one side's shared index buffer.
func (c Config) IndexBufferSize() int {
	return c.BucketsPerSide * c.IndexCapacity * meshing.IndexSize
}

// Bucket is one arena slot.
type Bucket struct {
	Index       int              `json:"index"`
	Owned       bool             `json:"owned"`
	Owner       world.ChunkCoord `json:"owner"`
	LastAccess  uint64           `json:"last_access"`
	VertexCount int              `json:"vertex_count"`
	IndexCount  int              `json:"index_count"`
}

// Placement is one bucket's share of an allocation with the bytes to write.
type Placement struct {
	Bucket      int
	VertexCount int
	IndexCount  int
	// Byte offsets into the side's shared vertex and index buffers.
	VertexOffset int
	IndexOffset  int
	// Element offsets for the indirect draw command.
	FirstIndex int
	BaseVertex int
	Vertices   []byte
	Indices    []byte // rebased to the bucket's first vertex
}

// Allocation is the result of Allocate for one (chunk, side).
type Allocation struct {
	Chunk      world.ChunkCoord
	Side       world.BlockSide
	Placements []Placement
}

func (a Allocation) Buckets() []int {
	out := make([]int, len(a.Placements))
	for i, p := range a.Placements {
		out[i] = p.Bucket
	}
	return out
}

// EvictionKind says why buckets left a chunk.
type EvictionKind uint8

const (
	// Released buckets were given back by their owner (free, unload or a
	// smaller remesh).
	Released EvictionKind = iota
	// Evicted buckets were reclaimed for another chunk.
	Evicted
)

func (k EvictionKind) String() string {
	if k == Evicted {
		return "evicted"
	}
	return "released"
}

// Eviction reports buckets that stopped belonging to (Chunk, Side).
type Eviction struct {
	Chunk   world.ChunkCoord
	Side    world.BlockSide
	Buckets []int
	Kind    EvictionKind
}

// Stats counts manager activity since creation.
type Stats struct {
	Allocations      uint64 `json:"allocations"`
	Evictions        uint64 `json:"evictions"`
	EvictedBuckets   uint64 `json:"evicted_buckets"`
	ReleasedBuckets  uint64 `json:"released_buckets"`
	ExhaustedErrors  uint64 `json:"exhausted_errors"`
	OutOfMemoryError uint64 `json:"out_of_memory_errors"`
}

type pool struct {
	buckets []Bucket
	free    []int // FIFO
}

func (p *pool) popFree() int {
	b := p.free[0]
	p.free = p.free[1:]
	return b
}

// Manager owns the bucket arenas of all six sides and the chunk index.
// It must only be used from one goroutine.
type Manager struct {
	cfg   Config
	frame uint64
	index *chunkindex.State
	sides [world.SideCount]pool
	pins  map[world.ChunkCoord]int
	stats Stats
}

// New creates a manager with every bucket free.
func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:   cfg,
		index: chunkindex.New(),
		pins:  make(map[world.ChunkCoord]int),
	}
	for s := range m.sides {
		p := &m.sides[s]
		p.buckets = make([]Bucket, cfg.BucketsPerSide)
		p.free = make([]int, cfg.BucketsPerSide)
		for i := range p.buckets {
			p.buckets[i] = Bucket{Index: i}
			p.free[i] = i
		}
	}
	logging.Logger().Info("bucket pools created",
		"buckets_per_side", cfg.BucketsPerSide,
		"vertex_capacity", cfg.VertexCapacity,
		"index_capacity", cfg.IndexCapacity)
	return m, nil
}

func (m *Manager) Config() Config { return m.cfg }

// SetFrame sets the logical frame used to timestamp accesses.
func (m *Manager) SetFrame(frame uint64) { m.frame = frame }

func (m *Manager) Frame() uint64 { return m.frame }

func (m *Manager) Stats() Stats { return m.stats }

// Occupied returns the number of owned buckets on side.
func (m *Manager) Occupied(side world.BlockSide) int {
	return m.cfg.BucketsPerSide - len(m.sides[side].free)
}

// Bucket returns a copy of bucket i of side.
func (m *Manager) Bucket(side world.BlockSide, i int) Bucket {
	return m.sides[side].buckets[i]
}

// Lookup returns the side allocations held by chunk.
func (m *Manager) Lookup(chunk world.ChunkCoord) (map[world.BlockSide]chunkindex.Allocation, bool) {
	return m.index.Lookup(chunk)
}

// Holds reports whether chunk owns at least one bucket.
func (m *Manager) Holds(chunk world.ChunkCoord) bool {
	_, ok := m.index.LastAccess(chunk)
	return ok
}

// HoldsSide reports whether chunk holds buckets on side.
func (m *Manager) HoldsSide(chunk world.ChunkCoord, side world.BlockSide) bool {
	return m.index.Held(chunk, side)
}

// LastAccess returns the frame chunk was last touched.
func (m *Manager) LastAccess(chunk world.ChunkCoord) (uint64, bool) {
	return m.index.LastAccess(chunk)
}

// Chunks returns the number of chunks holding buckets.
func (m *Manager) Chunks() int { return m.index.Len() }

// Touch refreshes the LRU timestamp of chunk and its buckets to the current frame.
func (m *Manager) Touch(chunk world.ChunkCoord) bool {
	if !m.index.Touch(chunk, m.frame) {
		return false
	}
	held, _ := m.index.Lookup(chunk)
	for side, a := range held {
		for _, s := range a.Spans {
			m.sides[side].buckets[s.Bucket].LastAccess = m.frame
		}
	}
	return true
}

// Pin marks chunk's buckets as upload-pending. Pinned chunks are never
// chosen for eviction. Pins nest.
func (m *Manager) Pin(chunk world.ChunkCoord) { m.pins[chunk]++ }

// Unpin releases one Pin.
func (m *Manager) Unpin(chunk world.ChunkCoord) {
	if n := m.pins[chunk]; n > 1 {
		m.pins[chunk] = n - 1
	} else {
		delete(m.pins, chunk)
	}
}

func (m *Manager) Pinned(chunk world.ChunkCoord) bool { return m.pins[chunk] > 0 }

// Allocate places the mesh of (chunk, side) into buckets. Buckets already
// held by (chunk, side) are reused first, then free buckets, then buckets
// evicted from the least recently accessed other chunks holding this side.
// On error nothing changes.
func (m *Manager) Allocate(chunk world.ChunkCoord, side world.BlockSide, vertices []meshing.Vertex, indices []uint32) (Allocation, []Eviction, error) {
	defer profiling.Track("buckets.Allocate")()

	nv, ni := len(vertices), len(indices)
	if !side.Valid() {
		return Allocation{}, nil, fmt.Errorf("%w: side %d", ErrInvalidGeometry, side)
	}
	if nv%meshing.VerticesPerQuad != 0 || ni*meshing.VerticesPerQuad != nv*meshing.IndicesPerQuad {
		return Allocation{}, nil, fmt.Errorf("%w: %d vertices, %d indices", ErrInvalidGeometry, nv, ni)
	}
	if m.Pinned(chunk) {
		return Allocation{}, nil, fmt.Errorf("chunk %v side %v: %w", chunk, side, ErrChunkPinned)
	}

	needed := m.cfg.BucketsNeeded(nv)
	if needed > m.cfg.BucketsPerSide {
		m.stats.OutOfMemoryError++
		return Allocation{}, nil, fmt.Errorf("chunk %v side %v needs %d buckets, pool has %d: %w",
			chunk, side, needed, m.cfg.BucketsPerSide, ErrOutOfMemory)
	}

	p := &m.sides[side]
	held, _ := m.index.Side(chunk, side)
	heldBuckets := held.Buckets()

	available := len(p.free) + len(heldBuckets)
	var victims []world.ChunkCoord
	if available < needed {
		m.index.AscendSide(side, func(c world.ChunkCoord, _ uint64) bool {
			if c == chunk || m.Pinned(c) {
				return true
			}
			a, _ := m.index.Side(c, side)
			victims = append(victims, c)
			available += len(a.Spans)
			return available < needed
		})
	}
	if available < needed {
		m.stats.ExhaustedErrors++
		return Allocation{}, nil, fmt.Errorf("chunk %v side %v needs %d buckets, %d obtainable: %w",
			chunk, side, needed, available, ErrPoolExhausted)
	}

	var evictions []Eviction

	reuse := heldBuckets[:min(len(heldBuckets), needed)]
	if extra := heldBuckets[len(reuse):]; len(extra) > 0 {
		m.release(side, extra)
		evictions = append(evictions, Eviction{Chunk: chunk, Side: side, Buckets: extra, Kind: Released})
	}

	for _, v := range victims {
		a, _ := m.index.RemoveSide(v, side)
		bs := a.Buckets()
		m.release(side, bs)
		m.stats.Evictions++
		m.stats.EvictedBuckets += uint64(len(bs))
		evictions = append(evictions, Eviction{Chunk: v, Side: side, Buckets: bs, Kind: Evicted})
		logging.Logger().Debug("evicted chunk side",
			"victim", v.String(), "side", side.String(), "buckets", len(bs), "for", chunk.String())
	}

	take := append([]int(nil), reuse...)
	for len(take) < needed {
		take = append(take, p.popFree())
	}

	alloc := m.place(chunk, side, take, vertices, indices)
	if needed == 0 {
		m.index.RemoveSide(chunk, side)
	} else {
		spans := make([]chunkindex.Span, len(alloc.Placements))
		for i, pl := range alloc.Placements {
			spans[i] = chunkindex.Span{Bucket: pl.Bucket, VertexCount: pl.VertexCount, IndexCount: pl.IndexCount}
		}
		m.index.Record(chunk, side, chunkindex.Allocation{Spans: spans}, m.frame)
		m.stats.Allocations++
	}
	return alloc, evictions, nil
}

// place splits the mesh into consecutive bucket-sized runs and claims the buckets.
func (m *Manager) place(chunk world.ChunkCoord, side world.BlockSide, take []int, vertices []meshing.Vertex, indices []uint32) Allocation {
	alloc := Allocation{Chunk: chunk, Side: side, Placements: make([]Placement, 0, len(take))}
	qpb := m.cfg.QuadsPerBucket()
	quads := len(vertices) / meshing.VerticesPerQuad
	p := &m.sides[side]

	for k, b := range take {
		q0 := k * qpb
		q1 := min(q0+qpb, quads)
		v0, v1 := q0*meshing.VerticesPerQuad, q1*meshing.VerticesPerQuad
		i0, i1 := q0*meshing.IndicesPerQuad, q1*meshing.IndicesPerQuad

		pl := Placement{
			Bucket:       b,
			VertexCount:  v1 - v0,
			IndexCount:   i1 - i0,
			VertexOffset: b * m.cfg.VertexCapacity * meshing.VertexSize,
			IndexOffset:  b * m.cfg.IndexCapacity * meshing.IndexSize,
			FirstIndex:   b * m.cfg.IndexCapacity,
			BaseVertex:   b * m.cfg.VertexCapacity,
		}
		pl.Vertices = meshing.AppendVertices(make([]byte, 0, pl.VertexCount*meshing.VertexSize), vertices[v0:v1])
		pl.Indices = meshing.AppendIndices(make([]byte, 0, pl.IndexCount*meshing.IndexSize), indices[i0:i1], uint32(v0))
		alloc.Placements = append(alloc.Placements, pl)

		p.buckets[b] = Bucket{
			Index:       b,
			Owned:       true,
			Owner:       chunk,
			LastAccess:  m.frame,
			VertexCount: pl.VertexCount,
			IndexCount:  pl.IndexCount,
		}
	}
	return alloc
}

func (m *Manager) release(side world.BlockSide, bs []int) {
	p := &m.sides[side]
	for _, b := range bs {
		p.buckets[b] = Bucket{Index: b, LastAccess: m.frame}
		p.free = append(p.free, b)
	}
	m.stats.ReleasedBuckets += uint64(len(bs))
}

// FreeSide releases the buckets of one side of chunk.
func (m *Manager) FreeSide(chunk world.ChunkCoord, side world.BlockSide) (Eviction, bool) {
	a, ok := m.index.RemoveSide(chunk, side)
	if !ok {
		return Eviction{}, false
	}
	bs := a.Buckets()
	m.release(side, bs)
	m.Touch(chunk)
	return Eviction{Chunk: chunk, Side: side, Buckets: bs, Kind: Released}, true
}

// Free releases every bucket held by chunk, removes its index entry and
// drops any pins.
func (m *Manager) Free(chunk world.ChunkCoord) []Eviction {
	delete(m.pins, chunk)
	held, ok := m.index.Remove(chunk)
	if !ok {
		return nil
	}
	var out []Eviction
	for _, side := range world.Sides {
		a, ok := held[side]
		if !ok {
			continue
		}
		bs := a.Buckets()
		m.release(side, bs)
		out = append(out, Eviction{Chunk: chunk, Side: side, Buckets: bs, Kind: Released})
	}
	return out
}
