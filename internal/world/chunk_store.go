package world

import (
	"sync"

	"voxmesh/internal/profiling"
)

// ChunkStore manages the storage and retrieval of chunks. It is the only
// world structure shared between goroutines; lifecycle changes are published
// as events and drained by the owner of the mesh pipeline.
type ChunkStore struct {
	chunks   map[ChunkCoord]*Chunk
	mu       sync.RWMutex
	modCount uint64 // Increases on any chunk add/remove

	events eventQueue
}

// NewChunkStore creates a new chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks: make(map[ChunkCoord]*Chunk),
	}
}

// GetChunk returns the chunk at coord.
// If the chunk doesn't exist and create is true, an empty one is created and
// announced as loaded.
func (cs *ChunkStore) GetChunk(coord ChunkCoord, create bool) *Chunk {
	cs.mu.RLock()
	chunk, exists := cs.chunks[coord]
	cs.mu.RUnlock()
	if exists || !create {
		return chunk
	}

	cs.mu.Lock()
	// Double-check locking: another goroutine might have created it while we were waiting for the lock
	if existing, ok := cs.chunks[coord]; ok {
		cs.mu.Unlock()
		return existing
	}
	chunk = NewChunk(coord)
	cs.insertLocked(coord, chunk)
	cs.mu.Unlock()
	return chunk
}

// Get returns the block type at the specified world coordinates.
func (cs *ChunkStore) Get(x, y, z int) BlockType {
	chunk := cs.GetChunk(CoordForBlock(x, y, z), false)
	if chunk == nil {
		return BlockTypeAir
	}
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return chunk.GetBlock(mod(x, ChunkSize), mod(y, ChunkSize), mod(z, ChunkSize))
}

// Set sets the block type at the specified world coordinates and marks the
// chunk, plus any neighbour sharing the touched border, dirty.
func (cs *ChunkStore) Set(x, y, z int, val BlockType) {
	coord := CoordForBlock(x, y, z)
	chunk := cs.GetChunk(coord, true)

	lx, ly, lz := mod(x, ChunkSize), mod(y, ChunkSize), mod(z, ChunkSize)

	cs.mu.Lock()
	if chunk.GetBlock(lx, ly, lz) == val {
		cs.mu.Unlock()
		return
	}
	chunk.SetBlock(lx, ly, lz, val)
	dirty := []Event{{Kind: EventDirty, Coord: coord}}

	// Mark neighbor chunks dirty if we touched a border block
	border := func(side BlockSide) {
		nc := coord.Neighbor(side)
		if nb, ok := cs.chunks[nc]; ok {
			nb.dirty = true
			dirty = append(dirty, Event{Kind: EventDirty, Coord: nc})
		}
	}
	if lx == 0 {
		border(SideFront)
	} else if lx == ChunkSize-1 {
		border(SideBack)
	}
	if ly == 0 {
		border(SideBottom)
	} else if ly == ChunkSize-1 {
		border(SideTop)
	}
	if lz == 0 {
		border(SideLeft)
	} else if lz == ChunkSize-1 {
		border(SideRight)
	}
	cs.mu.Unlock()

	cs.events.push(dirty...)
}

// HasChunk checks if a chunk exists without creating it.
func (cs *ChunkStore) HasChunk(coord ChunkCoord) bool {
	cs.mu.RLock()
	_, exists := cs.chunks[coord]
	cs.mu.RUnlock()
	return exists
}

// AddChunk adds a pre-generated chunk to the store. Loaded neighbours are
// marked dirty since their padding changed.
func (cs *ChunkStore) AddChunk(coord ChunkCoord, chunk *Chunk) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, ok := cs.chunks[coord]; ok {
		return
	}
	cs.insertLocked(coord, chunk)
}

func (cs *ChunkStore) insertLocked(coord ChunkCoord, chunk *Chunk) {
	cs.chunks[coord] = chunk
	cs.modCount++

	evs := []Event{{Kind: EventLoaded, Coord: coord}}
	for _, side := range Sides {
		nc := coord.Neighbor(side)
		if nb, ok := cs.chunks[nc]; ok {
			nb.dirty = true
			evs = append(evs, Event{Kind: EventDirty, Coord: nc})
		}
	}
	cs.events.push(evs...)
}

// RemoveChunk drops a chunk from the store. It reports whether the chunk was present.
func (cs *ChunkStore) RemoveChunk(coord ChunkCoord) bool {
	cs.mu.Lock()
	ok := cs.removeLocked(coord)
	cs.mu.Unlock()
	return ok
}

func (cs *ChunkStore) removeLocked(coord ChunkCoord) bool {
	if _, ok := cs.chunks[coord]; !ok {
		return false
	}
	delete(cs.chunks, coord)
	cs.modCount++

	evs := []Event{{Kind: EventUnloaded, Coord: coord}}
	for _, side := range Sides {
		nc := coord.Neighbor(side)
		if nb, ok := cs.chunks[nc]; ok {
			nb.dirty = true
			evs = append(evs, Event{Kind: EventDirty, Coord: nc})
		}
	}
	cs.events.push(evs...)
	return true
}

// EvictFarChunks removes chunks whose horizontal distance from center exceeds
// radius (in chunks). Returns number of removed chunks.
func (cs *ChunkStore) EvictFarChunks(center ChunkCoord, radius int) int {
	defer profiling.Track("world.EvictFarChunks")()
	removed := 0
	cs.mu.Lock()
	for coord := range cs.chunks {
		dx := coord.X - center.X
		dz := coord.Z - center.Z
		if dx*dx+dz*dz > radius*radius {
			cs.removeLocked(coord)
			removed++
		}
	}
	cs.mu.Unlock()
	return removed
}

// GetModCount returns the current modification count of the chunk map.
func (cs *ChunkStore) GetModCount() uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.modCount
}

// Len returns the number of loaded chunks.
func (cs *ChunkStore) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.chunks)
}

// GetAllChunks returns a slice of all chunks in the world with their coordinates.
func (cs *ChunkStore) GetAllChunks() []ChunkWithCoord {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	chunks := make([]ChunkWithCoord, 0, len(cs.chunks))
	for coord, chunk := range cs.chunks {
		chunks = append(chunks, ChunkWithCoord{Chunk: chunk, Coord: coord})
	}
	return chunks
}

// Padded builds an immutable snapshot of the chunk at coord with one layer of
// padding copied from each loaded face neighbour. Neighbours that are not
// loaded contribute air. The chunk's dirty flag is cleared.
func (cs *ChunkStore) Padded(coord ChunkCoord) (*Padded, bool) {
	defer profiling.Track("world.Padded")()
	cs.mu.Lock()
	defer cs.mu.Unlock()

	chunk, ok := cs.chunks[coord]
	if !ok {
		return nil, false
	}
	p := NewPadded(coord)
	if chunk.blocks != nil {
		for x := range ChunkSize {
			for y := range ChunkSize {
				for z := range ChunkSize {
					p.Set(x, y, z, chunk.blocks[indexInChunk(x, y, z)])
				}
			}
		}
	}
	chunk.SetClean()

	for _, side := range Sides {
		nb, ok := cs.chunks[coord.Neighbor(side)]
		if !ok || nb.blocks == nil {
			continue
		}
		copyFace(p, nb, side)
	}
	return p, true
}

// copyFace copies the layer of nb that touches the snapshot across side.
func copyFace(p *Padded, nb *Chunk, side BlockSide) {
	axis := side.Axis()
	dst, src := -1, ChunkSize-1
	if side.Sign() > 0 {
		dst, src = ChunkSize, 0
	}
	for a := range ChunkSize {
		for b := range ChunkSize {
			switch axis {
			case 0:
				p.Set(dst, a, b, nb.GetBlock(src, a, b))
			case 1:
				p.Set(a, dst, b, nb.GetBlock(a, src, b))
			default:
				p.Set(a, b, dst, nb.GetBlock(a, b, src))
			}
		}
	}
}

// DrainEvents returns and clears the pending lifecycle events in publication order.
func (cs *ChunkStore) DrainEvents() []Event {
	return cs.events.drain()
}
