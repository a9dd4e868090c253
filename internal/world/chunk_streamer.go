package world

import (
	"runtime"
	"sync"

	"voxmesh/internal/profiling"
)

// ChunkStreamer generates chunks around a moving centre on background
// goroutines and installs them in a ChunkStore.
type ChunkStreamer struct {
	jobs       chan ChunkCoord
	pending    map[ChunkCoord]struct{}
	pendingMu  sync.Mutex
	maxPending int
	wg         sync.WaitGroup

	maxJobsPerCall int

	// Cached surface chunk Y per column (chunkX, chunkZ)
	heightCache   map[[2]int]int
	heightCacheMu sync.RWMutex

	store *ChunkStore
	gen   TerrainGenerator
}

// NewChunkStreamer creates a new chunk streamer with the given number of
// generation workers (0 means one per CPU).
func NewChunkStreamer(store *ChunkStore, gen TerrainGenerator, workers int) *ChunkStreamer {
	cs := &ChunkStreamer{
		jobs:           make(chan ChunkCoord, 4096),
		pending:        make(map[ChunkCoord]struct{}),
		maxJobsPerCall: 2048,
		maxPending:     16384,
		heightCache:    make(map[[2]int]int),
		store:          store,
		gen:            gen,
	}

	if workers <= 0 {
		workers = max(runtime.NumCPU(), 1)
	}
	for i := 0; i < workers; i++ {
		cs.wg.Add(1)
		go cs.worker()
	}

	return cs
}

// Close stops the background generation workers and waits for them to exit.
func (cs *ChunkStreamer) Close() {
	close(cs.jobs)
	cs.wg.Wait()
}

func (cs *ChunkStreamer) worker() {
	defer cs.wg.Done()
	for coord := range cs.jobs {
		cs.generateChunkSync(coord)
		cs.pendingMu.Lock()
		delete(cs.pending, coord)
		cs.pendingMu.Unlock()
	}
}

// generateChunkSync builds and installs a chunk if missing.
func (cs *ChunkStreamer) generateChunkSync(coord ChunkCoord) {
	if cs.store.HasChunk(coord) {
		return
	}

	chunk := NewChunk(coord)
	cs.gen.PopulateChunk(chunk)

	cs.store.AddChunk(coord, chunk)
}

// Pending returns the number of queued or running generation jobs.
func (cs *ChunkStreamer) Pending() int {
	cs.pendingMu.Lock()
	defer cs.pendingMu.Unlock()
	return len(cs.pending)
}

// StreamChunksAroundSync loads every column within radius of center on the calling goroutine.
func (cs *ChunkStreamer) StreamChunksAroundSync(center ChunkCoord, radius int) {
	defer profiling.Track("world.StreamChunksAroundSync")()
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			if dx*dx+dz*dz > radius*radius {
				continue
			}
			chunkX := center.X + dx
			chunkZ := center.Z + dz
			for cy := 0; cy <= cs.columnTop(chunkX, chunkZ); cy++ {
				cs.generateChunkSync(ChunkCoord{X: chunkX, Y: cy, Z: chunkZ})
			}
		}
	}
}

// StreamChunksAroundAsync queues chunks for async loading, nearest rings first.
func (cs *ChunkStreamer) StreamChunksAroundAsync(center ChunkCoord, radius int) {
	defer profiling.Track("world.StreamChunksAroundAsync")()
	cx, cz := center.X, center.Z

	jobsPushed := 0

	for r := 0; r <= radius; r++ {
		if jobsPushed >= cs.maxJobsPerCall {
			break
		}

		if r == 0 {
			jobsPushed += cs.enqueueColumn(cx, cz)
			continue
		}

		x0 := cx - r
		x1 := cx + r
		z0 := cz - r
		z1 := cz + r

		for xk := x0; xk <= x1; xk++ {
			jobsPushed += cs.enqueueColumn(xk, z0)
			if jobsPushed >= cs.maxJobsPerCall {
				return
			}
		}
		for zk := z0 + 1; zk <= z1-1; zk++ {
			jobsPushed += cs.enqueueColumn(x1, zk)
			if jobsPushed >= cs.maxJobsPerCall {
				return
			}
		}
		for xk := x1; xk >= x0; xk-- {
			jobsPushed += cs.enqueueColumn(xk, z1)
			if jobsPushed >= cs.maxJobsPerCall {
				return
			}
		}
		for zk := z1 - 1; zk >= z0+1; zk-- {
			jobsPushed += cs.enqueueColumn(x0, zk)
			if jobsPushed >= cs.maxJobsPerCall {
				return
			}
		}
	}
}

// columnTop returns the highest chunk Y that contains terrain for a column.
func (cs *ChunkStreamer) columnTop(chunkX, chunkZ int) int {
	key := [2]int{chunkX, chunkZ}
	cs.heightCacheMu.RLock()
	cached, ok := cs.heightCache[key]
	cs.heightCacheMu.RUnlock()
	if ok {
		return cached
	}

	top := -1
	for lx := 0; lx < ChunkSize; lx += ChunkSize / 4 {
		for lz := 0; lz < ChunkSize; lz += ChunkSize / 4 {
			h := cs.gen.HeightAt(chunkX*ChunkSize+lx, chunkZ*ChunkSize+lz)
			top = max(top, floorDiv(h, ChunkSize))
		}
	}
	top = max(top, 0)
	cs.heightCacheMu.Lock()
	cs.heightCache[key] = top
	cs.heightCacheMu.Unlock()
	return top
}

// enqueueColumn enqueues all needed Y-chunks for a column.
func (cs *ChunkStreamer) enqueueColumn(chunkX, chunkZ int) int {
	cs.pendingMu.Lock()
	if cs.maxPending > 0 && len(cs.pending) >= cs.maxPending {
		cs.pendingMu.Unlock()
		return 0
	}
	cs.pendingMu.Unlock()

	enq := 0
	for cy := 0; cy <= cs.columnTop(chunkX, chunkZ); cy++ {
		if cs.requestChunkLimited(ChunkCoord{X: chunkX, Y: cy, Z: chunkZ}) {
			enq++
		}
	}
	return enq
}

// requestChunkLimited respects pending cap and returns true if enqueued.
func (cs *ChunkStreamer) requestChunkLimited(coord ChunkCoord) bool {
	if cs.store.HasChunk(coord) {
		return false
	}

	cs.pendingMu.Lock()
	if _, ok := cs.pending[coord]; ok {
		cs.pendingMu.Unlock()
		return false
	}
	if cs.maxPending > 0 && len(cs.pending) >= cs.maxPending {
		cs.pendingMu.Unlock()
		return false
	}
	cs.pending[coord] = struct{}{}
	cs.pendingMu.Unlock()

	select {
	case cs.jobs <- coord:
		return true
	default:
		// queue full: rollback
		cs.pendingMu.Lock()
		delete(cs.pending, coord)
		cs.pendingMu.Unlock()
		return false
	}
}

// EvictFarChunks removes chunks outside the given radius and prunes the height cache.
func (cs *ChunkStreamer) EvictFarChunks(center ChunkCoord, radius int) int {
	removed := cs.store.EvictFarChunks(center, radius)

	cs.heightCacheMu.Lock()
	for key := range cs.heightCache {
		dx := key[0] - center.X
		dz := key[1] - center.Z
		if dx*dx+dz*dz > radius*radius {
			delete(cs.heightCache, key)
		}
	}
	cs.heightCacheMu.Unlock()

	return removed
}
