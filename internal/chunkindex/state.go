// Package chunkindex maps chunk positions to the buckets they hold and keeps
// them ordered by last access for eviction.
package chunkindex

import (
	"github.com/google/btree"

	"voxmesh/internal/world"
)

const btreeDegree = 16

// Span is one bucket's share of a side mesh.
type Span struct {
	Bucket      int
	VertexCount int
	IndexCount  int
}

// Allocation lists the buckets held by one (chunk, side) in mesh order.
type Allocation struct {
	Spans []Span
}

// Buckets returns the bucket indices in mesh order.
func (a Allocation) Buckets() []int {
	out := make([]int, len(a.Spans))
	for i, s := range a.Spans {
		out[i] = s.Bucket
	}
	return out
}

// VertexCount sums vertex counts over all spans.
func (a Allocation) VertexCount() int {
	n := 0
	for _, s := range a.Spans {
		n += s.VertexCount
	}
	return n
}

type lruKey struct {
	frame uint64
	coord world.ChunkCoord
}

// lessKey orders by frame, then by lowest chunk position.
func lessKey(a, b lruKey) bool {
	if a.frame != b.frame {
		return a.frame < b.frame
	}
	return a.coord.Less(b.coord)
}

type entry struct {
	lastAccess uint64
	sides      [world.SideCount]Allocation
	held       [world.SideCount]bool
}

func (e *entry) empty() bool {
	for _, h := range e.held {
		if h {
			return false
		}
	}
	return true
}

// State is the chunk to allocation index. An entry exists exactly while the
// chunk holds at least one bucket. Not safe for concurrent use.
type State struct {
	entries map[world.ChunkCoord]*entry
	coords  *btree.BTreeG[world.ChunkCoord]
	global  *btree.BTreeG[lruKey]
	perSide [world.SideCount]*btree.BTreeG[lruKey]
}

func New() *State {
	s := &State{
		entries: make(map[world.ChunkCoord]*entry),
		coords:  btree.NewG(btreeDegree, world.ChunkCoord.Less),
		global:  btree.NewG(btreeDegree, lessKey),
	}
	for i := range s.perSide {
		s.perSide[i] = btree.NewG(btreeDegree, lessKey)
	}
	return s
}

// Record stores the allocation of (coord, side) and touches the chunk. An
// allocation with no spans removes the side instead.
func (s *State) Record(coord world.ChunkCoord, side world.BlockSide, alloc Allocation, frame uint64) {
	if len(alloc.Spans) == 0 {
		s.RemoveSide(coord, side)
		return
	}
	e, ok := s.entries[coord]
	if !ok {
		e = &entry{lastAccess: frame}
		s.entries[coord] = e
		s.coords.ReplaceOrInsert(coord)
		s.global.ReplaceOrInsert(lruKey{frame: frame, coord: coord})
	}
	if !e.held[side] {
		e.held[side] = true
		s.perSide[side].ReplaceOrInsert(lruKey{frame: e.lastAccess, coord: coord})
	}
	e.sides[side] = Allocation{Spans: append([]Span(nil), alloc.Spans...)}
	s.touch(coord, e, frame)
}

// Lookup returns a copy of every held side allocation of coord.
func (s *State) Lookup(coord world.ChunkCoord) (map[world.BlockSide]Allocation, bool) {
	e, ok := s.entries[coord]
	if !ok {
		return nil, false
	}
	out := make(map[world.BlockSide]Allocation, world.SideCount)
	for _, side := range world.Sides {
		if e.held[side] {
			out[side] = e.sides[side]
		}
	}
	return out, true
}

// Side returns the allocation of one side of coord.
func (s *State) Side(coord world.ChunkCoord, side world.BlockSide) (Allocation, bool) {
	e, ok := s.entries[coord]
	if !ok || !e.held[side] {
		return Allocation{}, false
	}
	return e.sides[side], true
}

// Touch refreshes the last access frame of coord. It reports whether coord
// has an entry.
func (s *State) Touch(coord world.ChunkCoord, frame uint64) bool {
	e, ok := s.entries[coord]
	if !ok {
		return false
	}
	s.touch(coord, e, frame)
	return true
}

func (s *State) touch(coord world.ChunkCoord, e *entry, frame uint64) {
	if e.lastAccess == frame {
		return
	}
	old := lruKey{frame: e.lastAccess, coord: coord}
	key := lruKey{frame: frame, coord: coord}
	s.global.Delete(old)
	s.global.ReplaceOrInsert(key)
	for _, side := range world.Sides {
		if e.held[side] {
			s.perSide[side].Delete(old)
			s.perSide[side].ReplaceOrInsert(key)
		}
	}
	e.lastAccess = frame
}

// Remove drops coord entirely and returns the allocations it held.
func (s *State) Remove(coord world.ChunkCoord) (map[world.BlockSide]Allocation, bool) {
	held, ok := s.Lookup(coord)
	if !ok {
		return nil, false
	}
	e := s.entries[coord]
	key := lruKey{frame: e.lastAccess, coord: coord}
	for _, side := range world.Sides {
		if e.held[side] {
			s.perSide[side].Delete(key)
		}
	}
	s.global.Delete(key)
	s.coords.Delete(coord)
	delete(s.entries, coord)
	return held, true
}

// RemoveSide drops one side of coord. The entry goes away with its last side.
func (s *State) RemoveSide(coord world.ChunkCoord, side world.BlockSide) (Allocation, bool) {
	e, ok := s.entries[coord]
	if !ok || !e.held[side] {
		return Allocation{}, false
	}
	alloc := e.sides[side]
	s.perSide[side].Delete(lruKey{frame: e.lastAccess, coord: coord})
	e.held[side] = false
	e.sides[side] = Allocation{}
	if e.empty() {
		s.global.Delete(lruKey{frame: e.lastAccess, coord: coord})
		s.coords.Delete(coord)
		delete(s.entries, coord)
	}
	return alloc, true
}

// Oldest returns the least recently accessed chunk holding buckets on side,
// ties going to the lowest position. Chunks for which skip reports true are
// passed over.
func (s *State) Oldest(side world.BlockSide, skip func(world.ChunkCoord) bool) (world.ChunkCoord, bool) {
	var (
		found world.ChunkCoord
		ok    bool
	)
	s.perSide[side].Ascend(func(k lruKey) bool {
		if skip != nil && skip(k.coord) {
			return true
		}
		found, ok = k.coord, true
		return false
	})
	return found, ok
}

// AscendSide calls fn for every chunk holding buckets on side, from least to
// most recently accessed, until fn returns false.
func (s *State) AscendSide(side world.BlockSide, fn func(coord world.ChunkCoord, lastAccess uint64) bool) {
	s.perSide[side].Ascend(func(k lruKey) bool {
		return fn(k.coord, k.frame)
	})
}

// AscendByAge calls fn for every chunk from least to most recently accessed
// until fn returns false.
func (s *State) AscendByAge(fn func(coord world.ChunkCoord, lastAccess uint64) bool) {
	s.global.Ascend(func(k lruKey) bool {
		return fn(k.coord, k.frame)
	})
}

// LastAccess returns the last access frame of coord.
func (s *State) LastAccess(coord world.ChunkCoord) (uint64, bool) {
	e, ok := s.entries[coord]
	if !ok {
		return 0, false
	}
	return e.lastAccess, true
}

// Held reports whether coord holds buckets on side.
func (s *State) Held(coord world.ChunkCoord, side world.BlockSide) bool {
	e, ok := s.entries[coord]
	return ok && e.held[side]
}

// Len returns the number of chunks holding at least one bucket.
func (s *State) Len() int {
	return len(s.entries)
}

// SideLen returns the number of chunks holding buckets on side.
func (s *State) SideLen(side world.BlockSide) int {
	return s.perSide[side].Len()
}

// Positions returns every indexed chunk in ascending position order.
func (s *State) Positions() []world.ChunkCoord {
	out := make([]world.ChunkCoord, 0, s.coords.Len())
	s.coords.Ascend(func(c world.ChunkCoord) bool {
		out = append(out, c)
		return true
	})
	return out
}
