package buckets

import (
	"slices"

	"voxmesh/internal/world"
)

// SideSnapshot is the arena state of one side.
type SideSnapshot struct {
	Side     string   `json:"side"`
	Occupied int      `json:"occupied"`
	Holders  int      `json:"holders"`
	Free     []int    `json:"free"`
	Owned    []Bucket `json:"owned"`
	// NextVictim is the chunk the next eviction on this side would hit.
	NextVictim *world.ChunkCoord `json:"next_victim,omitempty"`
}

// ChunkSnapshot is one index entry.
type ChunkSnapshot struct {
	Coord      world.ChunkCoord `json:"coord"`
	LastAccess uint64           `json:"last_access"`
	Sides      map[string][]int `json:"sides"`
	Pinned     bool             `json:"pinned,omitempty"`
}

// Snapshot is a serialisable copy of the whole manager state.
type Snapshot struct {
	Frame  uint64                        `json:"frame"`
	Config Config                        `json:"config"`
	Stats  Stats                         `json:"stats"`
	Sides  [world.SideCount]SideSnapshot `json:"sides"`
	// Chunks are listed from least to most recently accessed.
	Chunks []ChunkSnapshot `json:"chunks"`
}

// Snapshot copies the arena and index state.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{Frame: m.frame, Config: m.cfg, Stats: m.stats}
	for _, side := range world.Sides {
		p := &m.sides[side]
		ss := SideSnapshot{
			Side:     side.String(),
			Occupied: m.Occupied(side),
			Holders:  m.index.SideLen(side),
			Free:     append([]int(nil), p.free...),
		}
		if v, ok := m.index.Oldest(side, m.Pinned); ok {
			ss.NextVictim = &v
		}
		for _, b := range p.buckets {
			if b.Owned {
				ss.Owned = append(ss.Owned, b)
			}
		}
		s.Sides[side] = ss
	}
	m.index.AscendByAge(func(c world.ChunkCoord, last uint64) bool {
		cs := ChunkSnapshot{Coord: c, LastAccess: last, Sides: map[string][]int{}, Pinned: m.Pinned(c)}
		held, _ := m.index.Lookup(c)
		for side, a := range held {
			cs.Sides[side.String()] = a.Buckets()
		}
		s.Chunks = append(s.Chunks, cs)
		return true
	})
	return s
}

// Check verifies the arena invariants and returns the first violation found:
// every owned bucket is listed exactly once under its owner, counts stay
// within capacity, and occupancy never exceeds the pool.
func (m *Manager) Check() error {
	for _, side := range world.Sides {
		p := &m.sides[side]
		if occ := m.Occupied(side); occ < 0 || occ > m.cfg.BucketsPerSide {
			return invariantf("side %v occupancy %d outside [0,%d]", side, occ, m.cfg.BucketsPerSide)
		}
		seen := make(map[int]bool, len(p.free))
		for _, b := range p.free {
			if seen[b] {
				return invariantf("side %v bucket %d on free list twice", side, b)
			}
			seen[b] = true
			if p.buckets[b].Owned {
				return invariantf("side %v bucket %d free but owned by %v", side, b, p.buckets[b].Owner)
			}
		}
		owned := 0
		owners := make(map[world.ChunkCoord]bool)
		for i, b := range p.buckets {
			if !b.Owned {
				if !seen[i] {
					return invariantf("side %v bucket %d neither owned nor free", side, i)
				}
				continue
			}
			owned++
			owners[b.Owner] = true
			if b.VertexCount > m.cfg.VertexCapacity || b.IndexCount > m.cfg.IndexCapacity {
				return invariantf("side %v bucket %d over capacity (%d/%d)", side, i, b.VertexCount, b.IndexCount)
			}
			a, ok := m.index.Side(b.Owner, side)
			if !ok || !slices.Contains(a.Buckets(), i) {
				return invariantf("side %v bucket %d owner %v has no matching index entry", side, i, b.Owner)
			}
		}
		if owned != m.Occupied(side) {
			return invariantf("side %v owned %d != occupied %d", side, owned, m.Occupied(side))
		}
		if n := m.index.SideLen(side); n != len(owners) {
			return invariantf("side %v indexes %d holders, buckets have %d owners", side, n, len(owners))
		}
	}
	for _, c := range m.index.Positions() {
		held, _ := m.index.Lookup(c)
		if len(held) == 0 {
			return invariantf("chunk %v indexed without buckets", c)
		}
		for side, a := range held {
			for _, b := range a.Buckets() {
				if bk := m.sides[side].buckets[b]; !bk.Owned || bk.Owner != c {
					return invariantf("chunk %v side %v lists bucket %d it does not own", c, side, b)
				}
			}
		}
	}
	return nil
}
