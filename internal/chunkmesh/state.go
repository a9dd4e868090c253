package chunkmesh

import (
	"fmt"

	"voxmesh/internal/meshing"
	"voxmesh/internal/upload"
	"voxmesh/internal/world"
)

// State is where a chunk's mesh is in the pipeline.
type State uint8

const (
	// StateUnloaded chunks hold no buckets and have no mesh in flight.
	StateUnloaded State = iota
	// StateMeshing chunks have a mesh queued, running, or waiting for
	// buckets after a deferred allocation or a rolled back upload.
	StateMeshing
	// StateAllocated chunks own buckets whose upload is not confirmed yet.
	StateAllocated
	// StateResident chunks have confirmed geometry for every meshed side.
	StateResident
	// StateEvicting chunks lost sides to another chunk's allocation and
	// wait, in view, for room to mesh them again. They may still hold
	// buckets for their other sides.
	StateEvicting
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateMeshing:
		return "meshing"
	case StateAllocated:
		return "allocated"
	case StateResident:
		return "resident"
	case StateEvicting:
		return "evicting"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

type sideSet [world.SideCount]bool

func allSides() sideSet {
	return sideSet{true, true, true, true, true, true}
}

func (s sideSet) any() bool {
	for _, v := range s {
		if v {
			return true
		}
	}
	return false
}

func (s sideSet) union(o sideSet) sideSet {
	for i := range s {
		s[i] = s[i] || o[i]
	}
	return s
}

func (s sideSet) list() []world.BlockSide {
	var out []world.BlockSide
	for _, side := range world.Sides {
		if s[side] {
			out = append(out, side)
		}
	}
	return out
}

// record is the render goroutine's view of one chunk.
type record struct {
	coord world.ChunkCoord
	state State

	// ticket of the newest mesh request; older results are stale.
	ticket uint64
	// requested sides wait for submission; queued is set while the chunk
	// sits in the submit queue.
	requested sideSet
	queued    bool
	// inFlight sides belong to the job carrying ticket.
	inFlight sideSet

	// result waits for allocation of its todo sides.
	result *meshing.MeshResult
	todo   sideSet
	ready  bool

	// uploading sides are in batch, not yet confirmed.
	uploading sideSet
	batch     upload.BatchID

	// evicted sides lost their buckets to other chunks.
	evicted sideSet
	// outOfMemory sides are skipped until the chunk changes.
	outOfMemory sideSet
	failures    int
}

// Info is a read-only summary of one tracked chunk.
type Info struct {
	Coord       world.ChunkCoord
	State       State
	Ticket      uint64
	Evicted     []world.BlockSide
	OutOfMemory []world.BlockSide
	Failures    int
}

func (r *record) info() Info {
	return Info{
		Coord:       r.coord,
		State:       r.state,
		Ticket:      r.ticket,
		Evicted:     r.evicted.list(),
		OutOfMemory: r.outOfMemory.list(),
		Failures:    r.failures,
	}
}
