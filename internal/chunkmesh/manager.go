// Package chunkmesh drives chunks from voxel snapshots to drawable bucket
// geometry on the render goroutine.
package chunkmesh

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"voxmesh/internal/buckets"
	"voxmesh/internal/culling"
	"voxmesh/internal/indirect"
	"voxmesh/internal/logging"
	"voxmesh/internal/meshing"
	"voxmesh/internal/profiling"
	"voxmesh/internal/upload"
	"voxmesh/internal/world"
)

// ErrUploadRetriesExhausted is returned by Frame for a chunk whose upload
// kept failing. The chunk is dropped until it changes again.
var ErrUploadRetriesExhausted = errors.New("chunkmesh: upload retries exhausted")

// World is the voxel collaborator: padded snapshots and lifecycle events.
type World interface {
	Padded(coord world.ChunkCoord) (*world.Padded, bool)
	DrainEvents() []world.Event
}

// Mesher runs mesh jobs off the render goroutine. Done is called once per
// received result.
type Mesher interface {
	SubmitJob(job meshing.MeshJob) bool
	Results() <-chan meshing.MeshResult
	Done()
}

type Options struct {
	Buckets buckets.Config
	// MaxUploadRetries is how many times a failed upload is retried
	// before the chunk is dropped.
	MaxUploadRetries int
	// MaxAllocationsPerFrame bounds the chunks allocated per Frame.
	MaxAllocationsPerFrame int
}

func DefaultOptions() Options {
	return Options{
		Buckets:                buckets.DefaultConfig(),
		MaxUploadRetries:       3,
		MaxAllocationsPerFrame: 64,
	}
}

// SideRef names one side of one chunk.
type SideRef struct {
	Chunk world.ChunkCoord
	Side  world.BlockSide
}

// FrameReport summarises one Frame.
type FrameReport struct {
	Frame          uint64
	Submitted      int
	Received       int
	Stale          int
	Allocated      int
	Deferred       int
	Uploaded       int
	UploadFailures int
	Evicted        int
	// Held counts mesh batches kept back because hidden draw commands
	// could not be written first.
	Held int
	// Regenerate lists chunks with sides that could not be meshed from
	// their data. The caller should rebuild them.
	Regenerate  []world.ChunkCoord
	OutOfMemory []SideRef
	Dropped     []world.ChunkCoord
}

// Manager owns the bucket pools, the upload queue and the draw commands.
// Every method must be called from the render goroutine.
type Manager struct {
	opts     Options
	world    World
	mesher   Mesher
	uploader upload.Uploader

	buckets  *buckets.Manager
	draws    *indirect.Assembler
	queue    *upload.Queue
	drawsOut *upload.Queue

	frame      uint64
	nextTicket uint64
	records    map[world.ChunkCoord]*record
	submit     []world.ChunkCoord
	ready      []world.ChunkCoord

	frustum *culling.Frustum
	sides   sideSet
}

func New(opts Options, w World, mesher Mesher, uploader upload.Uploader) (*Manager, error) {
	if opts.MaxAllocationsPerFrame <= 0 {
		return nil, fmt.Errorf("chunkmesh: max allocations per frame must be positive, got %d", opts.MaxAllocationsPerFrame)
	}
	if opts.MaxUploadRetries < 0 {
		return nil, fmt.Errorf("chunkmesh: max upload retries must not be negative, got %d", opts.MaxUploadRetries)
	}
	bm, err := buckets.New(opts.Buckets)
	if err != nil {
		return nil, err
	}
	return &Manager{
		opts:     opts,
		world:    w,
		mesher:   mesher,
		uploader: uploader,
		buckets:  bm,
		draws:    indirect.New(opts.Buckets),
		queue:    upload.NewQueue(),
		drawsOut: upload.NewQueue(),
		records:  make(map[world.ChunkCoord]*record),
		sides:    allSides(),
	}, nil
}

func (m *Manager) Buckets() *buckets.Manager { return m.buckets }

func (m *Manager) Draws() *indirect.Assembler { return m.draws }

func (m *Manager) FrameNumber() uint64 { return m.frame }

// State returns the pipeline state of coord.
func (m *Manager) State(coord world.ChunkCoord) State {
	if r := m.records[coord]; r != nil {
		return r.state
	}
	return StateUnloaded
}

// Info returns the tracked state of coord.
func (m *Manager) Info(coord world.ChunkCoord) (Info, bool) {
	r := m.records[coord]
	if r == nil {
		return Info{}, false
	}
	return r.info(), true
}

// Tracked returns the number of chunks the manager knows about.
func (m *Manager) Tracked() int { return len(m.records) }

// Counts returns the number of tracked chunks per state.
func (m *Manager) Counts() map[State]int {
	out := make(map[State]int)
	for _, r := range m.records {
		out[r.state]++
	}
	return out
}

// Request schedules coord for meshing. No sides means all six. A request
// supersedes any mesh of coord still in flight or waiting for buckets.
func (m *Manager) Request(coord world.ChunkCoord, sides ...world.BlockSide) {
	want := allSides()
	if len(sides) > 0 {
		want = sideSet{}
		for _, s := range sides {
			want[s] = true
		}
	}
	m.request(coord, want)
}

func (m *Manager) request(coord world.ChunkCoord, sides sideSet) {
	r := m.records[coord]
	if r == nil {
		r = &record{coord: coord}
		m.records[coord] = r
	}
	r.requested = r.requested.union(sides)
	if r.inFlight.any() {
		r.requested = r.requested.union(r.inFlight)
		r.inFlight = sideSet{}
	}
	if r.result != nil {
		r.requested = r.requested.union(r.todo)
		r.result = nil
		r.todo = sideSet{}
		r.ready = false
	}
	m.nextTicket++
	r.ticket = m.nextTicket
	if r.state != StateAllocated {
		r.state = StateMeshing
	}
	if !r.queued {
		r.queued = true
		m.submit = append(m.submit, coord)
	}
}

// Unload releases everything held for coord. A mesh still in flight is
// discarded when it arrives.
func (m *Manager) Unload(coord world.ChunkCoord) {
	if m.records[coord] == nil {
		return
	}
	m.release(coord)
	delete(m.records, coord)
	logging.Logger().Debug("chunk mesh unloaded", "chunk", coord.String())
}

// release frees every bucket of coord and drops its pending upload.
func (m *Manager) release(coord world.ChunkCoord) {
	m.queue.Cancel(coord)
	for _, ev := range m.buckets.Free(coord) {
		for _, b := range ev.Buckets {
			m.draws.Release(ev.Side, b)
		}
	}
}

// Frame advances the logical frame and runs one pass of the pipeline:
// world events, job submission, result handoff, allocation, upload and
// draw command updates. Only exhausted upload retries are returned as
// errors; everything else is reported and retried on later frames.
func (m *Manager) Frame(ctx context.Context) (FrameReport, error) {
	defer profiling.Track("chunkmesh.Frame")()

	m.frame++
	m.buckets.SetFrame(m.frame)
	rep := FrameReport{Frame: m.frame}

	m.handleEvents()
	m.submitJobs(&rep)
	m.drainResults(&rep)
	m.allocate(&rep)
	var err error
	if m.draws.Exposed() > 0 && !m.flushDraws(ctx) {
		// buckets that changed owner may still be drawn from the old
		// commands; their new data waits until the hides are confirmed
		rep.Held = m.queue.Len()
		logging.Logger().Warn("mesh uploads held", "exposed_slots", m.draws.Exposed(), "batches", rep.Held)
	} else {
		err = m.flush(ctx, &rep)
	}
	m.flushDraws(ctx)

	profiling.Add("chunkmesh.evictions", int64(rep.Evicted))
	if rep.Allocated > 0 || rep.Evicted > 0 || rep.UploadFailures > 0 {
		logging.Logger().Debug("mesh frame",
			"frame", rep.Frame,
			"submitted", rep.Submitted,
			"received", rep.Received,
			"allocated", rep.Allocated,
			"deferred", rep.Deferred,
			"evicted", rep.Evicted,
			"upload_failures", rep.UploadFailures)
	}
	return rep, err
}

func (m *Manager) handleEvents() {
	for _, ev := range m.world.DrainEvents() {
		switch ev.Kind {
		case world.EventLoaded:
			m.request(ev.Coord, allSides())
		case world.EventDirty:
			if r := m.records[ev.Coord]; r != nil {
				r.outOfMemory = sideSet{}
				r.failures = 0
			}
			m.request(ev.Coord, allSides())
		case world.EventUnloaded:
			m.Unload(ev.Coord)
		}
	}
}

func (m *Manager) submitJobs(rep *FrameReport) {
	pending := m.submit
	m.submit = nil
	for i, coord := range pending {
		r := m.records[coord]
		if r == nil || !r.queued {
			continue
		}
		snap, ok := m.world.Padded(coord)
		if !ok {
			m.Unload(coord)
			continue
		}
		job := meshing.MeshJob{Coord: coord, Ticket: r.ticket, Source: snap, Sides: r.requested.list()}
		if !m.mesher.SubmitJob(job) {
			// queue full, keep order for the next frame
			m.submit = append(m.submit, pending[i:]...)
			return
		}
		r.queued = false
		r.inFlight = r.requested
		r.requested = sideSet{}
		rep.Submitted++
	}
}

func (m *Manager) drainResults(rep *FrameReport) {
	for {
		select {
		case res := <-m.mesher.Results():
			m.mesher.Done()
			rep.Received++
			m.accept(res, rep)
		default:
			return
		}
	}
}

func (m *Manager) accept(res meshing.MeshResult, rep *FrameReport) {
	r := m.records[res.Coord]
	if r == nil || r.ticket != res.Ticket || !r.inFlight.any() {
		rep.Stale++
		logging.Logger().Debug("stale mesh result dropped", "chunk", res.Coord.String(), "ticket", res.Ticket)
		return
	}
	meshed := r.inFlight
	r.inFlight = sideSet{}

	var todo sideSet
	invalid := false
	for _, side := range meshed.list() {
		if err := res.Mesh.Sides[side].Err; err != nil {
			invalid = true
			logging.Logger().Warn("mesh side skipped", "chunk", res.Coord.String(), "side", side.String(), "error", err)
			continue
		}
		if r.outOfMemory[side] {
			continue
		}
		if !m.buckets.HoldsSide(res.Coord, side) && res.Geometry[side].Empty() {
			r.evicted[side] = false
			continue
		}
		todo[side] = true
		r.evicted[side] = false
	}
	if invalid {
		rep.Regenerate = append(rep.Regenerate, res.Coord)
	}
	if !todo.any() {
		r.state = m.restingState(r)
		return
	}
	r.result = &res
	r.todo = todo
	m.markReady(r)
}

func (m *Manager) markReady(r *record) {
	if !r.ready {
		r.ready = true
		m.ready = append(m.ready, r.coord)
	}
}

// restingState is the state of a chunk with no work pending.
func (m *Manager) restingState(r *record) State {
	if r.queued || r.inFlight.any() {
		return StateMeshing
	}
	if r.evicted.any() {
		return StateEvicting
	}
	if m.buckets.Holds(r.coord) {
		return StateResident
	}
	return StateUnloaded
}

func (m *Manager) allocate(rep *FrameReport) {
	budget := m.opts.MaxAllocationsPerFrame
	pending := m.ready
	m.ready = nil
	var deferred []world.ChunkCoord
	for i, coord := range pending {
		r := m.records[coord]
		if r == nil || !r.ready {
			continue
		}
		if budget == 0 {
			deferred = append(deferred, pending[i:]...)
			break
		}
		budget--
		if m.allocateChunk(r, rep) {
			r.ready = false
			continue
		}
		rep.Deferred++
		deferred = append(deferred, coord)
	}
	m.ready = append(deferred, m.ready...)
}

// allocateChunk places the todo sides of r's result and enqueues their
// writes as one batch. It reports whether no side is left waiting.
func (m *Manager) allocateChunk(r *record, rep *FrameReport) bool {
	if m.buckets.Pinned(r.coord) {
		return false
	}
	res := r.result
	var cmds []upload.BufferWriteCommand
	for _, side := range r.todo.list() {
		g := res.Geometry[side]
		alloc, evictions, err := m.buckets.Allocate(r.coord, side, g.Vertices, g.Indices)
		switch {
		case errors.Is(err, buckets.ErrOutOfMemory):
			r.todo[side] = false
			r.outOfMemory[side] = true
			rep.OutOfMemory = append(rep.OutOfMemory, SideRef{Chunk: r.coord, Side: side})
			logging.Logger().Warn("mesh side does not fit the bucket pool", "chunk", r.coord.String(), "side", side.String(), "error", err)
			if ev, ok := m.buckets.FreeSide(r.coord, side); ok {
				m.applyEvictions([]buckets.Eviction{ev}, rep)
			}
			continue
		case err != nil:
			logging.Logger().Debug("allocation deferred", "chunk", r.coord.String(), "side", side.String(), "error", err)
			continue
		}
		r.todo[side] = false
		m.applyEvictions(evictions, rep)
		for _, pl := range alloc.Placements {
			m.draws.Rebind(side, pl.Bucket, pl.FirstIndex, pl.BaseVertex, pl.IndexCount)
			cmds = append(cmds,
				upload.BufferWriteCommand{
					Target:  upload.BufferID{Side: side, Kind: upload.KindVertex},
					Offset:  uint64(pl.VertexOffset),
					Payload: pl.Vertices,
					Label:   fmt.Sprintf("chunk %v %v bucket %d vertices", r.coord, side, pl.Bucket),
				},
				upload.BufferWriteCommand{
					Target:  upload.BufferID{Side: side, Kind: upload.KindIndex},
					Offset:  uint64(pl.IndexOffset),
					Payload: pl.Indices,
					Label:   fmt.Sprintf("chunk %v %v bucket %d indices", r.coord, side, pl.Bucket),
				})
		}
		if len(alloc.Placements) > 0 {
			r.uploading[side] = true
		}
		rep.Allocated++
	}

	if len(cmds) > 0 {
		m.buckets.Pin(r.coord)
		r.batch = m.queue.Enqueue(upload.Batch{Chunk: r.coord, Ticket: r.ticket, Commands: cmds})
		r.state = StateAllocated
	} else if !r.uploading.any() && !r.todo.any() {
		r.result = nil
		r.state = m.restingState(r)
	}
	return !r.todo.any()
}

// applyEvictions clears the draw slots of buckets that changed hands and
// updates the chunks that lost them.
func (m *Manager) applyEvictions(evs []buckets.Eviction, rep *FrameReport) {
	for _, ev := range evs {
		for _, b := range ev.Buckets {
			m.draws.Release(ev.Side, b)
		}
		if ev.Kind != buckets.Evicted {
			continue
		}
		rep.Evicted++
		v := m.records[ev.Chunk]
		if v == nil {
			continue
		}
		v.evicted[ev.Side] = true
		if v.state == StateResident {
			v.state = StateEvicting
			logging.Logger().Debug("chunk side evicted", "chunk", ev.Chunk.String(), "side", ev.Side.String(),
				"holds_buckets", m.buckets.Holds(ev.Chunk))
		}
	}
}

func (m *Manager) flush(ctx context.Context, rep *FrameReport) error {
	var errs []error
	for _, o := range m.queue.Flush(ctx, m.uploader) {
		m.buckets.Unpin(o.Batch.Chunk)
		r := m.records[o.Batch.Chunk]
		if r == nil || r.batch != o.Batch.ID {
			continue
		}
		r.batch = 0
		sides := r.uploading
		r.uploading = sideSet{}

		if o.Err != nil {
			if err := m.uploadFailed(r, sides, o.Err, rep); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		r.failures = 0
		rep.Uploaded++
		held, _ := m.buckets.Lookup(r.coord)
		for _, side := range sides.list() {
			for _, span := range held[side].Spans {
				m.draws.MarkUploaded(side, span.Bucket)
				if m.shouldShow(r.coord, side) {
					if err := m.draws.Show(side, span.Bucket); err != nil {
						errs = append(errs, err)
					}
				}
			}
		}
		if !r.todo.any() {
			r.result = nil
		}
		r.state = m.restingState(r)
		if r.state == StateUnloaded && r.result != nil {
			r.state = StateMeshing
		}
	}
	return errors.Join(errs...)
}

// uploadFailed rolls back the sides of a failed batch and queues the mesh
// for another allocation, or drops the chunk once retries run out.
func (m *Manager) uploadFailed(r *record, sides sideSet, cause error, rep *FrameReport) error {
	rep.UploadFailures++
	r.failures++
	for _, side := range sides.list() {
		if ev, ok := m.buckets.FreeSide(r.coord, side); ok {
			m.applyEvictions([]buckets.Eviction{ev}, rep)
		}
	}
	if r.failures > m.opts.MaxUploadRetries {
		logging.Logger().Error("chunk upload failed permanently", "chunk", r.coord.String(), "attempts", r.failures, "error", cause)
		rep.Dropped = append(rep.Dropped, r.coord)
		m.release(r.coord)
		r.result = nil
		r.todo = sideSet{}
		r.ready = false
		r.state = StateUnloaded
		return fmt.Errorf("chunk %v after %d attempts: %w: %w", r.coord, r.failures, ErrUploadRetriesExhausted, cause)
	}
	logging.Logger().Warn("chunk upload failed, retrying", "chunk", r.coord.String(), "attempt", r.failures, "error", cause)
	r.todo = r.todo.union(sides)
	r.state = StateMeshing
	m.markReady(r)
	return nil
}

// flushDraws uploads the changed draw commands and reports whether all of
// them were written. A failed write is queued again.
func (m *Manager) flushDraws(ctx context.Context) bool {
	if !m.draws.Dirty() {
		return true
	}
	m.drawsOut.Enqueue(upload.Batch{Commands: m.draws.DirtyWrites()})
	ok := true
	for _, o := range m.drawsOut.Flush(ctx, m.uploader) {
		if o.Err != nil {
			logging.Logger().Warn("draw command upload failed", "error", o.Err)
			m.draws.Requeue(o.Batch.Commands)
			ok = false
			continue
		}
		m.draws.Confirm(o.Batch.Commands)
	}
	return ok
}

func (m *Manager) shouldShow(coord world.ChunkCoord, side world.BlockSide) bool {
	if !m.sides[side] {
		return false
	}
	return m.frustum == nil || m.frustum.ContainsChunk(coord)
}

// UpdateVisibility hides the buckets of chunks outside f and of sides that
// cannot face a camera looking along view, and shows the rest. Chunks in
// view count as accessed for eviction. Chunks that lost sides to eviction
// are meshed again once the side's pool has room.
func (m *Manager) UpdateVisibility(f culling.Frustum, view mgl32.Vec3) {
	defer profiling.Track("chunkmesh.UpdateVisibility")()
	m.frustum = &f
	m.sides = culling.VisibleSides(view)

	coords := make([]world.ChunkCoord, 0, len(m.records))
	for c := range m.records {
		coords = append(coords, c)
	}
	slices.SortFunc(coords, world.ChunkCoord.Compare)

	capacity := m.opts.Buckets.BucketsPerSide
	for _, coord := range coords {
		r := m.records[coord]
		inView := f.ContainsChunk(coord)
		if inView {
			m.buckets.Touch(coord)
		}
		held, _ := m.buckets.Lookup(coord)
		for side, a := range held {
			show := inView && m.sides[side]
			for _, span := range a.Spans {
				if show && m.draws.Uploaded(side, span.Bucket) {
					_ = m.draws.Show(side, span.Bucket)
				} else {
					m.draws.Hide(side, span.Bucket)
				}
			}
		}
		if !inView || !r.evicted.any() || r.queued || r.inFlight.any() {
			continue
		}
		var again sideSet
		for _, side := range r.evicted.list() {
			if m.buckets.Occupied(side) < capacity {
				again[side] = true
			}
		}
		if again.any() {
			for _, side := range again.list() {
				r.evicted[side] = false
			}
			m.request(coord, again)
		}
	}
}

// ShowAll drops frustum and side culling.
func (m *Manager) ShowAll() {
	m.frustum = nil
	m.sides = allSides()
	for coord := range m.records {
		held, _ := m.buckets.Lookup(coord)
		for side, a := range held {
			for _, span := range a.Spans {
				if m.draws.Uploaded(side, span.Bucket) {
					_ = m.draws.Show(side, span.Bucket)
				}
			}
		}
	}
}

// DrawList is what the renderer needs for one side's multi-draw call.
type DrawList struct {
	Side world.BlockSide
	// Enabled is false when no face of this side can be seen.
	Enabled  bool
	Visible  int
	Commands []indirect.Command
}

// Count is the number of leading commands a multi-draw must cover to
// include every visible one.
func (d DrawList) Count() int {
	for i := len(d.Commands) - 1; i >= 0; i-- {
		if d.Commands[i].Visible() {
			return i + 1
		}
	}
	return 0
}

// DrawLists returns one command list per side.
func (m *Manager) DrawLists() [world.SideCount]DrawList {
	var out [world.SideCount]DrawList
	for _, side := range world.Sides {
		out[side] = DrawList{
			Side:     side,
			Enabled:  m.sides[side] && m.draws.Visible(side) > 0,
			Visible:  m.draws.Visible(side),
			Commands: m.draws.Commands(side),
		}
	}
	return out
}

// Check verifies that every shown draw command points at confirmed
// geometry of an owned bucket, on top of the bucket pool invariants.
func (m *Manager) Check() error {
	if err := m.buckets.Check(); err != nil {
		return err
	}
	for _, side := range world.Sides {
		for i, c := range m.draws.Commands(side) {
			if !c.Visible() {
				continue
			}
			b := m.buckets.Bucket(side, i)
			switch {
			case !b.Owned:
				return fmt.Errorf("chunkmesh: side %v bucket %d drawn while free: %w", side, i, buckets.ErrInvariant)
			case !m.draws.Uploaded(side, i):
				return fmt.Errorf("chunkmesh: side %v bucket %d drawn before upload: %w", side, i, buckets.ErrInvariant)
			case int(c.IndexCount) != b.IndexCount:
				return fmt.Errorf("chunkmesh: side %v bucket %d draws %d indices, holds %d: %w",
					side, i, c.IndexCount, b.IndexCount, buckets.ErrInvariant)
			}
		}
	}
	return nil
}
