package meshing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"voxmesh/internal/world"
)

// MeshJob represents a meshing job request
type MeshJob struct {
	Coord world.ChunkCoord
	// Ticket identifies the request; results carrying an older ticket are stale.
	Ticket uint64
	Source VoxelSource
	Sides  []world.BlockSide
}

// MeshResult contains the result of a meshing operation
type MeshResult struct {
	Coord    world.ChunkCoord
	Ticket   uint64
	Mesh     Mesh
	Geometry [world.SideCount]Geometry
	Elapsed  time.Duration
}

// Err returns the joined per-side meshing errors.
func (r *MeshResult) Err() error {
	return r.Mesh.Err()
}

// Run meshes a job synchronously. Workers call it; tests and tools may too.
func Run(job MeshJob) MeshResult {
	start := time.Now()
	res := MeshResult{Coord: job.Coord, Ticket: job.Ticket}
	res.Mesh = Greedy(job.Source, job.Sides)
	for _, side := range world.Sides {
		if sm := res.Mesh.Sides[side]; sm.Err == nil && len(sm.Quads) > 0 {
			res.Geometry[side] = BuildGeometry(job.Coord, sm.Quads)
		}
	}
	res.Elapsed = time.Since(start)
	return res
}

// WorkerPool manages goroutines for mesh generation. Results are delivered
// on a single channel read by the owner of the GPU-side state.
type WorkerPool struct {
	jobQueue chan MeshJob
	results  chan MeshResult
	workers  int
	inFlight atomic.Int64
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new mesh worker pool
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	workers = max(workers, 1)
	queueSize = max(queueSize, 1)
	pool := &WorkerPool{
		jobQueue: make(chan MeshJob, queueSize),
		results:  make(chan MeshResult, queueSize),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := range workers {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	return pool
}

// SubmitJob submits a mesh generation job to the pool
// Returns true if job was submitted successfully, false if queue is full or the pool is shut down
func (p *WorkerPool) SubmitJob(job MeshJob) bool {
	if p.ctx.Err() != nil {
		return false
	}
	p.inFlight.Add(1)
	select {
	case p.jobQueue <- job:
		return true
	default:
		p.inFlight.Add(-1)
		return false // Queue is full
	}
}

// SubmitJobBlocking submits a job and blocks until it's queued, ctx is done
// or the pool shuts down.
func (p *WorkerPool) SubmitJobBlocking(ctx context.Context, job MeshJob) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	p.inFlight.Add(1)
	select {
	case p.jobQueue <- job:
		return nil
	case <-ctx.Done():
		p.inFlight.Add(-1)
		return ctx.Err()
	case <-p.ctx.Done():
		p.inFlight.Add(-1)
		return p.ctx.Err()
	}
}

// Results returns the channel completed meshes are delivered on.
func (p *WorkerPool) Results() <-chan MeshResult {
	return p.results
}

// worker is the worker goroutine that processes mesh jobs
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			result := Run(job)

			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// Done must be called by the consumer for every result it receives.
func (p *WorkerPool) Done() {
	p.inFlight.Add(-1)
}

// InFlight returns jobs submitted whose results have not been consumed.
func (p *WorkerPool) InFlight() int {
	return int(p.inFlight.Load())
}

// Shutdown gracefully shuts down the worker pool. Queued jobs are dropped.
func (p *WorkerPool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

// GetQueueLength returns the current number of jobs in the queue
func (p *WorkerPool) GetQueueLength() int {
	return len(p.jobQueue)
}
