// Package game wires the world, the mesh worker pool and the chunk mesh
// manager into one per-frame update shared by the viewer and the bench.
package game

import (
	"context"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxmesh/internal/chunkmesh"
	"voxmesh/internal/config"
	"voxmesh/internal/culling"
	"voxmesh/internal/logging"
	"voxmesh/internal/meshing"
	"voxmesh/internal/profiling"
	"voxmesh/internal/upload"
	"voxmesh/internal/world"
)

// Totals accumulates frame reports over a session.
type Totals struct {
	Frames         int
	Allocated      int
	Uploaded       int
	UploadFailures int
	Evicted        int
	OutOfMemory    int
	Stale          int
	Dropped        int
	Held           int
}

func (t *Totals) add(rep chunkmesh.FrameReport) {
	t.Frames++
	t.Allocated += rep.Allocated
	t.Uploaded += rep.Uploaded
	t.UploadFailures += rep.UploadFailures
	t.Evicted += rep.Evicted
	t.OutOfMemory += len(rep.OutOfMemory)
	t.Stale += rep.Stale
	t.Dropped += len(rep.Dropped)
	t.Held += rep.Held
}

// Session owns every non-GL part of a running world.
type Session struct {
	Store    *world.ChunkStore
	Streamer *world.ChunkStreamer
	Pool     *meshing.WorkerPool
	Meshes   *chunkmesh.Manager

	// EvictEvery throttles far-chunk eviction; zero evicts every update.
	EvictEvery   time.Duration
	lastEviction time.Time

	totals Totals
}

// NewSession starts the generation and meshing workers. Geometry goes to
// uploader.
func NewSession(cfg config.Config, uploader upload.Uploader) (*Session, error) {
	store := world.NewChunkStore()
	pool := meshing.NewWorkerPool(cfg.MeshWorkers, cfg.MeshQueueSize)
	meshes, err := chunkmesh.New(cfg.MeshOptions(), store, pool, uploader)
	if err != nil {
		pool.Shutdown()
		return nil, err
	}
	s := &Session{
		Store:      store,
		Streamer:   world.NewChunkStreamer(store, cfg.WorldGen.Generator(), 0),
		Pool:       pool,
		Meshes:     meshes,
		EvictEvery: time.Second,
	}
	logging.Logger().Info("session started",
		"mesh_workers", cfg.MeshWorkers,
		"buckets_per_side", cfg.BucketsPerSide,
		"render_distance", config.GetRenderDistance())
	return s, nil
}

// ChunkAt returns the chunk containing world position pos.
func ChunkAt(pos mgl32.Vec3) world.ChunkCoord {
	return world.CoordForBlock(
		int(math.Floor(float64(pos[0]))),
		int(math.Floor(float64(pos[1]))),
		int(math.Floor(float64(pos[2]))))
}

// Update streams chunks around pos, evicts far ones and runs one mesh frame.
func (s *Session) Update(ctx context.Context, pos mgl32.Vec3) (chunkmesh.FrameReport, error) {
	defer profiling.Track("game.Update")()
	center := ChunkAt(pos)
	s.Streamer.StreamChunksAroundAsync(center, config.GetChunkLoadRadius())

	if s.EvictEvery == 0 || time.Since(s.lastEviction) >= s.EvictEvery {
		s.Streamer.EvictFarChunks(center, config.GetChunkEvictRadius())
		s.lastEviction = time.Now()
	}

	rep, err := s.Meshes.Frame(ctx)
	s.totals.add(rep)
	return rep, err
}

// Cull restricts drawing to chunks and sides the camera can see.
func (s *Session) Cull(view, proj mgl32.Mat4, front mgl32.Vec3) {
	s.Meshes.UpdateVisibility(culling.NewFrustum(proj.Mul4(view)), front)
}

// Totals returns the accumulated frame reports.
func (s *Session) Totals() Totals {
	return s.totals
}

// Close stops the workers. The session must not be updated afterwards.
func (s *Session) Close() {
	s.Streamer.Close()
	s.Pool.Shutdown()
}
