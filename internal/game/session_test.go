package game

import (
	"context"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxmesh/internal/chunkmesh"
	"voxmesh/internal/config"
	"voxmesh/internal/profiling"
	"voxmesh/internal/upload"
	"voxmesh/internal/world"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.BucketsPerSide = 64
	cfg.MeshWorkers = 2
	cfg.MeshQueueSize = 16
	cfg.WorldGen.Flat = true
	cfg.WorldGen.FlatHeight = 4
	return cfg
}

func withRenderDistance(t *testing.T, d int) {
	prev := config.GetRenderDistance()
	config.SetRenderDistance(d)
	t.Cleanup(func() { config.SetRenderDistance(prev) })
}

// settle updates until every loaded chunk is resident and nothing is pending.
func settle(t *testing.T, s *Session, pos mgl32.Vec3, wantChunks int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		_, err := s.Update(context.Background(), pos)
		require.NoError(t, err)
		require.NoError(t, s.Meshes.Check())
		if s.Store.Len() == wantChunks &&
			s.Streamer.Pending() == 0 &&
			s.Pool.InFlight() == 0 &&
			s.Meshes.Counts()[chunkmesh.StateResident] == wantChunks {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("not settled: loaded=%d resident=%d in_flight=%d",
		s.Store.Len(), s.Meshes.Counts()[chunkmesh.StateResident], s.Pool.InFlight())
}

func TestSessionStreamsAndMeshesAroundCamera(t *testing.T) {
	withRenderDistance(t, 2)
	cfg := testConfig()
	uploader := upload.NewMemoryUploader(upload.NewLayout(cfg.BucketConfig()))
	s, err := NewSession(cfg, uploader)
	require.NoError(t, err)
	defer s.Close()
	s.EvictEvery = 0

	// streaming covers the 5x5 square of columns; flat terrain is one chunk high
	settle(t, s, mgl32.Vec3{8, 10, 8}, 25)

	applied, failed := uploader.Uploads()
	assert.Positive(t, applied)
	assert.Zero(t, failed)
	totals := s.Totals()
	assert.Positive(t, totals.Allocated)
	assert.Zero(t, totals.Dropped)

	for _, side := range world.Sides {
		assert.Positive(t, s.Meshes.Draws().Visible(side), side.String())
	}

	// moving away evicts the far columns and frees their buckets
	settle(t, s, mgl32.Vec3{8 + 16*8, 10, 8}, 25)
	assert.False(t, s.Store.HasChunk(world.ChunkCoord{}))
	assert.False(t, s.Meshes.Buckets().Holds(world.ChunkCoord{}))
	assert.Equal(t, chunkmesh.StateUnloaded, s.Meshes.State(world.ChunkCoord{}))
}

func TestCullHidesChunksBehindCamera(t *testing.T) {
	withRenderDistance(t, 2)
	cfg := testConfig()
	s, err := NewSession(cfg, upload.NewMemoryUploader(upload.NewLayout(cfg.BucketConfig())))
	require.NoError(t, err)
	defer s.Close()

	pos := mgl32.Vec3{8, 10, 8}
	settle(t, s, pos, 25)
	total := 0
	for _, side := range world.Sides {
		total += s.Meshes.Draws().Visible(side)
	}

	cam := mgl32.Vec3{8, 10, -200}
	front := mgl32.Vec3{0, 0, -1}
	view := mgl32.LookAtV(cam, cam.Add(front), mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(70), 1, 0.1, 100)
	s.Cull(view, proj, front)
	_, err = s.Update(context.Background(), pos)
	require.NoError(t, err)

	after := 0
	for _, side := range world.Sides {
		after += s.Meshes.Draws().Visible(side)
	}
	assert.Positive(t, total)
	assert.Zero(t, after)
}

func TestCullTimesVisibilityOnce(t *testing.T) {
	withRenderDistance(t, 2)
	cfg := testConfig()
	s, err := NewSession(cfg, upload.NewMemoryUploader(upload.NewLayout(cfg.BucketConfig())))
	require.NoError(t, err)
	defer s.Close()

	pos := mgl32.Vec3{8, 10, 8}
	settle(t, s, pos, 25)

	view := mgl32.LookAtV(pos, pos.Add(mgl32.Vec3{1, 0, 0}), mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(70), 1, 0.1, 100)
	profiling.ResetFrame()
	start := time.Now()
	s.Cull(view, proj, mgl32.Vec3{1, 0, 0})
	elapsed := time.Since(start)

	tracked := profiling.Snapshot()["chunkmesh.UpdateVisibility"]
	assert.Positive(t, tracked)
	assert.LessOrEqual(t, tracked, elapsed)
}

func TestTotalsCountReportedChunks(t *testing.T) {
	var totals Totals
	totals.add(chunkmesh.FrameReport{
		Allocated:   6,
		Uploaded:    1,
		Held:        2,
		OutOfMemory: []chunkmesh.SideRef{{Side: world.SideTop}, {Side: world.SideLeft}},
		Dropped:     []world.ChunkCoord{{X: 1}},
	})
	totals.add(chunkmesh.FrameReport{Dropped: []world.ChunkCoord{{X: 2}, {X: 3}}})

	assert.Equal(t, Totals{Frames: 2, Allocated: 6, Uploaded: 1, OutOfMemory: 2, Dropped: 3, Held: 2}, totals)
}

func TestChunkAtFloorsNegativePositions(t *testing.T) {
	assert.Equal(t, world.ChunkCoord{X: -1, Y: 0, Z: 0}, ChunkAt(mgl32.Vec3{-0.5, 3, 15.9}))
	assert.Equal(t, world.ChunkCoord{X: 1, Y: -1, Z: -2}, ChunkAt(mgl32.Vec3{16, -1, -17}))
}

func TestEffectiveLimitWhilePaused(t *testing.T) {
	assert.Equal(t, 144, effectiveLimit(144, false))
	assert.Equal(t, 0, effectiveLimit(0, false))
	assert.Equal(t, pausedFPS, effectiveLimit(0, true))
	assert.Equal(t, pausedFPS, effectiveLimit(240, true))
	assert.Equal(t, 20, effectiveLimit(20, true))
}

func TestFPSLimiterPacesFrames(t *testing.T) {
	f := NewFPSLimiter()
	start := time.Now()
	for range 5 {
		f.wait(200)
	}
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
