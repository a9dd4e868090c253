// Command meshbench streams terrain past a moving camera without a window,
// driving the full mesh pipeline against in-memory buffers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"

	"voxmesh/internal/buckets"
	"voxmesh/internal/chunkmesh"
	"voxmesh/internal/config"
	"voxmesh/internal/game"
	"voxmesh/internal/logging"
	"voxmesh/internal/profiling"
	"voxmesh/internal/upload"
	"voxmesh/internal/world"
)

type options struct {
	configPath string
	frames     int
	tick       time.Duration
	speed      float64
	radius     int
	cull       bool
	failEvery  int
	dumpPath   string
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config file (defaults if empty)")
	flag.IntVar(&o.frames, "frames", 600, "frames to run")
	flag.DurationVar(&o.tick, "tick", 4*time.Millisecond, "wall time per frame")
	flag.Float64Var(&o.speed, "speed", 0.5, "camera speed in blocks per frame along +X")
	flag.IntVar(&o.radius, "radius", 0, "render distance override in chunks")
	flag.BoolVar(&o.cull, "cull", true, "apply frustum and side culling")
	flag.IntVar(&o.failEvery, "fail-every", 0, "inject one upload failure every N frames")
	flag.StringVar(&o.dumpPath, "dump", "", "write the final bucket pool state here (zstd JSON)")
	flag.Parse()
	return o
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		err := cfg.Validate()
		return cfg, err
	}
	return config.Load(path)
}

func main() {
	opts := parseFlags()
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "meshbench:", err)
		os.Exit(2)
	}
	if opts.radius > 0 {
		cfg.RenderDistance = opts.radius
	}
	logging.SetLogger(logging.NewText(cfg.LogLevel))
	config.Apply(cfg)

	uploader := upload.NewMemoryUploader(upload.NewLayout(cfg.BucketConfig()))
	session, err := game.NewSession(cfg, uploader)
	if err != nil {
		closer.Fatalln("meshbench:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	closer.Bind(func() {
		cancel()
		<-done
		session.Close()
		report(session, uploader)
	})

	go func() {
		defer close(done)
		if err := run(ctx, session, uploader, opts); err != nil && !errors.Is(err, context.Canceled) {
			logging.Logger().Error("bench stopped", "err", err)
		}
		if opts.dumpPath != "" {
			if err := dump(opts.dumpPath, session.Meshes.Buckets().Snapshot()); err != nil {
				logging.Logger().Error("dump failed", "path", opts.dumpPath, "err", err)
			} else {
				logging.Logger().Info("pool state written", "path", opts.dumpPath)
			}
		}
		go closer.Close()
	}()
	closer.Hold()
}

func run(ctx context.Context, s *game.Session, uploader *upload.MemoryUploader, opts options) error {
	pos := mgl32.Vec3{8, float32(world.ChunkSize + 8), 8}
	front := mgl32.Vec3{1, -0.3, 0}.Normalize()
	proj := mgl32.Perspective(mgl32.DegToRad(70), 16.0/9.0, 0.1, 1000)
	if !opts.cull {
		s.Meshes.ShowAll()
	}

	ticker := time.NewTicker(opts.tick)
	defer ticker.Stop()
	for frame := 1; frame <= opts.frames; frame++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if opts.failEvery > 0 && frame%opts.failEvery == 0 {
			uploader.FailNext(1)
		}
		if opts.cull {
			view := mgl32.LookAtV(pos, pos.Add(front), mgl32.Vec3{0, 1, 0})
			s.Cull(view, proj, front)
		}
		rep, err := s.Update(ctx, pos)
		if errors.Is(err, chunkmesh.ErrUploadRetriesExhausted) {
			logging.Logger().Warn("chunk dropped after upload retries", "frame", rep.Frame, "err", err)
		} else if err != nil {
			return err
		}
		if frame%100 == 0 {
			logging.Logger().Info("progress",
				"frame", frame,
				"chunks", s.Store.Len(),
				"resident", s.Meshes.Counts()[chunkmesh.StateResident],
				"buckets", s.Meshes.Buckets().Stats(),
				"top", profiling.TopN(3))
		}
		pos[0] += float32(opts.speed)
	}
	return s.Meshes.Check()
}

func report(s *game.Session, uploader *upload.MemoryUploader) {
	t := s.Totals()
	applied, failed := uploader.Uploads()
	counters := profiling.Counters()
	logging.Logger().Info("bench finished",
		"frames", t.Frames,
		"allocated", t.Allocated,
		"uploaded", t.Uploaded,
		"upload_failures", t.UploadFailures,
		"evicted", t.Evicted,
		"out_of_memory", t.OutOfMemory,
		"stale", t.Stale,
		"dropped", t.Dropped,
		"held", t.Held,
		"batches_applied", applied,
		"batches_failed", failed,
		"upload_bytes", counters["upload.bytes"])
	for _, side := range world.Sides {
		id := upload.BufferID{Side: side, Kind: upload.KindVertex}
		st := uploader.Stats(id)
		logging.Logger().Info("side",
			"side", side.String(),
			"occupied", s.Meshes.Buckets().Occupied(side),
			"vertex_writes", st.Writes,
			"vertex_high_water", st.HighWater)
	}
	fmt.Println(profiling.TopN(8))
}

func dump(path string, snap buckets.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := buckets.WriteSnapshot(f, snap); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
