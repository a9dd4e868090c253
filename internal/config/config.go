package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"

	"voxmesh/internal/buckets"
	"voxmesh/internal/chunkmesh"
)

// Config is fixed at startup. Missing keys in a file keep their defaults.
type Config struct {
	BucketVertexCapacity   int      `yaml:"bucket_vertex_capacity"`
	BucketIndexCapacity    int      `yaml:"bucket_index_capacity"`
	BucketsPerSide         int      `yaml:"buckets_per_side"`
	MeshWorkers            int      `yaml:"mesh_workers"`
	MeshQueueSize          int      `yaml:"mesh_queue_size"`
	MaxUploadRetries       int      `yaml:"max_upload_retries"`
	MaxAllocationsPerFrame int      `yaml:"max_allocations_per_frame"`
	RenderDistance         int      `yaml:"render_distance"`
	FPSLimit               int      `yaml:"fps_limit"`
	LogLevel               string   `yaml:"log_level"`
	WorldGen               WorldGen `yaml:"world_gen"`
}

func Default() Config {
	b := buckets.DefaultConfig()
	return Config{
		BucketVertexCapacity:   b.VertexCapacity,
		BucketIndexCapacity:    b.IndexCapacity,
		BucketsPerSide:         b.BucketsPerSide,
		MeshWorkers:            max(runtime.NumCPU()-1, 1),
		MeshQueueSize:          200,
		MaxUploadRetries:       3,
		MaxAllocationsPerFrame: 64,
		RenderDistance:         8,
		FPSLimit:               120,
		LogLevel:               "info",
		WorldGen:               defaultWorldGen(),
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with. Render distance
// is clamped rather than rejected.
func (c *Config) Validate() error {
	var errs []error
	if err := c.BucketConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MeshWorkers <= 0 {
		errs = append(errs, fmt.Errorf("mesh_workers must be positive, got %d", c.MeshWorkers))
	}
	if c.MeshQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("mesh_queue_size must be positive, got %d", c.MeshQueueSize))
	}
	if c.MaxUploadRetries < 0 {
		errs = append(errs, fmt.Errorf("max_upload_retries must not be negative, got %d", c.MaxUploadRetries))
	}
	if c.MaxAllocationsPerFrame <= 0 {
		errs = append(errs, fmt.Errorf("max_allocations_per_frame must be positive, got %d", c.MaxAllocationsPerFrame))
	}
	if c.FPSLimit < 0 {
		errs = append(errs, fmt.Errorf("fps_limit must not be negative, got %d", c.FPSLimit))
	}
	c.RenderDistance = clampRenderDistance(c.RenderDistance)
	return errors.Join(errs...)
}

func (c Config) BucketConfig() buckets.Config {
	return buckets.Config{
		VertexCapacity: c.BucketVertexCapacity,
		IndexCapacity:  c.BucketIndexCapacity,
		BucketsPerSide: c.BucketsPerSide,
	}
}

func (c Config) MeshOptions() chunkmesh.Options {
	return chunkmesh.Options{
		Buckets:                c.BucketConfig(),
		MaxUploadRetries:       c.MaxUploadRetries,
		MaxAllocationsPerFrame: c.MaxAllocationsPerFrame,
	}
}

// RenderSettings holds what the viewer may change at runtime.
type RenderSettings struct {
	mu             sync.RWMutex
	renderDistance int // in chunks
	fpsLimit       int // 0 = unlimited
}

var globalRenderSettings = &RenderSettings{
	renderDistance: Default().RenderDistance,
	fpsLimit:       Default().FPSLimit,
}

// Apply installs cfg's runtime settings.
func Apply(cfg Config) {
	SetRenderDistance(cfg.RenderDistance)
	SetFPSLimit(cfg.FPSLimit)
}

// GetFPSLimit returns the frame cap, 0 meaning none
func GetFPSLimit() int {
	globalRenderSettings.mu.RLock()
	defer globalRenderSettings.mu.RUnlock()
	return globalRenderSettings.fpsLimit
}

// SetFPSLimit sets the frame cap; negative values mean none
func SetFPSLimit(limit int) {
	globalRenderSettings.mu.Lock()
	defer globalRenderSettings.mu.Unlock()
	globalRenderSettings.fpsLimit = max(limit, 0)
}

func clampRenderDistance(distance int) int {
	return min(max(distance, 2), 50)
}

// GetRenderDistance returns the current render distance in chunks
func GetRenderDistance() int {
	globalRenderSettings.mu.RLock()
	defer globalRenderSettings.mu.RUnlock()
	return globalRenderSettings.renderDistance
}

// SetRenderDistance sets the render distance in chunks
func SetRenderDistance(distance int) {
	globalRenderSettings.mu.Lock()
	defer globalRenderSettings.mu.Unlock()
	globalRenderSettings.renderDistance = clampRenderDistance(distance)
}

// GetChunkLoadRadius returns radius for chunk loading
func GetChunkLoadRadius() int {
	return GetRenderDistance()
}

// GetChunkEvictRadius returns radius for chunk eviction (larger than load radius)
func GetChunkEvictRadius() int {
	return GetRenderDistance() + 2
}
