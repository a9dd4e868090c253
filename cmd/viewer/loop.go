package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"voxmesh/internal/chunkmesh"
	"voxmesh/internal/config"
	"voxmesh/internal/game"
	"voxmesh/internal/graphics"
	"voxmesh/internal/graphics/renderables/blocks"
	renderer "voxmesh/internal/graphics/renderer"
	"voxmesh/internal/input"
	"voxmesh/internal/logging"
	"voxmesh/internal/profiling"
)

const (
	flySpeed         = 16.0 // blocks per second
	fastMultiplier   = 4.0
	mouseSensitivity = 0.1
)

type viewer struct {
	window  *glfw.Window
	input   *input.InputManager
	camera  *graphics.Camera
	r       *renderer.Renderer
	blocks  *blocks.Blocks
	session *game.Session
	limiter *game.FPSLimiter

	paused  bool
	culling bool
	frozen  bool
}

func (v *viewer) run() {
	ctx := context.Background()
	lastTime := time.Now()
	lastTitle := time.Now()
	frames := 0

	for !v.window.ShouldClose() {
		profiling.ResetFrame()
		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		func() { defer profiling.Track("glfw.PollEvents")(); glfw.PollEvents() }()
		v.handleActions()
		if !v.paused {
			v.fly(dt)
		}

		if v.culling && !v.frozen {
			v.session.Cull(v.camera.GetViewMatrix(), v.camera.GetProjectionMatrix(), v.camera.Front())
		}
		rep, err := v.session.Update(ctx, v.camera.Position)
		if errors.Is(err, chunkmesh.ErrUploadRetriesExhausted) {
			logging.Logger().Warn("chunk dropped after upload retries", "frame", rep.Frame, "err", err)
		} else if err != nil {
			logging.Logger().Error("mesh frame failed", "err", err)
		}

		v.r.Render(dt)
		func() { defer profiling.Track("glfw.SwapBuffers")(); v.window.SwapBuffers() }()
		v.input.PostUpdate()

		frames++
		if time.Since(lastTitle) >= time.Second {
			st := v.blocks.Stats()
			v.window.SetTitle(fmt.Sprintf("voxmesh | %d fps | %d chunks | %d draws | %d cmds",
				frames, v.session.Meshes.Counts()[chunkmesh.StateResident], st.DrawCalls, st.Visible))
			frames = 0
			lastTitle = time.Now()
		}

		if d := time.Since(now); d > 16*time.Millisecond {
			logging.Logger().Debug("slow frame", "dur", d, "top", profiling.TopN(5))
		}
		v.limiter.Wait(v.paused)
	}
}

func (v *viewer) handleActions() {
	im := v.input
	if im.JustPressed(input.ActionPause) {
		v.paused = !v.paused
		if v.paused {
			v.window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		} else {
			v.window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			im.ResetCursor()
		}
	}
	if im.JustPressed(input.ActionToggleWireframe) {
		v.blocks.Wireframe = !v.blocks.Wireframe
	}
	if im.JustPressed(input.ActionToggleCulling) {
		v.culling = !v.culling
		if !v.culling {
			v.session.Meshes.ShowAll()
		}
		logging.Logger().Info("culling", "enabled", v.culling)
	}
	if im.JustPressed(input.ActionFreezeCulling) {
		v.frozen = !v.frozen
		logging.Logger().Info("culling frozen", "frozen", v.frozen)
	}
	if im.JustPressed(input.ActionRenderDistanceUp) {
		config.SetRenderDistance(config.GetRenderDistance() + 1)
		logging.Logger().Info("render distance", "chunks", config.GetRenderDistance())
	}
	if im.JustPressed(input.ActionRenderDistanceDown) {
		config.SetRenderDistance(config.GetRenderDistance() - 1)
		logging.Logger().Info("render distance", "chunks", config.GetRenderDistance())
	}
	if im.JustPressed(input.ActionDumpStats) {
		t := v.session.Totals()
		logging.Logger().Info("stats",
			"states", v.session.Meshes.Counts(),
			"buckets", v.session.Meshes.Buckets().Stats(),
			"evicted", t.Evicted,
			"out_of_memory", t.OutOfMemory,
			"upload_failures", t.UploadFailures,
			"top", profiling.TopN(8))
	}
}

func (v *viewer) fly(dt float64) {
	im := v.input
	dx, dy := im.MouseDelta()
	v.camera.Rotate(float32(dx*mouseSensitivity), float32(-dy*mouseSensitivity))

	speed := float32(flySpeed * dt)
	if im.IsActive(input.ActionFast) {
		speed *= fastMultiplier
	}
	var forward, right, up float32
	if im.IsActive(input.ActionMoveForward) {
		forward += speed
	}
	if im.IsActive(input.ActionMoveBackward) {
		forward -= speed
	}
	if im.IsActive(input.ActionMoveRight) {
		right += speed
	}
	if im.IsActive(input.ActionMoveLeft) {
		right -= speed
	}
	if im.IsActive(input.ActionMoveUp) {
		up += speed
	}
	if im.IsActive(input.ActionMoveDown) {
		up -= speed
	}
	v.camera.Move(forward, right, up)
}
