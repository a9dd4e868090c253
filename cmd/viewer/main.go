// Command viewer flies a camera over streamed terrain and draws it from the
// shared side buffers with indirect multi-draws.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/xlab/closer"

	"voxmesh/internal/config"
	"voxmesh/internal/game"
	"voxmesh/internal/graphics"
	"voxmesh/internal/graphics/renderables/blocks"
	renderer "voxmesh/internal/graphics/renderer"
	"voxmesh/internal/input"
	"voxmesh/internal/logging"
	"voxmesh/internal/upload"
)

func init() {
	runtime.LockOSThread()
}

const (
	winW = 1280
	winH = 720
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults if empty)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "viewer:", err)
			os.Exit(2)
		}
	}
	logging.SetLogger(logging.NewText(cfg.LogLevel))
	config.Apply(cfg)

	if err := glfw.Init(); err != nil {
		closer.Fatalln("viewer: glfw:", err)
	}
	defer glfw.Terminate()

	window, err := setupWindow()
	if err != nil {
		closer.Fatalln("viewer: window:", err)
	}

	camera := graphics.NewCamera(winW, winH)
	blocksRenderer := blocks.NewBlocks(upload.NewLayout(cfg.BucketConfig()))
	r, err := renderer.NewRenderer(camera, blocksRenderer)
	if err != nil {
		closer.Fatalln("viewer: renderer:", err)
	}

	session, err := game.NewSession(cfg, blocksRenderer.Uploader())
	if err != nil {
		r.Dispose()
		closer.Fatalln("viewer: session:", err)
	}
	blocksRenderer.SetSource(session.Meshes)
	closer.Bind(session.Close)

	spawnY := cfg.WorldGen.Generator().HeightAt(0, 0)
	camera.Position = [3]float32{0.5, float32(spawnY) + 12, 0.5}
	camera.Pitch = -20

	fbw, fbh := window.GetFramebufferSize()
	r.UpdateViewport(fbw, fbh)
	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		r.UpdateViewport(width, height)
	})

	im := input.NewInputManager()
	im.Install(window)

	v := &viewer{
		window:  window,
		input:   im,
		camera:  camera,
		r:       r,
		blocks:  blocksRenderer,
		session: session,
		limiter: game.NewFPSLimiter(),
		culling: true,
	}
	v.run()

	// GL objects go on this thread, before the closer exits the process
	r.Dispose()
	closer.Close()
}

func setupWindow() (*glfw.Window, error) {
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	window, err := glfw.CreateWindow(winW, winH, "voxmesh", nil, nil)
	if err != nil {
		return nil, err
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		return nil, err
	}
	logging.Logger().Info("opengl ready", "version", gl.GoStr(gl.GetString(gl.VERSION)))

	// frame pacing is done by the FPS limiter
	glfw.SwapInterval(0)
	window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)

	return window, nil
}
