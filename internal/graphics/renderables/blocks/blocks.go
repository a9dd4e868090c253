package blocks

import (
	"github.com/go-gl/gl/v4.3-core/gl"

	"voxmesh/internal/graphics"
	renderer "voxmesh/internal/graphics/renderer"
	"voxmesh/internal/profiling"
	"voxmesh/internal/upload"
)

// Blocks draws chunk geometry straight from the shared side buffers with
// one indirect multi-draw per enabled side.
type Blocks struct {
	layout  upload.Layout
	shader  *graphics.Shader
	buffers *Buffers
	texture uint32
	source  DrawSource

	// Wireframe draws polygon outlines only.
	Wireframe bool

	stats Stats
}

// NewBlocks creates the renderable; GL objects are created in Init.
func NewBlocks(layout upload.Layout) *Blocks {
	return &Blocks{layout: layout}
}

// Init compiles the shader and allocates the side buffers and textures.
func (b *Blocks) Init() error {
	var err error
	b.shader, err = graphics.NewShader(mainVertShader, mainFragShader)
	if err != nil {
		return err
	}
	b.shader.Use()
	b.shader.SetInt("blockTextures", 0)
	b.shader.SetFloatArray("sideShade", sideShade[:])

	if b.texture, err = newTextureArray(); err != nil {
		return err
	}
	b.buffers, err = NewBuffers(b.layout)
	return err
}

// Uploader returns the GL buffers as an upload target. Valid after Init.
func (b *Blocks) Uploader() upload.Uploader {
	return b.buffers
}

// SetSource installs the draw list provider; nothing is drawn until set.
func (b *Blocks) SetSource(src DrawSource) {
	b.source = src
}

// Stats returns the counters of the last Render.
func (b *Blocks) Stats() Stats {
	return b.stats
}

// Render draws every enabled side
func (b *Blocks) Render(ctx renderer.RenderContext) {
	defer profiling.Track("renderer.renderBlocks")()
	b.stats = Stats{}
	if b.source == nil || b.buffers == nil {
		return
	}

	if b.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
		defer gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}

	b.shader.Use()
	b.shader.SetMatrix4("proj", &ctx.Proj[0])
	b.shader.SetMatrix4("view", &ctx.View[0])
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D_ARRAY, b.texture)

	for _, list := range b.source.DrawLists() {
		if !list.Enabled {
			continue
		}
		n := list.Count()
		b.buffers.Draw(list.Side, n)
		b.stats.DrawCalls++
		b.stats.Commands += n
		b.stats.Visible += list.Visible
	}
	gl.BindVertexArray(0)
	profiling.Add("renderer.drawCalls", int64(b.stats.DrawCalls))
}

// Dispose cleans up OpenGL resources
func (b *Blocks) Dispose() {
	if b.buffers != nil {
		b.buffers.Delete()
		b.buffers = nil
	}
	if b.texture != 0 {
		gl.DeleteTextures(1, &b.texture)
		b.texture = 0
	}
	if b.shader != nil {
		b.shader.Delete()
		b.shader = nil
	}
}
