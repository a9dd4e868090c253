package blocks

import (
	"context"
	"fmt"

	"github.com/go-gl/gl/v4.3-core/gl"

	"voxmesh/internal/graphics"
	"voxmesh/internal/logging"
	"voxmesh/internal/upload"
	"voxmesh/internal/world"
)

// Buffers owns the shared vertex, index and indirect buffers of every side
// and applies upload batches to them. Calls must come from the GL thread.
type Buffers struct {
	layout upload.Layout
	names  map[upload.BufferID]uint32
	vaos   [world.SideCount]uint32
}

// NewBuffers allocates every buffer of layout at full size and one VAO per
// side binding that side's vertex and index buffers.
func NewBuffers(layout upload.Layout) (*Buffers, error) {
	b := &Buffers{
		layout: layout,
		names:  make(map[upload.BufferID]uint32),
	}
	var total uint64
	for _, id := range layout.Buffers() {
		desc := layout.Descriptor(id)
		var name uint32
		gl.GenBuffers(1, &name)
		target := bufferTarget(desc.Usage)
		gl.BindBuffer(target, name)
		gl.BufferData(target, int(desc.Size), nil, gl.DYNAMIC_DRAW)
		gl.BindBuffer(target, 0)
		b.names[id] = name
		total += desc.Size
	}

	for _, side := range world.Sides {
		gl.GenVertexArrays(1, &b.vaos[side])
		gl.BindVertexArray(b.vaos[side])
		gl.BindBuffer(gl.ARRAY_BUFFER, b.names[upload.BufferID{Side: side, Kind: upload.KindVertex}])
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, b.names[upload.BufferID{Side: side, Kind: upload.KindIndex}])
		if err := setupVertexLayout(upload.VertexLayout()); err != nil {
			gl.BindVertexArray(0)
			b.Delete()
			return nil, err
		}
		gl.BindVertexArray(0)
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	if err := graphics.CheckError("create side buffers"); err != nil {
		b.Delete()
		return nil, err
	}
	logging.Logger().Info("side buffers created", "buffers", len(b.names), "bytes", total)
	return b, nil
}

// Upload writes every command of batch. Bounds are checked before anything
// is written; a GL error afterwards fails the whole batch.
func (b *Buffers) Upload(ctx context.Context, batch upload.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, c := range batch.Commands {
		if _, ok := b.names[c.Target]; !ok {
			return fmt.Errorf("%w: unknown buffer %s", upload.ErrOutOfBounds, c.Target)
		}
		if size := b.layout.Size(c.Target); c.End() > size {
			return fmt.Errorf("%w: %s [%d,%d) past %d", upload.ErrOutOfBounds, c.Target, c.Offset, c.End(), size)
		}
	}

	for _, c := range batch.Commands {
		if len(c.Payload) == 0 {
			continue
		}
		// COPY_WRITE_BUFFER leaves VAO element bindings alone
		gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.names[c.Target])
		gl.BufferSubData(gl.COPY_WRITE_BUFFER, int(c.Offset), len(c.Payload), gl.Ptr(c.Payload))
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)

	if err := graphics.CheckError(fmt.Sprintf("upload batch %d", batch.ID)); err != nil {
		return fmt.Errorf("%w: %v", upload.ErrUploadFailed, err)
	}
	return nil
}

// Draw issues one indexed multi-draw over the first count indirect commands of side.
func (b *Buffers) Draw(side world.BlockSide, count int) {
	if count <= 0 {
		return
	}
	gl.BindVertexArray(b.vaos[side])
	gl.BindBuffer(gl.DRAW_INDIRECT_BUFFER, b.names[upload.BufferID{Side: side, Kind: upload.KindIndirect}])
	gl.MultiDrawElementsIndirect(gl.TRIANGLES, indexType(upload.IndexFormat), nil, int32(count), 0)
}

// Delete releases every buffer and VAO.
func (b *Buffers) Delete() {
	for _, side := range world.Sides {
		if b.vaos[side] != 0 {
			gl.DeleteVertexArrays(1, &b.vaos[side])
			b.vaos[side] = 0
		}
	}
	for id, name := range b.names {
		gl.DeleteBuffers(1, &name)
		delete(b.names, id)
	}
}
