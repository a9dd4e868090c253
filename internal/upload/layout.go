package upload

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"voxmesh/internal/buckets"
	"voxmesh/internal/meshing"
	"voxmesh/internal/world"
)

// BufferKind distinguishes the three shared buffers kept per side.
type BufferKind uint8

const (
	KindVertex BufferKind = iota
	KindIndex
	KindIndirect
)

func (k BufferKind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindIndex:
		return "index"
	case KindIndirect:
		return "indirect"
	}
	return fmt.Sprintf("BufferKind(%d)", uint8(k))
}

// BufferID names one shared GPU buffer.
type BufferID struct {
	Side world.BlockSide
	Kind BufferKind
}

func (id BufferID) String() string {
	return id.Side.String() + "/" + id.Kind.String()
}

// DrawIndexedIndirectSize is the encoded size of one indexed indirect draw
// command: count, instanceCount, firstIndex, baseVertex, baseInstance.
const DrawIndexedIndirectSize = 20

// Layout derives the size and usage of every shared buffer from the bucket
// configuration.
type Layout struct {
	cfg buckets.Config
}

func NewLayout(cfg buckets.Config) Layout {
	return Layout{cfg: cfg}
}

func (l Layout) Config() buckets.Config { return l.cfg }

// Buffers lists every buffer in side-major order.
func (l Layout) Buffers() []BufferID {
	out := make([]BufferID, 0, world.SideCount*3)
	for _, side := range world.Sides {
		for _, kind := range []BufferKind{KindVertex, KindIndex, KindIndirect} {
			out = append(out, BufferID{Side: side, Kind: kind})
		}
	}
	return out
}

// Size returns the byte size of buffer id.
func (l Layout) Size(id BufferID) uint64 {
	switch id.Kind {
	case KindVertex:
		return uint64(l.cfg.VertexBufferSize())
	case KindIndex:
		return uint64(l.cfg.IndexBufferSize())
	case KindIndirect:
		return uint64(l.cfg.BucketsPerSide * DrawIndexedIndirectSize)
	}
	return 0
}

// Usage returns the usage flags a backend must create buffer id with.
func (l Layout) Usage(id BufferID) gputypes.BufferUsage {
	switch id.Kind {
	case KindVertex:
		return gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	case KindIndex:
		return gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	case KindIndirect:
		return gputypes.BufferUsageIndirect | gputypes.BufferUsageCopyDst
	}
	return gputypes.BufferUsageNone
}

// Descriptor returns the creation descriptor of buffer id.
func (l Layout) Descriptor(id BufferID) gputypes.BufferDescriptor {
	return gputypes.BufferDescriptor{
		Label: "voxmesh " + id.String(),
		Size:  l.Size(id),
		Usage: l.Usage(id),
	}
}

// IndexFormat is the element type of every index buffer.
const IndexFormat = gputypes.IndexFormatUint32

// VertexLayout describes meshing.Vertex as bound by the renderer:
// location 0 position, 1 texture layer, 2 tiling uv, 3 side.
func VertexLayout() gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: meshing.VertexSize,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatSint32x3, Offset: 0, ShaderLocation: 0},
			{Format: gputypes.VertexFormatUint32, Offset: 12, ShaderLocation: 1},
			{Format: gputypes.VertexFormatFloat32x2, Offset: 16, ShaderLocation: 2},
			{Format: gputypes.VertexFormatUint32, Offset: 24, ShaderLocation: 3},
		},
	}
}
