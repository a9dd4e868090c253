package meshing

import (
	"encoding/binary"
	"math"

	"voxmesh/internal/world"
)

const (
	// VertexSize is the encoded size of one Vertex in bytes.
	VertexSize = 28
	// IndexSize is the encoded size of one index in bytes.
	IndexSize = 4

	VerticesPerQuad = 4
	IndicesPerQuad  = 6
)

// Vertex is one corner of a quad in world space. U and V tile the texture
// once per voxel.
type Vertex struct {
	X, Y, Z int32
	Texture uint32
	U, V    float32
	Side    uint32
}

// Geometry is the expanded vertex/index form of a side's quads. Indices are
// relative to the first vertex of the slice.
type Geometry struct {
	Vertices []Vertex
	Indices  []uint32
}

func (g Geometry) Empty() bool {
	return len(g.Vertices) == 0
}

var quadIndices = [IndicesPerQuad]uint32{0, 1, 2, 0, 2, 3}

// windingMatchesUV reports whether u x v points along the side's outward
// normal, in which case corners are emitted in u,v order.
func windingMatchesUV(side world.BlockSide) bool {
	switch side {
	case world.SideFront, world.SideBottom, world.SideRight:
		return true
	}
	return false
}

// BuildGeometry expands quads of a chunk into world-space vertices and
// indices, four and six per quad, wound counter-clockwise seen from outside.
func BuildGeometry(coord world.ChunkCoord, quads []Quad) Geometry {
	if len(quads) == 0 {
		return Geometry{}
	}
	g := Geometry{
		Vertices: make([]Vertex, 0, len(quads)*VerticesPerQuad),
		Indices:  make([]uint32, 0, len(quads)*IndicesPerQuad),
	}
	ox, oy, oz := coord.Origin()
	for _, q := range quads {
		n, ua, va := sliceAxes(q.Side)

		var base [3]int
		base[0], base[1], base[2] = ox+q.X, oy+q.Y, oz+q.Z
		if q.Side.Sign() > 0 {
			base[n]++
		}

		type corner struct{ du, dv int }
		corners := [4]corner{{0, 0}, {q.Width, 0}, {q.Width, q.Height}, {0, q.Height}}
		if !windingMatchesUV(q.Side) {
			corners = [4]corner{{0, 0}, {0, q.Height}, {q.Width, q.Height}, {q.Width, 0}}
		}

		first := uint32(len(g.Vertices))
		for _, c := range corners {
			p := base
			p[ua] += c.du
			p[va] += c.dv
			g.Vertices = append(g.Vertices, Vertex{
				X:       int32(p[0]),
				Y:       int32(p[1]),
				Z:       int32(p[2]),
				Texture: q.Texture,
				U:       float32(c.du),
				V:       float32(c.dv),
				Side:    uint32(q.Side),
			})
		}
		for _, i := range quadIndices {
			g.Indices = append(g.Indices, first+i)
		}
	}
	return g
}

// AppendVertices appends the little-endian encoding of vs to dst.
func AppendVertices(dst []byte, vs []Vertex) []byte {
	for _, v := range vs {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v.X))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v.Y))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v.Z))
		dst = binary.LittleEndian.AppendUint32(dst, v.Texture)
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.U))
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.V))
		dst = binary.LittleEndian.AppendUint32(dst, v.Side)
	}
	return dst
}

// AppendIndices appends the little-endian encoding of idx, each shifted by
// -rebase, to dst.
func AppendIndices(dst []byte, idx []uint32, rebase uint32) []byte {
	for _, i := range idx {
		dst = binary.LittleEndian.AppendUint32(dst, i-rebase)
	}
	return dst
}

// DecodeVertex reads one vertex from the start of b.
func DecodeVertex(b []byte) Vertex {
	return Vertex{
		X:       int32(binary.LittleEndian.Uint32(b[0:])),
		Y:       int32(binary.LittleEndian.Uint32(b[4:])),
		Z:       int32(binary.LittleEndian.Uint32(b[8:])),
		Texture: binary.LittleEndian.Uint32(b[12:]),
		U:       math.Float32frombits(binary.LittleEndian.Uint32(b[16:])),
		V:       math.Float32frombits(binary.LittleEndian.Uint32(b[20:])),
		Side:    binary.LittleEndian.Uint32(b[24:]),
	}
}
