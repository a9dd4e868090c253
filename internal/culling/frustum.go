// Package culling decides which chunks and which sides are worth drawing
// from the camera's projection*view matrix and view direction.
package culling

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxmesh/internal/world"
)

// Margin inflates chunk bounds, in blocks, before testing them.
var Margin float32 = 1.0

type plane struct {
	a, b, c, d float32
}

// Frustum holds six planes in order: left, right, bottom, top, near, far.
type Frustum struct {
	planes [6]plane
}

// NewFrustum builds the frustum of the combined projection*view matrix.
func NewFrustum(clip mgl32.Mat4) Frustum {
	// mgl32 matrices are column-major
	m00, m01, m02, m03 := clip[0], clip[4], clip[8], clip[12]
	m10, m11, m12, m13 := clip[1], clip[5], clip[9], clip[13]
	m20, m21, m22, m23 := clip[2], clip[6], clip[10], clip[14]
	m30, m31, m32, m33 := clip[3], clip[7], clip[11], clip[15]

	var f Frustum
	f.planes[0] = normalizePlane(plane{m30 + m00, m31 + m01, m32 + m02, m33 + m03})
	f.planes[1] = normalizePlane(plane{m30 - m00, m31 - m01, m32 - m02, m33 - m03})
	f.planes[2] = normalizePlane(plane{m30 + m10, m31 + m11, m32 + m12, m33 + m13})
	f.planes[3] = normalizePlane(plane{m30 - m10, m31 - m11, m32 - m12, m33 - m13})
	f.planes[4] = normalizePlane(plane{m30 + m20, m31 + m21, m32 + m22, m33 + m23})
	f.planes[5] = normalizePlane(plane{m30 - m20, m31 - m21, m32 - m22, m33 - m23})
	return f
}

func normalizePlane(p plane) plane {
	l := float32(math.Sqrt(float64(p.a*p.a + p.b*p.b + p.c*p.c)))
	if l == 0 {
		return p
	}
	return plane{p.a / l, p.b / l, p.c / l, p.d / l}
}

// IntersectsAABB reports whether the box is at least partly inside.
func (f Frustum) IntersectsAABB(min, max mgl32.Vec3) bool {
	for _, p := range f.planes {
		// positive vertex along the plane normal
		px := max.X()
		if p.a < 0 {
			px = min.X()
		}
		py := max.Y()
		if p.b < 0 {
			py = min.Y()
		}
		pz := max.Z()
		if p.c < 0 {
			pz = min.Z()
		}
		if p.a*px+p.b*py+p.c*pz+p.d < 0 {
			return false
		}
	}
	return true
}

// ContainsChunk tests the chunk's bounds inflated by Margin.
func (f Frustum) ContainsChunk(c world.ChunkCoord) bool {
	x, y, z := c.Origin()
	lo := mgl32.Vec3{float32(x) - Margin, float32(y) - Margin, float32(z) - Margin}
	s := float32(world.ChunkSize) + Margin
	hi := mgl32.Vec3{float32(x) + s, float32(y) + s, float32(z) + s}
	return f.IntersectsAABB(lo, hi)
}

// SideCutoff is cos(45°). A side is skipped once the view direction points
// along its normal by more than this.
const SideCutoff = math.Sqrt2 / 2

// VisibleSides returns which sides can face a camera looking along view,
// which must be normalised.
func VisibleSides(view mgl32.Vec3) [world.SideCount]bool {
	var out [world.SideCount]bool
	for _, side := range world.Sides {
		out[side] = side.Normal().Dot(view) < SideCutoff
	}
	return out
}
