package meshing

import (
	"errors"
	"fmt"

	"voxmesh/internal/world"
)

// ErrInvalidChunkData reports a voxel that was unavailable or held an unknown
// block id while a side was being meshed.
var ErrInvalidChunkData = errors.New("meshing: invalid chunk data")

// VoxelSource is a read-only padded view of one chunk. Local coordinates run
// from -1 to world.ChunkSize; the boolean is false for unavailable voxels.
type VoxelSource interface {
	Coord() world.ChunkCoord
	Block(x, y, z int) (world.BlockType, bool)
}

// Quad is a merged face. X, Y, Z is the chunk-local voxel at the min-u/min-v
// corner; Width runs along the side's u axis and Height along v.
type Quad struct {
	Side    world.BlockSide
	X, Y, Z int
	Width   int
	Height  int
	Texture uint32
}

// SideMesh is the greedy output for one side.
type SideMesh struct {
	Quads []Quad
	Err   error
}

// Mesh holds per-side greedy output for a chunk.
type Mesh struct {
	Coord     world.ChunkCoord
	Requested [world.SideCount]bool
	Sides     [world.SideCount]SideMesh
}

// Err joins the errors of every failed side.
func (m *Mesh) Err() error {
	var errs []error
	for _, s := range m.Sides {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errors.Join(errs...)
}

// QuadCount returns the number of quads over all sides.
func (m *Mesh) QuadCount() int {
	n := 0
	for _, s := range m.Sides {
		n += len(s.Quads)
	}
	return n
}

// sliceAxes returns the normal axis and the in-slice u and v axes of a side.
// FRONT/BACK: u=z, v=y. BOTTOM/TOP: u=x, v=z. LEFT/RIGHT: u=x, v=y.
func sliceAxes(side world.BlockSide) (n, u, v int) {
	switch side {
	case world.SideFront, world.SideBack:
		return 0, 2, 1
	case world.SideBottom, world.SideTop:
		return 1, 0, 2
	case world.SideLeft, world.SideRight:
		return 2, 0, 1
	}
	panic(fmt.Sprintf("meshing: invalid block side %d", side))
}

type maskCell struct {
	visible bool
	texture uint32
}

const sliceArea = world.ChunkSize * world.ChunkSize

// Greedy meshes the requested sides of src. Sides are independent: a side
// that consults invalid data reports ErrInvalidChunkData and emits no quads
// while the others still mesh. Duplicate sides are meshed once.
func Greedy(src VoxelSource, sides []world.BlockSide) Mesh {
	m := Mesh{Coord: src.Coord()}
	var mask [sliceArea]maskCell
	for _, side := range sides {
		if !side.Valid() || m.Requested[side] {
			continue
		}
		m.Requested[side] = true
		quads, err := greedySide(src, side, &mask)
		if err != nil {
			m.Sides[side] = SideMesh{Err: err}
			continue
		}
		m.Sides[side] = SideMesh{Quads: quads}
	}
	return m
}

// greedySide sweeps every slice along the side's normal and merges the mask
// row-major: grow along u, then along v while whole rows match.
func greedySide(src VoxelSource, side world.BlockSide, mask *[sliceArea]maskCell) ([]Quad, error) {
	const size = world.ChunkSize
	n, ua, va := sliceAxes(side)
	dx, dy, dz := side.Offset()

	var quads []Quad
	for d := 0; d < size; d++ {
		// Build the (visible, texture) mask for this slice.
		for v := 0; v < size; v++ {
			for u := 0; u < size; u++ {
				var p [3]int
				p[n], p[ua], p[va] = d, u, v

				cell := &mask[v*size+u]
				*cell = maskCell{}

				bt, ok := src.Block(p[0], p[1], p[2])
				if !ok || !bt.Known() {
					return nil, invalidVoxel(src, side, p[0], p[1], p[2])
				}
				if !bt.IsSolid() {
					continue
				}
				nx, ny, nz := p[0]+dx, p[1]+dy, p[2]+dz
				nb, ok := src.Block(nx, ny, nz)
				if !ok || !nb.Known() {
					return nil, invalidVoxel(src, side, nx, ny, nz)
				}
				if nb.IsOpaque() {
					continue
				}
				*cell = maskCell{visible: true, texture: bt.TextureIndex(side)}
			}
		}

		for i := 0; i < sliceArea; i++ {
			c := mask[i]
			if !c.visible {
				continue
			}
			u0, v0 := i%size, i/size

			w := 1
			for u0+w < size && mask[v0*size+u0+w] == c {
				w++
			}

			h := 1
		grow:
			for v0+h < size {
				row := (v0 + h) * size
				for u := u0; u < u0+w; u++ {
					if mask[row+u] != c {
						break grow
					}
				}
				h++
			}

			for v := v0; v < v0+h; v++ {
				for u := u0; u < u0+w; u++ {
					mask[v*size+u] = maskCell{}
				}
			}

			var p [3]int
			p[n], p[ua], p[va] = d, u0, v0
			quads = append(quads, Quad{
				Side:    side,
				X:       p[0],
				Y:       p[1],
				Z:       p[2],
				Width:   w,
				Height:  h,
				Texture: c.texture,
			})
		}
	}
	return quads, nil
}

func invalidVoxel(src VoxelSource, side world.BlockSide, x, y, z int) error {
	return fmt.Errorf("chunk %v side %v voxel (%d,%d,%d): %w", src.Coord(), side, x, y, z, ErrInvalidChunkData)
}
