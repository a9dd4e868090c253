package world

import "fmt"

// ChunkSize is the edge length of a cubic chunk in voxels.
const ChunkSize = 16

// ChunkCoord is the integer position key of a chunk.
type ChunkCoord struct {
	X, Y, Z int
}

// Compare orders coordinates lexicographically on X, then Y, then Z.
func (c ChunkCoord) Compare(o ChunkCoord) int {
	switch {
	case c.X != o.X:
		return cmpInt(c.X, o.X)
	case c.Y != o.Y:
		return cmpInt(c.Y, o.Y)
	default:
		return cmpInt(c.Z, o.Z)
	}
}

// Less reports whether c sorts before o.
func (c ChunkCoord) Less(o ChunkCoord) bool {
	return c.Compare(o) < 0
}

// Neighbor returns the coordinate of the adjacent chunk across side.
func (c ChunkCoord) Neighbor(side BlockSide) ChunkCoord {
	dx, dy, dz := side.Offset()
	return ChunkCoord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}
}

// Origin returns the world-space voxel position of the chunk's minimum corner.
func (c ChunkCoord) Origin() (x, y, z int) {
	return c.X * ChunkSize, c.Y * ChunkSize, c.Z * ChunkSize
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// CoordForBlock returns the chunk containing the world voxel (x, y, z).
func CoordForBlock(x, y, z int) ChunkCoord {
	return ChunkCoord{X: floorDiv(x, ChunkSize), Y: floorDiv(y, ChunkSize), Z: floorDiv(z, ChunkSize)}
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
