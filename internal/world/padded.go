package world

// PaddedSize is the edge length of a chunk snapshot including one voxel of
// neighbour padding on each side.
const PaddedSize = ChunkSize + 2

// Padded is a read-only copy of a chunk plus the facing layer of each of its
// six neighbours. Local coordinates run from -1 to ChunkSize inclusive.
//
// A Padded must not be modified once it has been handed to a mesher.
type Padded struct {
	coord   ChunkCoord
	blocks  [PaddedSize * PaddedSize * PaddedSize]BlockType
	missing [SideCount]bool
	solid   int
}

// NewPadded returns an all-air snapshot with every padding face available.
func NewPadded(coord ChunkCoord) *Padded {
	return &Padded{coord: coord}
}

func paddedIndex(x, y, z int) int {
	return (x+1)*PaddedSize*PaddedSize + (y+1)*PaddedSize + (z + 1)
}

func inPadded(x, y, z int) bool {
	return x >= -1 && x <= ChunkSize && y >= -1 && y <= ChunkSize && z >= -1 && z <= ChunkSize
}

// Coord returns the position key of the chunk this snapshot was taken from.
func (p *Padded) Coord() ChunkCoord {
	return p.coord
}

// Set writes a voxel. Coordinates outside the padded volume are ignored.
func (p *Padded) Set(x, y, z int, b BlockType) {
	if !inPadded(x, y, z) {
		return
	}
	idx := paddedIndex(x, y, z)
	if inChunk(x, y, z) {
		if p.blocks[idx] == BlockTypeAir && b != BlockTypeAir {
			p.solid++
		} else if p.blocks[idx] != BlockTypeAir && b == BlockTypeAir {
			p.solid--
		}
	}
	p.blocks[idx] = b
}

// Fill sets every voxel in the inclusive box to b.
func (p *Padded) Fill(x0, y0, z0, x1, y1, z1 int, b BlockType) {
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				p.Set(x, y, z, b)
			}
		}
	}
}

// MarkUnavailable flags the padding layer on the given side as not loaded.
func (p *Padded) MarkUnavailable(side BlockSide) {
	p.missing[side] = true
}

// Block returns the voxel at local (x, y, z). The boolean is false when the
// position lies outside the snapshot or in a padding layer that is unavailable.
func (p *Padded) Block(x, y, z int) (BlockType, bool) {
	if !inPadded(x, y, z) {
		return BlockTypeAir, false
	}
	if (x < 0 && p.missing[SideFront]) || (x >= ChunkSize && p.missing[SideBack]) ||
		(y < 0 && p.missing[SideBottom]) || (y >= ChunkSize && p.missing[SideTop]) ||
		(z < 0 && p.missing[SideLeft]) || (z >= ChunkSize && p.missing[SideRight]) {
		return BlockTypeAir, false
	}
	return p.blocks[paddedIndex(x, y, z)], true
}

// IsEmpty reports whether the chunk interior is all air.
func (p *Padded) IsEmpty() bool {
	return p.solid == 0
}
