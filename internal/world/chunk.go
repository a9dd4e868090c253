package world

const (
	// ChunkVolume is the number of voxels in one chunk.
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// Chunk represents a 16x16x16 cube of the world
type Chunk struct {
	Coord  ChunkCoord
	blocks []BlockType // nil while the chunk is all air
	solid  int
	dirty  bool
}

// NewChunk creates a new empty chunk at the specified chunk coordinates
func NewChunk(coord ChunkCoord) *Chunk {
	return &Chunk{
		Coord: coord,
		dirty: true,
	}
}

// indexInChunk converts local coordinates (x, y, z) → flat index
func indexInChunk(x, y, z int) int {
	return x*ChunkSize*ChunkSize + y*ChunkSize + z
}

func inChunk(x, y, z int) bool {
	return x >= 0 && x < ChunkSize && y >= 0 && y < ChunkSize && z >= 0 && z < ChunkSize
}

// GetBlock returns the block type at the specified local coordinates
func (c *Chunk) GetBlock(x, y, z int) BlockType {
	if !inChunk(x, y, z) || c.blocks == nil {
		return BlockTypeAir
	}
	return c.blocks[indexInChunk(x, y, z)]
}

// SetBlock sets the block type at the specified local coordinates
func (c *Chunk) SetBlock(x, y, z int, blockType BlockType) {
	if !inChunk(x, y, z) {
		return
	}
	if c.blocks == nil {
		if blockType == BlockTypeAir {
			return
		}
		c.blocks = make([]BlockType, ChunkVolume)
	}

	idx := indexInChunk(x, y, z)
	old := c.blocks[idx]
	if old == blockType {
		return
	}
	c.blocks[idx] = blockType
	c.dirty = true

	switch {
	case old == BlockTypeAir:
		c.solid++
	case blockType == BlockTypeAir:
		c.solid--
	}
	if c.solid == 0 {
		c.blocks = nil
	}
}

// Fill sets every voxel in the inclusive local box [min, max] to blockType.
func (c *Chunk) Fill(x0, y0, z0, x1, y1, z1 int, blockType BlockType) {
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				c.SetBlock(x, y, z, blockType)
			}
		}
	}
}

// IsAir checks if the block at the specified local coordinates is air
func (c *Chunk) IsAir(x, y, z int) bool {
	return c.GetBlock(x, y, z) == BlockTypeAir
}

// IsEmpty reports whether every voxel is air.
func (c *Chunk) IsEmpty() bool {
	return c.blocks == nil
}

// IsDirty returns whether the chunk has been modified since last mesh
func (c *Chunk) IsDirty() bool {
	return c.dirty
}

// SetClean marks the chunk as clean (not modified)
func (c *Chunk) SetClean() {
	c.dirty = false
}

// ChunkWithCoord pairs a chunk with its position key.
type ChunkWithCoord struct {
	Chunk *Chunk
	Coord ChunkCoord
}
