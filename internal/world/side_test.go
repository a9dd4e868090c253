package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSideOppositeIsInvolution(t *testing.T) {
	for _, s := range Sides {
		assert.NotEqual(t, s, s.Opposite())
		assert.Equal(t, s, s.Opposite().Opposite())
		assert.Equal(t, s.Axis(), s.Opposite().Axis())
		assert.Equal(t, -s.Sign(), s.Opposite().Sign())
	}
}

func TestSideOffsetsMatchAxisAndSign(t *testing.T) {
	for _, s := range Sides {
		dx, dy, dz := s.Offset()
		off := [3]int{dx, dy, dz}
		for axis := 0; axis < 3; axis++ {
			if axis == s.Axis() {
				assert.Equal(t, s.Sign(), off[axis], s.String())
			} else {
				assert.Zero(t, off[axis], s.String())
			}
		}
		n := s.Normal()
		assert.Equal(t, float32(dx), n.X())
		assert.Equal(t, float32(dy), n.Y())
		assert.Equal(t, float32(dz), n.Z())
	}
}

func TestSideValid(t *testing.T) {
	assert.True(t, SideRight.Valid())
	assert.False(t, BlockSide(6).Valid())
	assert.Equal(t, "BlockSide(9)", BlockSide(9).String())
	assert.Panics(t, func() { BlockSide(7).Axis() })
}

func TestBlockRegistry(t *testing.T) {
	assert.False(t, BlockTypeAir.IsSolid())
	assert.True(t, BlockTypeGlass.IsSolid())
	assert.False(t, BlockTypeGlass.IsOpaque())
	assert.True(t, BlockTypeDirt.IsOpaque())

	assert.Equal(t, uint32(3), BlockTypeGrass.TextureIndex(SideTop))
	assert.Equal(t, uint32(1), BlockTypeGrass.TextureIndex(SideBottom))
	assert.Equal(t, uint32(2), BlockTypeGrass.TextureIndex(SideFront))

	unknown := BlockType(200)
	assert.False(t, unknown.Known())
	assert.False(t, unknown.IsSolid())
	assert.Equal(t, "unknown", unknown.String())
}
