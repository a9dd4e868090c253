package world

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkCoordOrdering(t *testing.T) {
	coords := []ChunkCoord{
		{X: 1, Y: 0, Z: 0},
		{X: 0, Y: 2, Z: -1},
		{X: 0, Y: 0, Z: 5},
		{X: -3, Y: 9, Z: 9},
		{X: 0, Y: 2, Z: -4},
	}
	slices.SortFunc(coords, ChunkCoord.Compare)
	assert.Equal(t, []ChunkCoord{
		{X: -3, Y: 9, Z: 9},
		{X: 0, Y: 0, Z: 5},
		{X: 0, Y: 2, Z: -4},
		{X: 0, Y: 2, Z: -1},
		{X: 1, Y: 0, Z: 0},
	}, coords)

	a := ChunkCoord{X: 1, Y: 2, Z: 3}
	assert.Zero(t, a.Compare(a))
	assert.False(t, a.Less(a))
}

func TestCoordForBlockNegative(t *testing.T) {
	assert.Equal(t, ChunkCoord{X: -1, Y: 0, Z: 0}, CoordForBlock(-1, 0, 15))
	assert.Equal(t, ChunkCoord{X: -1, Y: -1, Z: 1}, CoordForBlock(-16, -1, 16))
	assert.Equal(t, ChunkCoord{X: -2, Y: 0, Z: 0}, CoordForBlock(-17, 15, 0))
	assert.Equal(t, 15, mod(-1, ChunkSize))
}

func TestNeighbor(t *testing.T) {
	c := ChunkCoord{X: 4, Y: 5, Z: 6}
	assert.Equal(t, ChunkCoord{X: 3, Y: 5, Z: 6}, c.Neighbor(SideFront))
	assert.Equal(t, ChunkCoord{X: 4, Y: 6, Z: 6}, c.Neighbor(SideTop))
	assert.Equal(t, ChunkCoord{X: 4, Y: 5, Z: 7}, c.Neighbor(SideRight))
	for _, s := range Sides {
		assert.Equal(t, c, c.Neighbor(s).Neighbor(s.Opposite()))
	}
}
