package textures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/colornames"

	"voxmesh/internal/world"
)

func TestEveryBlockTextureHasALayer(t *testing.T) {
	for b := world.BlockTypeDirt; b.Known(); b++ {
		for _, side := range world.Sides {
			layer := int(b.TextureIndex(side))
			assert.NotEmpty(t, Name(layer), "%s %s uses layer %d", b, side, layer)
		}
	}
	assert.Len(t, Layers(), world.TextureLayers)
}

func TestLayerIsScaledPattern(t *testing.T) {
	img := Layer(2) // grass side: top rows green
	require.Equal(t, Size, img.Bounds().Dx())
	require.Equal(t, Size, img.Bounds().Dy())

	scale := Size / patternSize
	assert.Equal(t, colornames.Forestgreen, img.RGBAAt(5, 0))
	assert.Equal(t, colornames.Forestgreen, img.RGBAAt(5, 2*scale-1))
	assert.Equal(t, colornames.Sienna, img.RGBAAt(5, 2*scale))
}

func TestUnknownLayerIsMagenta(t *testing.T) {
	img := Layer(99)
	assert.Equal(t, colornames.Magenta, img.RGBAAt(0, 0))
	assert.Equal(t, colornames.Magenta, img.RGBAAt(Size-1, Size-1))
	assert.Empty(t, Name(99))
	assert.Empty(t, Name(-1))
}

func TestAverageIsOpaqueBlend(t *testing.T) {
	avg := Average(4)
	assert.Equal(t, uint8(255), avg.A)
	assert.GreaterOrEqual(t, avg.R, colornames.Gainsboro.R)
	assert.LessOrEqual(t, avg.R, colornames.Whitesmoke.R)
}
