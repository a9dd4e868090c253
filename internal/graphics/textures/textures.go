// Package textures generates the block texture layers procedurally so the
// viewer needs no asset files.
package textures

import (
	"image"
	"image/color"

	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"

	"voxmesh/internal/world"
)

// Size is the edge length of every layer in texels.
const Size = 16

// patternSize is the resolution patterns are drawn at before scaling.
const patternSize = 8

type pattern func(x, y int) bool

type layerStyle struct {
	name       string
	base, mark color.RGBA
	pattern    pattern
}

// styles is indexed by texture layer as referenced from world block definitions.
var styles = [world.TextureLayers]layerStyle{
	{"wood", colornames.Peru, colornames.Saddlebrown, func(x, _ int) bool { return x%3 == 0 }},
	{"dirt", colornames.Sienna, colornames.Saddlebrown, speckle(3)},
	{"grass_side", colornames.Sienna, colornames.Forestgreen, func(_, y int) bool { return y < 2 }},
	{"grass_top", colornames.Forestgreen, colornames.Limegreen, speckle(4)},
	{"white", colornames.Whitesmoke, colornames.Gainsboro, speckle(7)},
	{"glass", colornames.Lightcyan, colornames.Steelblue, func(x, y int) bool {
		return x == 0 || y == 0 || x == patternSize-1 || y == patternSize-1
	}},
}

func speckle(every int) pattern {
	return func(x, y int) bool {
		h := uint32(x*73856093) ^ uint32(y*19349663)
		return h%uint32(every) == 0
	}
}

// Name returns the layer's name, or "" if out of range.
func Name(layer int) string {
	if layer < 0 || layer >= len(styles) {
		return ""
	}
	return styles[layer].name
}

// Layer renders one layer at Size x Size. Out-of-range layers render as
// magenta so missing mappings stand out.
func Layer(layer int) *image.RGBA {
	small := image.NewRGBA(image.Rect(0, 0, patternSize, patternSize))
	if layer < 0 || layer >= len(styles) {
		draw.Draw(small, small.Bounds(), image.NewUniform(colornames.Magenta), image.Point{}, draw.Src)
	} else {
		style := styles[layer]
		for y := 0; y < patternSize; y++ {
			for x := 0; x < patternSize; x++ {
				c := style.base
				if style.pattern(x, y) {
					c = style.mark
				}
				small.SetRGBA(x, y, c)
			}
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.NearestNeighbor.Scale(out, out.Bounds(), small, small.Bounds(), draw.Src, nil)
	return out
}

// Layers renders every layer in order.
func Layers() []*image.RGBA {
	out := make([]*image.RGBA, len(styles))
	for i := range styles {
		out[i] = Layer(i)
	}
	return out
}

// Average returns the mean colour of a layer, used where a flat colour
// stands in for the texture.
func Average(layer int) color.RGBA {
	img := Layer(layer)
	var r, g, b, a uint64
	n := uint64(Size * Size)
	for i := 0; i < len(img.Pix); i += 4 {
		r += uint64(img.Pix[i])
		g += uint64(img.Pix[i+1])
		b += uint64(img.Pix[i+2])
		a += uint64(img.Pix[i+3])
	}
	return color.RGBA{uint8(r / n), uint8(g / n), uint8(b / n), uint8(a / n)}
}
