package world

import (
	"math"
)

// TerrainGenerator fills chunks with terrain.
type TerrainGenerator interface {
	HeightAt(worldX, worldZ int) int
	PopulateChunk(c *Chunk)
}

// Generator shapes terrain from a fractal value-noise heightmap.
type Generator struct {
	noise      heightNoise
	scale      float64
	baseHeight int
	amp        float64
}

// NewGenerator creates a new generator with default settings.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		noise:      newHeightNoise(seed, 4, 0.5, 2.0),
		scale:      1.0 / 64.0,
		baseHeight: 24,
		amp:        24,
	}
}

// HeightAt computes world surface height (block Y) at world X,Z.
func (g *Generator) HeightAt(worldX, worldZ int) int {
	n := g.noise.at(float64(worldX)*g.scale, float64(worldZ)*g.scale)
	return max(int(math.Floor(float64(g.baseHeight)+n*g.amp)), 0)
}

// PopulateChunk fills a chunk using noise heightmap.
func (g *Generator) PopulateChunk(c *Chunk) {
	populateColumns(c, g.HeightAt)
}

// FlatGenerator produces a flat world at a fixed height.
type FlatGenerator struct {
	height int
}

func NewFlatGenerator(height int) *FlatGenerator {
	return &FlatGenerator{height: height}
}

func (g *FlatGenerator) HeightAt(worldX, worldZ int) int {
	return g.height
}

func (g *FlatGenerator) PopulateChunk(c *Chunk) {
	populateColumns(c, g.HeightAt)
}

// populateColumns writes white floor at y=0, dirt up to the surface and a grass cap.
func populateColumns(c *Chunk, heightAt func(x, z int) int) {
	baseX, baseY, baseZ := c.Coord.Origin()
	for lx := range ChunkSize {
		for lz := range ChunkSize {
			height := heightAt(baseX+lx, baseZ+lz)
			topLocal := height - baseY
			if topLocal < 0 {
				continue
			}
			if topLocal >= ChunkSize {
				topLocal = ChunkSize - 1
			}
			for ly := 0; ly <= topLocal; ly++ {
				wy := baseY + ly
				switch {
				case wy == 0:
					c.SetBlock(lx, ly, lz, BlockTypeWhite)
				case wy == height:
					c.SetBlock(lx, ly, lz, BlockTypeGrass)
				default:
					c.SetBlock(lx, ly, lz, BlockTypeDirt)
				}
			}
		}
	}
	c.dirty = true
}

// heightNoise sums octaves of 2D value noise, normalised to [0,1).
type heightNoise struct {
	seeds       []uint64
	persistence float64
	lacunarity  float64
}

func newHeightNoise(seed int64, octaves int, persistence, lacunarity float64) heightNoise {
	n := heightNoise{seeds: make([]uint64, octaves), persistence: persistence, lacunarity: lacunarity}
	for i := range n.seeds {
		n.seeds[i] = mix64(uint64(seed) + uint64(i+1)*0x9E3779B97F4A7C15)
	}
	return n
}

func (n heightNoise) at(x, z float64) float64 {
	var sum, norm float64
	amp, freq := 1.0, 1.0
	for _, seed := range n.seeds {
		sum += amp * cellNoise(x*freq, z*freq, seed)
		norm += amp
		amp *= n.persistence
		freq *= n.lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}

// cellNoise blends the four lattice corners around (x, z).
func cellNoise(x, z float64, seed uint64) float64 {
	fx, fz := math.Floor(x), math.Floor(z)
	cx, cz := int64(fx), int64(fz)
	tx, tz := smootherstep(x-fx), smootherstep(z-fz)
	near := mix(corner(cx, cz, seed), corner(cx+1, cz, seed), tx)
	far := mix(corner(cx, cz+1, seed), corner(cx+1, cz+1, seed), tx)
	return mix(near, far, tz)
}

// corner is the lattice value at (x, z) in [0,1).
func corner(x, z int64, seed uint64) float64 {
	h := mix64(uint64(x)*0xD6E8FEB86659FD93 ^ uint64(z)*0xA0761D6478BD642F ^ seed)
	return float64(h>>11) / (1 << 53)
}

// mix64 is the splitmix64 finaliser.
func mix64(v uint64) uint64 {
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	return v ^ (v >> 31)
}

func smootherstep(t float64) float64 { return t * t * t * (t*(t*6-15) + 10) }

func mix(a, b, t float64) float64 { return a + t*(b-a) }
