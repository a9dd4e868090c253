package config

import "voxmesh/internal/world"

// WorldGen selects the terrain used by the bench and the viewer.
type WorldGen struct {
	Seed int64 `yaml:"seed"`
	// Flat replaces the noise heightmap with a constant height.
	Flat       bool `yaml:"flat"`
	FlatHeight int  `yaml:"flat_height"`
}

func defaultWorldGen() WorldGen {
	return WorldGen{Seed: 1337, FlatHeight: 4}
}

// Generator builds the terrain generator these settings describe.
func (w WorldGen) Generator() world.TerrainGenerator {
	if w.Flat {
		return world.NewFlatGenerator(w.FlatHeight)
	}
	return world.NewGenerator(w.Seed)
}
