package world

type BlockType uint8

const (
	BlockTypeAir BlockType = iota
	BlockTypeDirt
	BlockTypeGrass
	BlockTypeWood
	BlockTypeWhite
	BlockTypeGlass

	blockTypeCount
)

// TextureLayers is the number of texture layers block definitions refer to.
const TextureLayers = 6

// BlockDefinition holds the meshing-relevant properties of a block type.
type BlockDefinition struct {
	Name  string
	Solid bool
	// Opaque blocks hide the faces of their neighbours.
	Opaque bool
	// Textures is indexed by BlockSide.
	Textures [SideCount]uint32
}

var blockDefinitions = [blockTypeCount]BlockDefinition{
	BlockTypeAir:   {Name: "air"},
	BlockTypeDirt:  {Name: "dirt", Solid: true, Opaque: true, Textures: uniformTextures(1)},
	BlockTypeGrass: {Name: "grass", Solid: true, Opaque: true, Textures: [SideCount]uint32{2, 2, 1, 3, 2, 2}},
	BlockTypeWood:  {Name: "wood", Solid: true, Opaque: true, Textures: uniformTextures(0)},
	BlockTypeWhite: {Name: "white", Solid: true, Opaque: true, Textures: uniformTextures(4)},
	BlockTypeGlass: {Name: "glass", Solid: true, Textures: uniformTextures(5)},
}

func uniformTextures(tex uint32) [SideCount]uint32 {
	var t [SideCount]uint32
	for i := range t {
		t[i] = tex
	}
	return t
}

// Known reports whether b is a registered block type.
func (b BlockType) Known() bool {
	return b < blockTypeCount
}

// Definition returns the registry entry for b. Unknown types yield air.
func (b BlockType) Definition() BlockDefinition {
	if !b.Known() {
		return blockDefinitions[BlockTypeAir]
	}
	return blockDefinitions[b]
}

// IsSolid reports whether b produces faces.
func (b BlockType) IsSolid() bool {
	return b.Known() && blockDefinitions[b].Solid
}

// IsOpaque reports whether b culls the faces of adjacent blocks.
func (b BlockType) IsOpaque() bool {
	return b.Known() && blockDefinitions[b].Solid && blockDefinitions[b].Opaque
}

// TextureIndex returns the texture layer used for the given side of b.
func (b BlockType) TextureIndex(side BlockSide) uint32 {
	return b.Definition().Textures[side]
}

func (b BlockType) String() string {
	if !b.Known() {
		return "unknown"
	}
	return blockDefinitions[b].Name
}
