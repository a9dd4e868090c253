package blocks

import (
	_ "embed"

	"voxmesh/internal/chunkmesh"
	"voxmesh/internal/world"
)

var (
	//go:embed shaders/main.vert
	mainVertShader string
	//go:embed shaders/main.frag
	mainFragShader string
)

// sideShade darkens faces by direction, indexed by BlockSide.
var sideShade = [world.SideCount]float32{
	world.SideFront:  0.8,
	world.SideBack:   0.8,
	world.SideBottom: 0.5,
	world.SideTop:    1.0,
	world.SideLeft:   0.65,
	world.SideRight:  0.65,
}

// DrawSource supplies the per-side draw lists each frame.
type DrawSource interface {
	DrawLists() [world.SideCount]chunkmesh.DrawList
}

// Stats describes the last rendered frame.
type Stats struct {
	DrawCalls int
	Commands  int
	Visible   int
}
