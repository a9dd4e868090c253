package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// BlockSide identifies one of the six axis-aligned face directions.
// The numeric values index per-side arrays throughout the pipeline.
type BlockSide uint8

const (
	SideFront  BlockSide = iota // -X
	SideBack                    // +X
	SideBottom                  // -Y
	SideTop                     // +Y
	SideLeft                    // -Z
	SideRight                   // +Z
)

// SideCount is the number of block sides.
const SideCount = 6

// Sides lists every side in index order.
var Sides = [SideCount]BlockSide{SideFront, SideBack, SideBottom, SideTop, SideLeft, SideRight}

// Axis returns the axis (0=x, 1=y, 2=z) the side's normal lies on.
func (s BlockSide) Axis() int {
	switch s {
	case SideFront, SideBack:
		return 0
	case SideBottom, SideTop:
		return 1
	case SideLeft, SideRight:
		return 2
	}
	panic(fmt.Sprintf("world: invalid block side %d", s))
}

// Sign returns +1 when the side faces the positive direction of its axis.
func (s BlockSide) Sign() int {
	switch s {
	case SideBack, SideTop, SideRight:
		return 1
	case SideFront, SideBottom, SideLeft:
		return -1
	}
	panic(fmt.Sprintf("world: invalid block side %d", s))
}

// Offset returns the unit step towards the neighbour this side faces.
func (s BlockSide) Offset() (dx, dy, dz int) {
	switch s {
	case SideFront:
		return -1, 0, 0
	case SideBack:
		return 1, 0, 0
	case SideBottom:
		return 0, -1, 0
	case SideTop:
		return 0, 1, 0
	case SideLeft:
		return 0, 0, -1
	case SideRight:
		return 0, 0, 1
	}
	panic(fmt.Sprintf("world: invalid block side %d", s))
}

// Normal returns the outward unit normal.
func (s BlockSide) Normal() mgl32.Vec3 {
	dx, dy, dz := s.Offset()
	return mgl32.Vec3{float32(dx), float32(dy), float32(dz)}
}

// Opposite returns the side facing the other way.
func (s BlockSide) Opposite() BlockSide {
	return s ^ 1
}

// Valid reports whether s is one of the six sides.
func (s BlockSide) Valid() bool {
	return s < SideCount
}

func (s BlockSide) String() string {
	switch s {
	case SideFront:
		return "front"
	case SideBack:
		return "back"
	case SideBottom:
		return "bottom"
	case SideTop:
		return "top"
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	}
	return fmt.Sprintf("BlockSide(%d)", uint8(s))
}
