// Package indirect keeps one indexed indirect draw command per bucket and
// turns visibility changes into single-field writes.
package indirect

import (
	"encoding/binary"
	"errors"
	"fmt"

	"voxmesh/internal/buckets"
	"voxmesh/internal/upload"
	"voxmesh/internal/world"
)

// CommandSize is the encoded size of a Command.
const CommandSize = upload.DrawIndexedIndirectSize

// ErrNotUploaded is returned by Show for a slot whose geometry upload has
// not been confirmed since its last Rebind.
var ErrNotUploaded = errors.New("indirect: bucket data not uploaded")

// Command mirrors the GPU's DrawElementsIndirectCommand layout.
type Command struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	BaseVertex    int32
	FirstInstance uint32
}

func (c Command) Visible() bool { return c.InstanceCount > 0 }

// AppendCommand appends the little-endian encoding of c to dst.
func AppendCommand(dst []byte, c Command) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, c.IndexCount)
	dst = binary.LittleEndian.AppendUint32(dst, c.InstanceCount)
	dst = binary.LittleEndian.AppendUint32(dst, c.FirstIndex)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(c.BaseVertex))
	dst = binary.LittleEndian.AppendUint32(dst, c.FirstInstance)
	return dst
}

// Encode returns the byte form of cmds for an indirect buffer.
func Encode(cmds []Command) []byte {
	out := make([]byte, 0, len(cmds)*CommandSize)
	for _, c := range cmds {
		out = AppendCommand(out, c)
	}
	return out
}

// DecodeCommand reads one command from the start of b.
func DecodeCommand(b []byte) Command {
	return Command{
		IndexCount:    binary.LittleEndian.Uint32(b[0:]),
		InstanceCount: binary.LittleEndian.Uint32(b[4:]),
		FirstIndex:    binary.LittleEndian.Uint32(b[8:]),
		BaseVertex:    int32(binary.LittleEndian.Uint32(b[12:])),
		FirstInstance: binary.LittleEndian.Uint32(b[16:]),
	}
}

type slot struct {
	cmd      Command
	uploaded bool
	dirty    bool
	// drawn mirrors the instance count last confirmed in the GPU buffer.
	drawn bool
}

func (s *slot) exposed() bool { return s.drawn && !s.uploaded }

// Assembler holds the command slots of every bucket of every side. It is
// owned by the render goroutine.
type Assembler struct {
	cfg     buckets.Config
	sides   [world.SideCount][]slot
	visible [world.SideCount]int
	dirty   [world.SideCount]int
	exposed int
}

// New creates slots for every bucket, hidden and pointing at the bucket's
// own region with no indices. Every slot starts dirty so the first
// DirtyWrites initialises the whole indirect buffer.
func New(cfg buckets.Config) *Assembler {
	a := &Assembler{cfg: cfg}
	for s := range a.sides {
		slots := make([]slot, cfg.BucketsPerSide)
		for i := range slots {
			slots[i] = slot{cmd: a.initial(i), dirty: true}
		}
		a.sides[s] = slots
		a.dirty[s] = len(slots)
	}
	return a
}

func (a *Assembler) initial(i int) Command {
	return Command{
		FirstIndex: uint32(i * a.cfg.IndexCapacity),
		BaseVertex: int32(i * a.cfg.VertexCapacity),
	}
}

func (a *Assembler) slot(side world.BlockSide, i int) *slot {
	if !side.Valid() || i < 0 || i >= len(a.sides[side]) {
		panic(fmt.Sprintf("indirect: no slot %d on side %v", i, side))
	}
	return &a.sides[side][i]
}

// setFlags updates the uploaded and drawn flags of s and keeps the exposed
// count in step.
func (a *Assembler) setFlags(s *slot, uploaded, drawn bool) {
	before := s.exposed()
	s.uploaded, s.drawn = uploaded, drawn
	switch after := s.exposed(); {
	case after && !before:
		a.exposed++
	case before && !after:
		a.exposed--
	}
}

func (a *Assembler) markDirty(side world.BlockSide, s *slot) {
	if !s.dirty {
		s.dirty = true
		a.dirty[side]++
	}
}

func (a *Assembler) setInstances(side world.BlockSide, s *slot, n uint32) {
	if s.cmd.InstanceCount == n {
		return
	}
	if n > 0 {
		a.visible[side]++
	} else {
		a.visible[side]--
	}
	s.cmd.InstanceCount = n
	a.markDirty(side, s)
}

// Command returns slot i of side.
func (a *Assembler) Command(side world.BlockSide, i int) Command {
	return a.slot(side, i).cmd
}

// Rebind points slot i at new geometry after an owner change. The slot is
// hidden and stays unshowable until MarkUploaded.
func (a *Assembler) Rebind(side world.BlockSide, i int, firstIndex, baseVertex, indexCount int) {
	s := a.slot(side, i)
	a.setInstances(side, s, 0)
	a.setFlags(s, false, s.drawn)
	next := Command{
		IndexCount: uint32(indexCount),
		FirstIndex: uint32(firstIndex),
		BaseVertex: int32(baseVertex),
	}
	if s.cmd != next {
		s.cmd = next
		a.markDirty(side, s)
	}
}

// MarkUploaded records that the geometry slot i points at is fully written.
func (a *Assembler) MarkUploaded(side world.BlockSide, i int) {
	s := a.slot(side, i)
	a.setFlags(s, true, s.drawn)
}

func (a *Assembler) Uploaded(side world.BlockSide, i int) bool {
	return a.slot(side, i).uploaded
}

// Show makes slot i drawable.
func (a *Assembler) Show(side world.BlockSide, i int) error {
	s := a.slot(side, i)
	if !s.uploaded {
		return fmt.Errorf("side %v bucket %d: %w", side, i, ErrNotUploaded)
	}
	a.setInstances(side, s, 1)
	return nil
}

// Hide stops drawing slot i without touching the rest of the command.
func (a *Assembler) Hide(side world.BlockSide, i int) {
	a.setInstances(side, a.slot(side, i), 0)
}

// Release returns slot i to its initial state when its bucket is freed.
func (a *Assembler) Release(side world.BlockSide, i int) {
	s := a.slot(side, i)
	a.setInstances(side, s, 0)
	a.setFlags(s, false, s.drawn)
	if init := a.initial(i); s.cmd != init {
		s.cmd = init
		a.markDirty(side, s)
	}
}

// Visible returns the number of shown slots of side.
func (a *Assembler) Visible(side world.BlockSide) int { return a.visible[side] }

// Commands returns a copy of every slot of side, in bucket order, ready
// for one multi-draw call. Hidden slots draw nothing.
func (a *Assembler) Commands(side world.BlockSide) []Command {
	slots := a.sides[side]
	out := make([]Command, len(slots))
	for i := range slots {
		out[i] = slots[i].cmd
	}
	return out
}

// Dirty reports whether any slot changed since the last DirtyWrites.
func (a *Assembler) Dirty() bool {
	for _, n := range a.dirty {
		if n > 0 {
			return true
		}
	}
	return false
}

// DirtyWrites returns one write per run of consecutive changed slots and
// clears the dirty marks.
func (a *Assembler) DirtyWrites() []upload.BufferWriteCommand {
	var out []upload.BufferWriteCommand
	for _, side := range world.Sides {
		if a.dirty[side] == 0 {
			continue
		}
		target := upload.BufferID{Side: side, Kind: upload.KindIndirect}
		slots := a.sides[side]
		for i := 0; i < len(slots); {
			if !slots[i].dirty {
				i++
				continue
			}
			start := i
			var payload []byte
			for ; i < len(slots) && slots[i].dirty; i++ {
				payload = AppendCommand(payload, slots[i].cmd)
				slots[i].dirty = false
			}
			out = append(out, upload.BufferWriteCommand{
				Target:  target,
				Offset:  uint64(start * CommandSize),
				Payload: payload,
				Label:   fmt.Sprintf("indirect %v [%d,%d)", side, start, i),
			})
		}
		a.dirty[side] = 0
	}
	return out
}

// Confirm records that writes reached the indirect buffer, so the GPU copy
// of every covered slot is known.
func (a *Assembler) Confirm(writes []upload.BufferWriteCommand) {
	for _, w := range writes {
		if w.Target.Kind != upload.KindIndirect || !w.Target.Side.Valid() {
			continue
		}
		side := w.Target.Side
		first := int(w.Offset / CommandSize)
		for k := 0; (k+1)*CommandSize <= len(w.Payload); k++ {
			i := first + k
			if i >= len(a.sides[side]) {
				break
			}
			s := &a.sides[side][i]
			a.setFlags(s, s.uploaded, DecodeCommand(w.Payload[k*CommandSize:]).Visible())
		}
	}
}

// Exposed returns the number of slots the GPU may still draw although
// their bucket was rebound or released. Writing new geometry into such a
// bucket is unsafe until the hidden commands are confirmed.
func (a *Assembler) Exposed() int { return a.exposed }

// Requeue marks the slots covered by writes dirty again, after their upload
// failed. Their current state is written on the next DirtyWrites.
func (a *Assembler) Requeue(writes []upload.BufferWriteCommand) {
	for _, w := range writes {
		if w.Target.Kind != upload.KindIndirect || !w.Target.Side.Valid() {
			continue
		}
		side := w.Target.Side
		first := int(w.Offset / CommandSize)
		last := int((w.End() + CommandSize - 1) / CommandSize)
		for i := first; i < last && i < len(a.sides[side]); i++ {
			a.markDirty(side, &a.sides[side][i])
		}
	}
}
