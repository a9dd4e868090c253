// Package upload funnels every write to the shared GPU buffers through an
// ordered queue of per-allocation batches.
package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/btree"

	"voxmesh/internal/logging"
	"voxmesh/internal/profiling"
	"voxmesh/internal/world"
)

var (
	// ErrUploadFailed is reported by an Uploader that could not apply a
	// batch. Nothing of the batch was written.
	ErrUploadFailed = errors.New("upload: batch failed")
	// ErrOverlap means a batch writes bytes another batch of the same flush
	// already wrote.
	ErrOverlap = errors.New("upload: overlapping writes in one flush")
	// ErrOutOfBounds means a command writes past the end of its buffer.
	ErrOutOfBounds = errors.New("upload: write out of bounds")
)

// BufferWriteCommand writes Payload at byte Offset of Target.
type BufferWriteCommand struct {
	Target  BufferID
	Offset  uint64
	Payload []byte
	Label   string
}

// End returns the first byte past the write.
func (c BufferWriteCommand) End() uint64 {
	return c.Offset + uint64(len(c.Payload))
}

type BatchID uint64

// Batch is every write produced by one allocation. It is applied whole or
// not at all.
type Batch struct {
	ID       BatchID
	Chunk    world.ChunkCoord
	Ticket   uint64
	Commands []BufferWriteCommand
}

// Bytes returns the total payload size.
func (b Batch) Bytes() int {
	n := 0
	for _, c := range b.Commands {
		n += len(c.Payload)
	}
	return n
}

// Outcome reports how one batch of a flush ended. Err is nil when the
// Uploader confirmed the batch.
type Outcome struct {
	Batch Batch
	Err   error
}

// Uploader is the GPU-upload collaborator. Upload must apply the batch
// atomically and in call order relative to other batches touching the same
// buffer.
type Uploader interface {
	Upload(ctx context.Context, b Batch) error
}

// Queue holds batches until the next Flush. It is owned by the render
// goroutine.
type Queue struct {
	next    BatchID
	pending []Batch
}

func NewQueue() *Queue {
	return &Queue{next: 1}
}

// Enqueue appends b and returns its assigned ID.
func (q *Queue) Enqueue(b Batch) BatchID {
	b.ID = q.next
	q.next++
	q.pending = append(q.pending, b)
	return b.ID
}

// Cancel drops the pending batches of chunk and returns how many were dropped.
func (q *Queue) Cancel(chunk world.ChunkCoord) int {
	kept := q.pending[:0]
	dropped := 0
	for _, b := range q.pending {
		if b.Chunk == chunk {
			dropped++
			continue
		}
		kept = append(kept, b)
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	return dropped
}

// Pending reports whether chunk has a batch waiting for Flush.
func (q *Queue) Pending(chunk world.ChunkCoord) bool {
	for _, b := range q.pending {
		if b.Chunk == chunk {
			return true
		}
	}
	return false
}

func (q *Queue) Len() int { return len(q.pending) }

// Flush submits every pending batch to u in enqueue order and empties the
// queue. A batch that overlaps an earlier batch of this flush is not
// submitted and reports ErrOverlap. Once ctx is done the remaining batches
// report the context error.
func (q *Queue) Flush(ctx context.Context, u Uploader) []Outcome {
	if len(q.pending) == 0 {
		return nil
	}
	defer profiling.Track("upload.Flush")()

	batches := q.pending
	q.pending = nil

	written := newRangeSet()
	out := make([]Outcome, 0, len(batches))
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			out = append(out, Outcome{Batch: b, Err: err})
			continue
		}
		if c, ok := written.overlaps(b.Commands); ok {
			err := fmt.Errorf("batch %d chunk %v writes %s [%d,%d): %w",
				b.ID, b.Chunk, c.Target, c.Offset, c.End(), ErrOverlap)
			logging.Logger().Error("upload rejected", "error", err)
			out = append(out, Outcome{Batch: b, Err: err})
			continue
		}
		if err := u.Upload(ctx, b); err != nil {
			if !errors.Is(err, ErrUploadFailed) {
				err = fmt.Errorf("%w: %w", ErrUploadFailed, err)
			}
			out = append(out, Outcome{Batch: b, Err: err})
			continue
		}
		written.add(b.Commands)
		profiling.Add("upload.bytes", int64(b.Bytes()))
		profiling.Add("upload.batches", 1)
		out = append(out, Outcome{Batch: b})
	}
	return out
}

type byteRange struct {
	start, end uint64
}

// rangeSet records the disjoint byte ranges written per buffer.
type rangeSet struct {
	trees map[BufferID]*btree.BTreeG[byteRange]
}

func newRangeSet() *rangeSet {
	return &rangeSet{trees: make(map[BufferID]*btree.BTreeG[byteRange])}
}

func (s *rangeSet) tree(id BufferID) *btree.BTreeG[byteRange] {
	t, ok := s.trees[id]
	if !ok {
		t = btree.NewG(8, func(a, b byteRange) bool { return a.start < b.start })
		s.trees[id] = t
	}
	return t
}

func (s *rangeSet) overlaps(cmds []BufferWriteCommand) (BufferWriteCommand, bool) {
	for _, c := range cmds {
		if len(c.Payload) == 0 {
			continue
		}
		t, ok := s.trees[c.Target]
		if !ok {
			continue
		}
		r := byteRange{start: c.Offset, end: c.End()}
		hit := false
		t.DescendLessOrEqual(byteRange{start: r.end - 1}, func(prev byteRange) bool {
			hit = prev.end > r.start
			return false
		})
		if hit {
			return c, true
		}
	}
	return BufferWriteCommand{}, false
}

func (s *rangeSet) add(cmds []BufferWriteCommand) {
	for _, c := range cmds {
		if len(c.Payload) == 0 {
			continue
		}
		t := s.tree(c.Target)
		r := byteRange{start: c.Offset, end: c.End()}
		if prev, ok := t.Get(r); ok && prev.end > r.end {
			continue
		}
		t.ReplaceOrInsert(r)
	}
}
