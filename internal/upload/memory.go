package upload

import (
	"context"
	"fmt"
	"sync"
)

// BufferStats are the write analytics of one buffer.
type BufferStats struct {
	Writes       uint64 `json:"writes"`
	BytesWritten uint64 `json:"bytes_written"`
	// HighWater is the largest end offset ever written.
	HighWater uint64 `json:"high_water"`
}

// MemoryUploader applies batches to host byte slices. It stands in for the
// GPU in tests and in the headless bench. Storage grows to the high-water
// mark instead of the full buffer size.
type MemoryUploader struct {
	mu       sync.Mutex
	layout   Layout
	buffers  map[BufferID][]byte
	stats    map[BufferID]BufferStats
	failNext int
	uploads  int
	failures int
}

func NewMemoryUploader(layout Layout) *MemoryUploader {
	return &MemoryUploader{
		layout:  layout,
		buffers: make(map[BufferID][]byte),
		stats:   make(map[BufferID]BufferStats),
	}
}

// FailNext makes the next n uploads fail with ErrUploadFailed.
func (u *MemoryUploader) FailNext(n int) {
	u.mu.Lock()
	u.failNext = n
	u.mu.Unlock()
}

func (u *MemoryUploader) Upload(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.failNext > 0 {
		u.failNext--
		u.failures++
		return fmt.Errorf("%w: injected failure for batch %d", ErrUploadFailed, b.ID)
	}
	for _, c := range b.Commands {
		if size := u.layout.Size(c.Target); c.End() > size {
			u.failures++
			return fmt.Errorf("%w: %s [%d,%d) exceeds %d bytes: %w",
				ErrUploadFailed, c.Target, c.Offset, c.End(), size, ErrOutOfBounds)
		}
	}
	for _, c := range b.Commands {
		buf := u.buffers[c.Target]
		if end := c.End(); end > uint64(len(buf)) {
			buf = append(buf, make([]byte, end-uint64(len(buf)))...)
		}
		copy(buf[c.Offset:], c.Payload)
		u.buffers[c.Target] = buf

		st := u.stats[c.Target]
		st.Writes++
		st.BytesWritten += uint64(len(c.Payload))
		st.HighWater = max(st.HighWater, c.End())
		u.stats[c.Target] = st
	}
	u.uploads++
	return nil
}

// Read returns a copy of n bytes of id starting at off. Bytes never written
// read as zero.
func (u *MemoryUploader) Read(id BufferID, off, n uint64) []byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]byte, n)
	buf := u.buffers[id]
	if off < uint64(len(buf)) {
		copy(out, buf[off:])
	}
	return out
}

func (u *MemoryUploader) Stats(id BufferID) BufferStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats[id]
}

// AllStats returns the analytics of every buffer written so far.
func (u *MemoryUploader) AllStats() map[BufferID]BufferStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[BufferID]BufferStats, len(u.stats))
	for id, st := range u.stats {
		out[id] = st
	}
	return out
}

// Uploads returns the number of applied and failed batches.
func (u *MemoryUploader) Uploads() (applied, failed int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.uploads, u.failures
}
