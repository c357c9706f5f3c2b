// Package journal keeps the ordered log of committed state transitions.
//
// Events are staged as components record them and become visible only
// when the block that produced them is committed. Every event gets a
// global sequence number, so a downstream mirror can resume from the
// last sequence it applied.
package journal

import (
	"sort"
	"sync"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/types"
)

var _ stagefund.Recorder = (*Journal)(nil)

// Journal is safe for concurrent use.
type Journal struct {
	mu      sync.RWMutex
	height  uint64
	seq     uint64 // last committed
	pending []types.RecordedEvent
	log     []types.RecordedEvent
	retain  int
}

// New creates a journal that keeps at most retain committed events in
// memory. Zero keeps everything.
func New(retain int) *Journal {
	return &Journal{retain: retain}
}

// Begin starts staging events for a block at height. Events staged and
// never flushed are dropped.
func (j *Journal) Begin(height uint64) {
	j.mu.Lock()
	j.height = height
	j.pending = j.pending[:0]
	j.mu.Unlock()
}

// Record stages events in order.
func (j *Journal) Record(events ...types.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	next := j.seq + uint64(len(j.pending))
	for _, e := range events {
		next++
		j.pending = append(j.pending, types.RecordedEvent{Seq: next, Height: j.height, Event: e})
	}
}

// Pending returns the staged events of the current block.
func (j *Journal) Pending() []types.RecordedEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]types.RecordedEvent(nil), j.pending...)
}

// Flush commits the staged events and returns them.
func (j *Journal) Flush() []types.RecordedEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := append([]types.RecordedEvent(nil), j.pending...)
	j.pending = j.pending[:0]
	if len(out) == 0 {
		return nil
	}
	j.seq = out[len(out)-1].Seq
	j.log = append(j.log, out...)
	if j.retain > 0 && len(j.log) > j.retain {
		j.log = append([]types.RecordedEvent(nil), j.log[len(j.log)-j.retain:]...)
	}
	return out
}

// Seq returns the sequence number of the last committed event.
func (j *Journal) Seq() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.seq
}

// Reset sets the committed sequence after a restart. The in-memory
// history starts empty.
func (j *Journal) Reset(seq uint64) {
	j.mu.Lock()
	j.seq = seq
	j.pending = nil
	j.log = nil
	j.mu.Unlock()
}

// Since returns up to limit committed events with a sequence above
// after. A non-positive limit returns all of them.
func (j *Journal) Since(after uint64, limit int) []types.RecordedEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	i := sort.Search(len(j.log), func(i int) bool { return j.log[i].Seq > after })
	rest := j.log[i:]
	if limit > 0 && len(rest) > limit {
		rest = rest[:limit]
	}
	return append([]types.RecordedEvent(nil), rest...)
}
