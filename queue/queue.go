package queue

import (
	"container/heap"
	"sync"

	"github.com/twitter/devfarm/common/stats"
	"github.com/twitter/devfarm/device"
)

// entry is one heap slot: a Command plus the sort key it was
// (re)inserted with. sortKey is sampled at insertion time per spec
// §4.1, not read live off the Command, so a command mutating its own
// totalExecTimeMs while RUNNING never perturbs the heap it isn't in.
type entry struct {
	cmd     *Command
	sortKey uint64
	seq     uint64
	index   int
}

// heapData is a container/heap.Interface over entries, ordered by
// sortKey ascending and tie-broken by seq ascending (FIFO for equal
// keys, so a forced interrupt's ordering relative to a requeue stays deterministic).
type heapData []*entry

func (h heapData) Len() int { return len(h) }
func (h heapData) Less(i, j int) bool {
	if h[i].sortKey != h[j].sortKey {
		return h[i].sortKey < h[j].sortKey
	}
	return h[i].seq < h[j].seq
}
func (h heapData) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *heapData) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *heapData) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Queue is the command queue: a single mutex serializes
// Add/Remove/PeekEligible/Requeue.
type Queue struct {
	mu      sync.Mutex
	data    heapData
	byID    map[string]*entry
	nextSeq uint64
	stat    stats.StatsReceiver
}

func NewQueue(stat stats.StatsReceiver) *Queue {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	q := &Queue{byID: map[string]*entry{}, stat: stat.Scope("queue")}
	heap.Init(&q.data)
	return q
}

// Add inserts cmd keyed by its current TotalExecTimeMs. A brand new
// command (TotalExecTimeMs == 0) sorts ahead of any command that has
// already run - new work gets first crack at a free device.
func (q *Queue) Add(cmd *Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmd.setStatus(Queued)
	e := &entry{cmd: cmd, sortKey: cmd.TotalExecTimeMs(), seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.data, e)
	q.byID[cmd.ID] = e
	q.stat.Gauge("depth").Update(int64(len(q.data)))
}

// Remove removes cmd by identity. A no-op if cmd isn't queued
// (e.g. it was already dispatched).
func (q *Queue) Remove(cmd *Command) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(cmd)
}

func (q *Queue) removeLocked(cmd *Command) {
	e, ok := q.byID[cmd.ID]
	if !ok {
		return
	}
	heap.Remove(&q.data, e.index)
	delete(q.byID, cmd.ID)
	q.stat.Gauge("depth").Update(int64(len(q.data)))
}

// RemoveMatching removes every queued command for which predicate
// returns true and returns them.
func (q *Queue) RemoveMatching(predicate func(*Command) bool) []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	var matched []*Command
	for _, e := range q.data {
		if predicate(e.cmd) {
			matched = append(matched, e.cmd)
		}
	}
	for _, cmd := range matched {
		q.removeLocked(cmd)
	}
	return matched
}

// Snapshot returns every currently queued command, in no particular
// order, for introspection (devfarmctl list / ListCommands).
func (q *Queue) Snapshot() []*Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Command, 0, len(q.data))
	for _, e := range q.data {
		out = append(out, e.cmd)
	}
	return out
}

// Requeue resamples cmd's sort key from its TotalExecTimeMs right now
// (never a stale value) and
// reinserts it.
func (q *Queue) Requeue(cmd *Command) {
	q.Add(cmd)
}

// Len reports the number of commands currently queued (not running).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

// FreeDevice is the minimal view PeekEligible needs of a candidate
// device: enough to evaluate a Requirements predicate against it.
type FreeDevice = device.Handle

// PeekEligible scans up to the first K entries in key order (K must be
// >= len(pool)) and returns the first Command whose
// DeviceRequirements match some device in pool, paired with that
// device. It never blocks and never mutates the queue - the caller
// removes the command explicitly once it decides to dispatch it,
// matching the Scheduler Loop's "don't hold the queue lock during I/O"
// rule the scheduler loop relies on to avoid holding the queue lock during device I/O.
func (q *Queue) PeekEligible(pool []FreeDevice, k int) (*Command, *FreeDevice) {
	q.mu.Lock()
	ordered := make([]*entry, len(q.data))
	copy(ordered, q.data)
	q.mu.Unlock()

	sortEntries(ordered)

	if k < len(pool) {
		k = len(pool)
	}
	if k > len(ordered) {
		k = len(ordered)
	}
	for i := 0; i < k; i++ {
		cmd := ordered[i].cmd
		for d := range pool {
			if cmd.DeviceRequirements.Matches(&pool[d]) {
				return cmd, &pool[d]
			}
		}
	}
	return nil, nil
}

// sortEntries orders a detached copy the same way the heap does,
// without disturbing the live heap - PeekEligible must not reorder or
// remove anything, it only looks.
func sortEntries(es []*entry) {
	// Simple insertion sort over the whole detached copy: every queued
	// entry is sorted, not only the first K.
	for i := 1; i < len(es); i++ {
		for j := i; j > 0 && entryLess(es[j], es[j-1]); j-- {
			es[j], es[j-1] = es[j-1], es[j]
		}
	}
}

func entryLess(a, b *entry) bool {
	if a.sortKey != b.sortKey {
		return a.sortKey < b.sortKey
	}
	return a.seq < b.seq
}
