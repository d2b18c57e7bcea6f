// +build property_test

package queue

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Test_Queue_RequeueSequenceStaysFair checks the queue's own fairness
// contract: no matter what sequence of (exec-time-delta, requeue)
// events two continuously-eligible commands see, the queue always
// hands out the smaller total exec time first, so the two totals can
// never drift apart by more than one event's delta. This is the
// invariant the worker pool leans on to get real-world fair
// scheduling between fast and slow commands.
//
// Wraps repeated queue operations in a gopter property rather than a
// fixed table of cases, the same style used for the property test in
// the interrupt package.
func Test_Queue_RequeueSequenceStaysFair(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("dispatch order always prefers the smaller total exec time", prop.ForAll(
		func(deltas []uint64) bool {
			q := NewQueue(nil)
			a := NewCommand([]string{"a"})
			b := NewCommand([]string{"b"})
			q.Add(a)
			q.Add(b)

			pool := freePool("d1")
			for _, delta := range deltas {
				cmd, dev := q.PeekEligible(pool, 2)
				if cmd == nil || dev == nil {
					return false
				}
				other := a
				if cmd == a {
					other = b
				}
				// cmd must never be strictly behind other when both
				// are still queued: the smaller key always wins.
				if cmd.TotalExecTimeMs() > other.TotalExecTimeMs() {
					return false
				}
				q.Remove(cmd)
				cmd.AddExecTime(delta)
				q.Requeue(cmd)
			}
			return true
		},
		gen.SliceOf(gen.UInt64Range(1, 500)),
	))

	properties.TestingRun(t)
}
