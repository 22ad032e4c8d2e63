package comp

import (
	"container/heap"
	"time"
)

// TimerID names a scheduled timer. IDs are never reused.
type TimerID uint64

type timer struct {
	id   TimerID
	when time.Time
	fn   func()
}

type timerHeap []*timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(v any) { *h = append(*h, v.(*timer)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// After schedules fn to run on the loop after d. Loop thread only.
func (c *Compositor) After(d time.Duration, fn func()) TimerID {
	c.nextTimer++
	id := c.nextTimer
	heap.Push(&c.timers, &timer{id: id, when: time.Now().Add(d), fn: fn})
	return id
}

// Cancel stops a pending timer. Cancelling a timer that already fired
// is a no-op.
func (c *Compositor) Cancel(id TimerID) {
	for _, t := range c.timers {
		if t.id == id {
			t.fn = nil
			return
		}
	}
}

// nextTimerWait reports how long until the earliest pending timer, or
// false if none are scheduled.
func (c *Compositor) nextTimerWait() (time.Duration, bool) {
	if len(c.timers) == 0 {
		return 0, false
	}
	return time.Until(c.timers[0].when), true
}

// fireTimers runs every timer that is due.
func (c *Compositor) fireTimers() {
	now := time.Now()
	for len(c.timers) > 0 && !c.timers[0].when.After(now) {
		t := heap.Pop(&c.timers).(*timer)
		if t.fn != nil {
			t.fn()
		}
	}
}
