package tracker

import (
	"container/heap"
	"time"
)

type expiry struct {
	channel string
	at      time.Time
}

// expiryQueue is a min-heap of pending removals ordered by deadline.
type expiryQueue []expiry

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q expiryQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *expiryQueue) Push(x any) { *q = append(*q, x.(expiry)) }

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

func (q *expiryQueue) schedule(channel string, at time.Time) {
	heap.Push(q, expiry{channel: channel, at: at})
}

// due pops every expiry whose deadline is at or before now.
func (q *expiryQueue) due(now time.Time) []expiry {
	var out []expiry
	for q.Len() > 0 && !(*q)[0].at.After(now) {
		out = append(out, heap.Pop(q).(expiry))
	}
	return out
}
