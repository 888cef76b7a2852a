package batch

import (
	"time"

	"github.com/hrygo/tutorsense/store/catalog"
)

// Priority orders pending requests. Higher drains first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// Request is one pending batch generation request.
type Request struct {
	ID         string
	Type       catalog.ContentType
	Module     string
	Count      int
	Priority   Priority
	EnqueuedAt time.Time

	// seq preserves FIFO order within a priority.
	seq int64
}

// Result delivers generated items for one request, in enqueue order.
type Result struct {
	RequestID string
	Type      catalog.ContentType
	Module    string
	Items     []string
	Err       error
}

// requestHeap is a max-heap by priority, FIFO within a priority.
type requestHeap []*Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(*Request)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
