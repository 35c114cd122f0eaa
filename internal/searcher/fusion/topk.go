package fusion

import (
	"container/heap"
)

// TopK returns the limit best results ordered by fused score descending,
// then by ascending id. It keeps a bounded min-heap so only limit entries
// are held at once.
func TopK(results []Result, limit int) []Result {
	if limit <= 0 || len(results) == 0 {
		return []Result{}
	}
	h := &resultHeap{}
	heap.Init(h)
	for _, r := range results {
		heap.Push(h, r)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	out := make([]Result, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Result)
	}
	return out
}

// resultHeap is a min-heap: the root is the entry that would rank last.
type resultHeap []Result

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool {
	if h[i].FusedScore != h[j].FusedScore {
		return h[i].FusedScore < h[j].FusedScore
	}
	return h[i].ID > h[j].ID
}

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(Result))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
