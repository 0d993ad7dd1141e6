package stats

import "container/heap"

// pieceStat is the running per-piece total tracked for hot-pieces reporting.
type pieceStat struct {
	PieceID string
	Count   int64
	Bytes   int64
}

// pieceHeap is a min-heap on Count, letting topK evict the smallest
// once it holds more than k elements.
type pieceHeap []pieceStat

func (h pieceHeap) Len() int            { return len(h) }
func (h pieceHeap) Less(i, j int) bool  { return h[i].Count < h[j].Count }
func (h pieceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pieceHeap) Push(x interface{}) { *h = append(*h, x.(pieceStat)) }
func (h *pieceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topKHotPieces extracts the k pieces with the highest event count from the
// full per-piece map, descending by count. Built fresh per request via a
// bounded heap rather than maintained continuously.
func topKHotPieces(pieces map[string]*pieceStat, k int) []pieceStat {
	if k <= 0 {
		return nil
	}
	h := make(pieceHeap, 0, k)
	heap.Init(&h)

	for _, p := range pieces {
		if h.Len() < k {
			heap.Push(&h, *p)
			continue
		}
		if p.Count > h[0].Count {
			heap.Pop(&h)
			heap.Push(&h, *p)
		}
	}

	out := make([]pieceStat, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(pieceStat)
	}
	return out
}
