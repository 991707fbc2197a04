package triage

import (
	"container/heap"

	"github.com/agentic-hq/agentic/pkg/models"
)

// fixHeap orders assignments most urgent first: priority tier, then
// ascending estimated effort so quick wins surface early, then scenario ID
// for a stable order.
type fixHeap []models.PriorityAssignment

func (h fixHeap) Len() int { return len(h) }

func (h fixHeap) Less(i, j int) bool {
	if ri, rj := h[i].Priority.Rank(), h[j].Priority.Rank(); ri != rj {
		return ri < rj
	}
	if h[i].EstimatedFixEffortHours != h[j].EstimatedFixEffortHours {
		return h[i].EstimatedFixEffortHours < h[j].EstimatedFixEffortHours
	}
	return h[i].ScenarioID < h[j].ScenarioID
}

func (h fixHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *fixHeap) Push(x any) { *h = append(*h, x.(models.PriorityAssignment)) }

func (h *fixHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SuggestFixOrder returns the assignments in recommended fix order. The
// input is not modified.
func SuggestFixOrder(assignments []models.PriorityAssignment) []models.PriorityAssignment {
	h := make(fixHeap, len(assignments))
	copy(h, assignments)
	heap.Init(&h)

	out := make([]models.PriorityAssignment, 0, len(assignments))
	for h.Len() > 0 {
		out = append(out, heap.Pop(&h).(models.PriorityAssignment))
	}
	return out
}
