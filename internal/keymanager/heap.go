package keymanager

// keyHeap is a container/heap.Interface over a platform's ApiKeys,
// ordered by next-eligible time ascending with least-recently-used
// breaking ties. No third-party priority-queue library appears
// anywhere in the codebases this repository was grounded on, so the
// standard library's container/heap is used directly rather than
// hand-rolling the same algorithm or reaching for a dependency that
// does not exist in the ecosystem this repository draws from.
type keyHeap []*ApiKey

func (h keyHeap) Len() int { return len(h) }

func (h keyHeap) Less(i, j int) bool {
	if !h[i].NextEligible.Equal(h[j].NextEligible) {
		return h[i].NextEligible.Before(h[j].NextEligible)
	}
	return h[i].LastUse.Before(h[j].LastUse)
}

func (h keyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *keyHeap) Push(x any) { *h = append(*h, x.(*ApiKey)) }

func (h *keyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

func (h keyHeap) peek() *ApiKey {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
