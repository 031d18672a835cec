package tracker

// candidate pairs a detection with its best currently-unclaimed track.
// A nil track means no active track lies within the proximity threshold.
type candidate struct {
	det      *Detection
	track    *Track
	distance float64
	// order is the detection's position in the frame input, used as the final
	// tie-break so identical input always produces identical assignments.
	order int
	index int
}

// candidateHeap implements heap.Interface as a min-heap by distance.
type candidateHeap []*candidate

func (h candidateHeap) Len() int { return len(h) }

// Less orders by smallest distance first; equal distances fall back to the
// detection input order to keep assignment reproducible.
func (h candidateHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance < h[j].distance
	}
	return h[i].order < h[j].order
}

func (h candidateHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *candidateHeap) Push(x any) {
	n := len(*h)
	item := x.(*candidate)
	item.index = n
	*h = append(*h, item)
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}
