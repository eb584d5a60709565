package utils

// ContentRing retains the most recent message bodies in insertion order.
type ContentRing struct {
	size  int
	items []string
}

func NewContentRing(size int) *ContentRing {
	if size <= 0 {
		size = 1
	}
	return &ContentRing{size: size, items: make([]string, 0, size+1)}
}

// Push appends text, drops the oldest entries beyond capacity and returns how
// many retained entries equal text.
func (r *ContentRing) Push(text string) int {
	r.items = append(r.items, text)
	if overflow := len(r.items) - r.size; overflow > 0 {
		r.items = append(r.items[:0], r.items[overflow:]...)
	}

	count := 0
	for _, item := range r.items {
		if item == text {
			count++
		}
	}
	return count
}

func (r *ContentRing) Items() []string {
	out := make([]string, len(r.items))
	copy(out, r.items)
	return out
}
