package tracking

// pair is a two-slot buffer whose previous/current roles flip on swap.
// Both slots stay owned by the pair; nothing is copied or reallocated.
type pair[T any] struct {
	slots [2]T
	cur   int
}

func (p *pair[T]) swap() { p.cur ^= 1 }

func (p *pair[T]) current() T  { return p.slots[p.cur] }
func (p *pair[T]) previous() T { return p.slots[p.cur^1] }

func (p *pair[T]) set(prev, curr T) {
	p.slots[p.cur^1] = prev
	p.slots[p.cur] = curr
}
