package sensors

import "sync"

// Sequence is a Source replaying fixed values, wrapping around at the end.
// Values are reduced modulo n, so Sequence{10} with IntN(51) yields 10.
type Sequence struct {
	mu   sync.Mutex
	vals []int
	pos  int
}

func NewSequence(vals ...int) *Sequence {
	return &Sequence{vals: vals}
}

func (s *Sequence) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.vals) == 0 {
		return 0
	}

	v := s.vals[s.pos%len(s.vals)]
	s.pos++

	v %= n
	if v < 0 {
		v += n
	}

	return v
}
