package dataset

import (
	"errors"
	"iter"
)

// ErrExhausted is returned by Next once every element has been visited.
var ErrExhausted = errors.New("sequence exhausted")

// Sequence is a finite, lazily decoded walk over a fixed list of entry
// positions. It is not safe for concurrent use.
type Sequence[T any] struct {
	indices []int
	pos     int
	decode  func(int) (T, error)
}

func newSequence[T any](indices []int, decode func(int) (T, error)) *Sequence[T] {
	return &Sequence[T]{indices: indices, decode: decode}
}

// Len returns the total number of elements.
func (s *Sequence[T]) Len() int {
	return len(s.indices)
}

// HasNext reports whether Next will yield another element.
func (s *Sequence[T]) HasNext() bool {
	return s.pos < len(s.indices)
}

// Next decodes the next element. A decode error is returned for that
// element only; the sequence still moves past it.
func (s *Sequence[T]) Next() (T, error) {
	if !s.HasNext() {
		var zero T
		return zero, ErrExhausted
	}
	i := s.indices[s.pos]
	s.pos++
	return s.decode(i)
}

// Reset rewinds to the first element.
func (s *Sequence[T]) Reset() {
	s.pos = 0
}

// Indices returns a copy of the entry positions in traversal order.
func (s *Sequence[T]) Indices() []int {
	return append([]int(nil), s.indices...)
}

// All yields the remaining elements with their decode errors.
func (s *Sequence[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for s.HasNext() {
			if !yield(s.Next()) {
				return
			}
		}
	}
}
