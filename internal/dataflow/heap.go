package dataflow

import "container/heap"

// Heap is a binary min-heap ordered by an injected comparator. Items that
// compare equal come out in no particular order.
type Heap[T any] struct {
	h *heapSlice[T]
}

// NewHeap returns an empty heap ordered by less.
func NewHeap[T any](less func(a, b T) bool) *Heap[T] {
	return &Heap[T]{h: &heapSlice[T]{less: less}}
}

// Push adds an item in O(log n).
func (q *Heap[T]) Push(item T) {
	heap.Push(q.h, item)
}

// Pop removes and returns the minimum item in O(log n). ok is false when the
// heap is empty.
func (q *Heap[T]) Pop() (item T, ok bool) {
	if q.h.Len() == 0 {
		return item, false
	}
	return heap.Pop(q.h).(T), true
}

// Peek returns the minimum item without removing it.
func (q *Heap[T]) Peek() (item T, ok bool) {
	if q.h.Len() == 0 {
		return item, false
	}
	return q.h.items[0], true
}

// Len returns the number of queued items.
func (q *Heap[T]) Len() int {
	return q.h.Len()
}

// heapSlice adapts a comparator-ordered slice to container/heap.
type heapSlice[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (s *heapSlice[T]) Len() int           { return len(s.items) }
func (s *heapSlice[T]) Less(i, j int) bool { return s.less(s.items[i], s.items[j]) }
func (s *heapSlice[T]) Swap(i, j int)      { s.items[i], s.items[j] = s.items[j], s.items[i] }

func (s *heapSlice[T]) Push(x any) {
	s.items = append(s.items, x.(T))
}

func (s *heapSlice[T]) Pop() any {
	n := len(s.items)
	item := s.items[n-1]
	var zero T
	s.items[n-1] = zero
	s.items = s.items[:n-1]
	return item
}
