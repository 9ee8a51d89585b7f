// shim/list.go

package shim

// Node is an element of a List.
type Node[T any] struct {
	prev, next *Node[T]
	list       *List[T]
	Value      T
}

// Next returns the following node, or nil at the tail.
func (n *Node[T]) Next() *Node[T] { return n.next }

// Prev returns the preceding node, or nil at the head.
func (n *Node[T]) Prev() *Node[T] { return n.prev }

// List is a doubly linked list that is not concurrent safe. Callers
// serialise access, typically with a Spinlock. The zero value is empty.
type List[T any] struct {
	first, last *Node[T]
	n           int
}

// Empty returns true if the list is empty.
func (l *List[T]) Empty() bool {
	if l.first == nil {
		if l.last != nil || l.n != 0 {
			panic("shim: list invariant violated checking for Empty")
		}
		return true
	}
	return false
}

func (l *List[T]) Len() int { return l.n }

// Head returns the first node or nil.
func (l *List[T]) Head() *Node[T] {
	if l.first != nil && l.first.prev != nil {
		panic("shim: list invariant of first node violated")
	}
	return l.first
}

// Tail returns the last node or nil.
func (l *List[T]) Tail() *Node[T] {
	if l.last != nil && l.last.next != nil {
		panic("shim: list invariant of last node violated")
	}
	return l.last
}

func (l *List[T]) AddTail(v T) *Node[T] {
	n := &Node[T]{Value: v, list: l, prev: l.last}
	if l.last == nil {
		l.first = n
	} else {
		l.last.next = n
	}
	l.last = n
	l.n++
	return n
}

func (l *List[T]) AddHead(v T) *Node[T] {
	n := &Node[T]{Value: v, list: l, next: l.first}
	if l.first == nil {
		l.last = n
	} else {
		l.first.prev = n
	}
	l.first = n
	l.n++
	return n
}

// Del unlinks n. Deleting a node of another list panics.
func (l *List[T]) Del(n *Node[T]) {
	if n.list != l {
		panic("shim: node is not on this list")
	}
	if n.prev == nil {
		l.first = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		l.last = n.prev
	} else {
		n.next.prev = n.prev
	}
	n.prev, n.next, n.list = nil, nil, nil
	l.n--
}

// PopHead unlinks and returns the first value.
func (l *List[T]) PopHead() (T, bool) {
	n := l.Head()
	if n == nil {
		var zero T
		return zero, false
	}
	l.Del(n)
	return n.Value, true
}

// Each calls fn for every value from head to tail until fn returns false.
func (l *List[T]) Each(fn func(T) bool) {
	for n := l.first; n != nil; n = n.next {
		if !fn(n.Value) {
			return
		}
	}
}
