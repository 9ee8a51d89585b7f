package shim

import "testing"

func values(l *List[int]) []int {
	var out []int
	l.Each(func(v int) bool {
		out = append(out, v)
		return true
	})
	return out
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestList_AddDelPop(t *testing.T) {
	var l List[int]
	if !l.Empty() || l.Head() != nil || l.Tail() != nil {
		t.Fatal("zero list not empty")
	}
	two := l.AddTail(2)
	l.AddTail(3)
	l.AddHead(1)
	if got := values(&l); !equal(got, []int{1, 2, 3}) {
		t.Fatalf("values %v", got)
	}
	if l.Head().Next() != two || two.Prev() != l.Head() {
		t.Fatal("links broken")
	}

	l.Del(two)
	if got := values(&l); !equal(got, []int{1, 3}) || l.Len() != 2 {
		t.Fatalf("after del %v len %d", got, l.Len())
	}

	v, ok := l.PopHead()
	if !ok || v != 1 {
		t.Fatalf("PopHead = %d, %v", v, ok)
	}
	v, _ = l.PopHead()
	if v != 3 || !l.Empty() {
		t.Fatalf("PopHead = %d, empty %v", v, l.Empty())
	}
	if _, ok := l.PopHead(); ok {
		t.Fatal("PopHead on empty list")
	}
}

func TestList_EachStops(t *testing.T) {
	var l List[int]
	for i := 0; i < 5; i++ {
		l.AddTail(i)
	}
	seen := 0
	l.Each(func(v int) bool {
		seen++
		return v < 2
	})
	if seen != 3 {
		t.Fatalf("seen = %d", seen)
	}
}

func TestList_DelForeignNodePanics(t *testing.T) {
	var a, b List[int]
	n := a.AddTail(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	b.Del(n)
}

func TestList_CorruptionDetected(t *testing.T) {
	var l List[int]
	l.AddTail(1)
	l.first = nil // leaves last dangling
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	l.Empty()
}
