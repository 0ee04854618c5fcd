package ring

import (
	"testing"

	"KoordeDHT/internal/domain"
)

func nodeRef(addr string) domain.NodeRef {
	return domain.NodeRef{ID: domain.ID{byte(len(addr))}, Addr: addr}
}

func TestBoundedListSetShiftsAndTruncates(t *testing.T) {
	l := NewBoundedList(3)
	l.Set(0, nodeRef("a"))
	l.Set(1, nodeRef("b"))
	l.Set(0, nodeRef("c"))

	got, ok := l.Get(0)
	if !ok || got.Addr != "c" {
		t.Fatalf("Get(0) = %v, %v, want c", got, ok)
	}
	got, ok = l.Get(1)
	if !ok || got.Addr != "a" {
		t.Fatalf("Get(1) = %v, %v, want a", got, ok)
	}
	got, ok = l.Get(2)
	if !ok || got.Addr != "b" {
		t.Fatalf("Get(2) = %v, %v, want b", got, ok)
	}
}

func TestBoundedListGetOutOfRangeReturnsDefault(t *testing.T) {
	l := NewBoundedList(2)
	if _, ok := l.Get(5); ok {
		t.Errorf("Get(5) on capacity-2 list should report not-present")
	}
	if _, ok := l.Get(0); ok {
		t.Errorf("Get(0) on empty list should report not-present")
	}
}

func TestBoundedListErase(t *testing.T) {
	l := NewBoundedList(3)
	l.Set(0, nodeRef("a"))
	l.Set(1, nodeRef("b"))
	l.Erase(0)

	got, ok := l.Get(0)
	if !ok || got.Addr != "b" {
		t.Fatalf("after Erase(0), Get(0) = %v, %v, want b", got, ok)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestBoundedListClear(t *testing.T) {
	l := NewBoundedList(2)
	l.Set(0, nodeRef("a"))
	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", l.Len())
	}
}
