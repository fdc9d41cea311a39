package transcript

import (
	"reflect"
	"testing"
)

func TestRing_EvictsOldestFirst(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	if got := r.Items(); !reflect.DeepEqual(got, []int{3, 4, 5}) {
		t.Errorf("expected [3 4 5], got %v", got)
	}
}

func TestRing_Last(t *testing.T) {
	r := NewRing[int](5)
	for i := 1; i <= 7; i++ {
		r.Push(i)
	}

	tests := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{7}},
		{2, []int{6, 7}},
		{5, []int{3, 4, 5, 6, 7}},
		{10, []int{3, 4, 5, 6, 7}},
	}

	for _, tt := range tests {
		got := r.Last(tt.n)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Last(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRing_LastReturnsCopy(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	r.Push(2)

	got := r.Items()
	got[0] = 99

	if r.Items()[0] != 1 {
		t.Error("mutating a snapshot must not change the ring")
	}
}

func TestRing_MinimumCapacity(t *testing.T) {
	r := NewRing[string](0)
	r.Push("a")
	r.Push("b")

	if r.Cap() != 1 {
		t.Errorf("expected capacity 1, got %d", r.Cap())
	}
	if got := r.Items(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("expected [b], got %v", got)
	}
}
