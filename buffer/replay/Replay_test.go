package replay

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/samuelfneumann/goimitate/trajectory"
)

func transitions(from, to int) *trajectory.Transitions {
	t := trajectory.NewTransitions(1, to-from)
	for i := from; i < to; i++ {
		t.Add([]float64{float64(i)}, float64(i), []float64{float64(i + 1)},
			false)
	}
	return t
}

func TestFIFOOverwrite(t *testing.T) {
	b, err := New(1, 4, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := b.Store(transitions(0, 3)); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 3 {
		t.Errorf("want 3 transitions, have %v", b.Len())
	}

	if err := b.Store(transitions(3, 6)); err != nil {
		t.Fatal(err)
	}
	if b.Len() != 4 {
		t.Errorf("want 4 transitions, have %v", b.Len())
	}

	// Only transitions 2..5 remain
	s, err := b.Sample(200)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[float64]bool{}
	for _, a := range s.Acts {
		if a < 2 {
			t.Fatalf("sampled overwritten transition %v", a)
		}
		seen[a] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected all 4 transitions to be sampled, have %v", seen)
	}
	for i := 0; i < s.Len(); i++ {
		obs, act, next, _ := s.At(i)
		if obs[0] != act || next[0] != act+1 {
			t.Fatalf("sample %v is inconsistent", i)
		}
	}
}

func TestStoreMoreThanCapacity(t *testing.T) {
	b, _ := New(1, 3, 0)
	b.Store(transitions(0, 10))

	s, _ := b.Sample(100)
	for _, a := range s.Acts {
		if a < 7 {
			t.Fatalf("kept an old transition %v", a)
		}
	}
}

func TestSampleEmpty(t *testing.T) {
	b, _ := New(1, 3, 0)
	_, err := b.Sample(1)
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("want ErrEmpty, have %v", err)
	}

	if _, err := New(1, 0, 0); err == nil {
		t.Error("expected an error for zero capacity")
	}
	if err := b.Store(trajectory.NewTransitions(2, 0)); err == nil {
		t.Error("expected an error for mismatched features")
	}
}
