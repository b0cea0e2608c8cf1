package floatutils

import "testing"

func TestClip(t *testing.T) {
	for _, test := range []struct {
		value, want float64
	}{
		{-2, -1.2},
		{0.3, 0.3},
		{0.6, 0.6},
		{0.7, 0.6},
	} {
		if have := Clip(test.value, -1.2, 0.6); have != test.want {
			t.Errorf("clip(%v): want %v, have %v", test.value, test.want,
				have)
		}
	}
}
