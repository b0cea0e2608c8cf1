package network

import (
	"math"
	"testing"
)

func TestRunningNormMatchesBatchStatistics(t *testing.T) {
	r := NewRunningNorm(2)

	batches := [][]float64{
		{1, 10, 2, 20, 3, 30},
		{4, 40, 5, 50},
		{6, 60},
	}
	for _, b := range batches {
		if _, err := r.Normalize(b); err != nil {
			t.Fatal(err)
		}
	}

	// Statistics of all inputs 1..6 and 10..60
	wantMean := []float64{3.5, 35}
	wantVar := []float64{35.0 / 12.0, 3500.0 / 12.0}
	for j := range wantMean {
		if math.Abs(r.Mean[j]-wantMean[j]) > 1e-9 {
			t.Errorf("mean %v: want %v, have %v", j, wantMean[j], r.Mean[j])
		}
		if math.Abs(r.Var[j]-wantVar[j]) > 1e-9 {
			t.Errorf("var %v: want %v, have %v", j, wantVar[j], r.Var[j])
		}
	}
	if r.Count != 6 {
		t.Errorf("count: want 6, have %v", r.Count)
	}
}

func TestRunningNormEvalDoesNotUpdate(t *testing.T) {
	r := NewRunningNorm(1)
	r.Eval()

	out, err := r.Normalize([]float64{3, 5})
	if err != nil {
		t.Fatal(err)
	}
	if r.Count != 0 || r.Mean[0] != 0 || r.Var[0] != 1 {
		t.Errorf("statistics changed in evaluation mode: %+v", r)
	}

	want := 3 / math.Sqrt(1+runningNormEps)
	if math.Abs(out[0]-want) > 1e-12 {
		t.Errorf("want %v, have %v", want, out[0])
	}

	if _, err := r.Normalize(nil); err == nil {
		t.Error("expected an error for an empty batch")
	}
}
