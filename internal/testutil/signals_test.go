package testutil

import (
	"testing"
)

func TestDeterministicNoise(t *testing.T) {
	a := DeterministicNoise(42, 64)
	b := DeterministicNoise(42, 64)
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("noise not deterministic at index %d", i)
		}
	}
}

func TestDeterministicNoiseDifferentSeeds(t *testing.T) {
	a := DeterministicNoise(1, 16)
	b := DeterministicNoise(2, 16)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical noise")
	}
}

func TestImpulse(t *testing.T) {
	imp := Impulse(8, 3)
	if len(imp) != 8 {
		t.Fatalf("len = %d, want 8", len(imp))
	}
	for i, v := range imp {
		if i == 3 {
			if v != 1 {
				t.Fatalf("imp[3] = %v, want 1", v)
			}
		} else if v != 0 {
			t.Fatalf("imp[%d] = %v, want 0", i, v)
		}
	}
}

func TestImpulseOutOfBounds(t *testing.T) {
	imp := Impulse(4, 10)
	for i, v := range imp {
		if v != 0 {
			t.Fatalf("imp[%d] = %v, want all zeros for out-of-bounds pos", i, v)
		}
	}
}

func TestHankelMatrix(t *testing.T) {
	// Scalar blocks 0..4 with 3 rows and 3 columns.
	h := HankelMatrix([]float64{0, 1, 2, 3, 4}, 1, 1, 3, 3)
	for a := range 3 {
		for b := range 3 {
			if got := h.At(a, b); got != float64(a+b) {
				t.Fatalf("H[%d,%d] = %v, want %d", a, b, got, a+b)
			}
		}
	}
}

func TestDampedModes(t *testing.T) {
	data := DampedModes(3, 40, 2, 2, []float64{0.9, 0.7}, []float64{0.3, 1.1})
	if len(data) != 40*4 {
		t.Fatalf("len = %d, want %d", len(data), 40*4)
	}
	for k := range 4 {
		if data[k] != 0 {
			t.Fatalf("block 0 entry %d = %v, want 0", k, data[k])
		}
	}
	RequireFinite(t, data)
}
