package dice_derby

import "testing"

func TestRNGDeterministic(t *testing.T) {
	a, b := NewRNG(42), NewRNG(42)
	for i := 0; i < 1000; i++ {
		if x, y := a.Float64(), b.Float64(); x != y {
			t.Fatalf("draw %d: same seed produced %v and %v", i, x, y)
		}
	}
}

func TestRNGSeedsDiffer(t *testing.T) {
	a, b := NewRNG(1), NewRNG(2)
	same := 0
	for i := 0; i < 100; i++ {
		if a.Float64() == b.Float64() {
			same++
		}
	}
	if same == 100 {
		t.Error("different seeds produced identical streams")
	}
}

func TestRNGRange(t *testing.T) {
	r := NewRNG(0xDEADBEEF)
	sum := 0.0
	const n = 100000
	for i := 0; i < n; i++ {
		v := r.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("draw %d out of range: %v", i, v)
		}
		sum += v
	}
	if mean := sum / n; mean < 0.49 || mean > 0.51 {
		t.Errorf("mean %v is not close to 0.5", mean)
	}
}

func TestDrawsConsumesFive(t *testing.T) {
	a, b := NewRNG(7), NewRNG(7)
	d := a.Draws()
	for i := range d {
		if want := b.Float64(); d[i] != want {
			t.Errorf("slot %d = %v, want %v", i, d[i], want)
		}
	}
	if a.Float64() != b.Float64() {
		t.Error("Draws consumed a different number of values than five")
	}
}

func BenchmarkRNG(b *testing.B) {
	r := NewRNG(1)
	for i := 0; i < b.N; i++ {
		r.Draws()
	}
}
