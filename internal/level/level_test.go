package level

import (
	"math"
	"testing"
)

func TestDBConversions(t *testing.T) {
	tests := []struct {
		db, ratio float64
	}{
		{0, 1},
		{-20, 0.1},
		{-60, 1e-3},
		{6, 1.9952623149688795},
	}
	for _, tt := range tests {
		if got := FromDB(tt.db); math.Abs(got-tt.ratio) > 1e-12*tt.ratio {
			t.Errorf("FromDB(%g) = %v, want %v", tt.db, got, tt.ratio)
		}
		if got := ToDB(tt.ratio); math.Abs(got-tt.db) > 1e-10 {
			t.Errorf("ToDB(%g) = %v, want %v", tt.ratio, got, tt.db)
		}
	}
	if !math.IsInf(ToDB(0), -1) {
		t.Fatal("expected -Inf for zero")
	}
	if !math.IsNaN(ToDB(-1)) {
		t.Fatal("expected NaN for negative ratio")
	}
}

func TestPowerToDB(t *testing.T) {
	if got := PowerToDB(0.001); math.Abs(got+30) > 1e-10 {
		t.Errorf("PowerToDB(0.001) = %v, want -30", got)
	}
	if !math.IsInf(PowerToDB(0), -1) {
		t.Error("expected -Inf for zero power")
	}
	if !math.IsNaN(PowerToDB(-1)) {
		t.Error("expected NaN for negative power")
	}
}

func TestDecayPerSample(t *testing.T) {
	const rt60, fs = 0.5, 1000.0
	r := DecayPerSample(rt60, fs)
	// After rt60·fs samples the amplitude is down by 60 dB.
	if got := ToDB(math.Pow(r, rt60*fs)); math.Abs(got+60) > 1e-9 {
		t.Fatalf("decay after RT60 = %v dB, want -60", got)
	}
}
