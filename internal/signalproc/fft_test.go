package signalproc

import (
	"math"
	"math/rand"
	"testing"
)

func sineSamples(freqHz, sampleRateHz float64, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / sampleRateHz
		samples[i] = math.Sin(2 * math.Pi * freqHz * t)
	}
	return samples
}

func TestAnalyze_InsufficientSamples(t *testing.T) {
	samples := sineSamples(1.0, 20.0, MinSamples-1)
	res := Analyze(samples, 1.0, 20.0)
	if res.SpectralError != 1.0 {
		t.Errorf("expected spectral_error=1.0 for short buffer, got %v", res.SpectralError)
	}
	if !math.IsInf(res.SNRdB, -1) {
		t.Errorf("expected -Inf SNR for short buffer, got %v", res.SNRdB)
	}
}

func TestAnalyze_PureSine_LowError(t *testing.T) {
	const fs = 20.0
	freq := 1.15
	samples := sineSamples(freq, fs, 128)

	res := Analyze(samples, freq, fs)
	if res.SpectralError >= 0.05 {
		t.Errorf("expected spectral_error < 0.05 for pure sine, got %v", res.SpectralError)
	}
	if res.SNRdB <= 15 {
		t.Errorf("expected snr_db > 15 for pure sine, got %v", res.SNRdB)
	}
}

func TestAnalyze_Noise_HighError(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	samples := make([]float64, 128)
	for i := range samples {
		samples[i] = rng.Float64()*2 - 1
	}

	res := Analyze(samples, 1.15, 20.0)
	if res.SpectralError <= 0.5 {
		t.Errorf("expected spectral_error > 0.5 for uniform noise, got %v", res.SpectralError)
	}
}

func TestAnalyze_BoundedRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		n := MinSamples + rng.Intn(96)
		samples := make([]float64, n)
		for i := range samples {
			samples[i] = rng.Float64()*2 - 1
		}
		res := Analyze(samples, 1.0+rng.Float64()*3, 20.0)
		if res.SpectralError < 0 || res.SpectralError > 1 {
			t.Fatalf("spectral_error out of range: %v", res.SpectralError)
		}
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	samples := sineSamples(2.05, 20.0, 64)
	a := Analyze(samples, 2.05, 20.0)
	b := Analyze(samples, 2.05, 20.0)
	if a != b {
		t.Errorf("Analyze is not deterministic: %+v vs %+v", a, b)
	}
}

func TestAnalyze_TieBreakLowerBin(t *testing.T) {
	// A frequency exactly between two bin centers should resolve to the
	// lower-indexed bin.
	const fs = 20.0
	const l = 40 // bin spacing = 0.5Hz; bins at 0.0, 0.5, 1.0, 1.5...
	exactlyBetween := 0.75
	samples := sineSamples(1.0, fs, l)

	target := nearestBin(exactlyBetween, fs, l)
	if target != 1 {
		t.Errorf("expected tie-break to lower bin (1), got %d", target)
	}
	_ = samples
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  float64
		want Health
	}{
		{0.0, Healthy},
		{0.19, Healthy},
		{0.2, Warning},
		{0.49, Warning},
		{0.5, Critical},
		{1.0, Critical},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRemoveMeanAndHanning(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 5}
	centered := removeMean(samples)
	var sum float64
	for _, s := range centered {
		sum += s
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("expected zero-mean output, got sum %v", sum)
	}

	windowed := applyHanning(samples)
	if windowed[0] != 0 {
		t.Errorf("expected Hanning window to zero the first sample, got %v", windowed[0])
	}
	if len(windowed) != len(samples) {
		t.Fatalf("window length mismatch")
	}
}
