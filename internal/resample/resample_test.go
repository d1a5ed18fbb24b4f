package resample

import (
	"math"
	"testing"
)

func sineWave(n int, freq, rate float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / rate))
	}
	return out
}

// TestSampleCountRatio verifies property #1: for K captured blocks, the
// total output sample count equals K*block_size*(target/source) within
// rounding, across an arbitrary split into blocks.
func TestSampleCountRatio(t *testing.T) {
	const srcRate = 48000
	const dstRate = 24000
	const blockSize = 441
	const blocks = 50

	input := sineWave(blockSize*blocks, 440, srcRate)

	r := New(srcRate, dstRate, DefaultConfig)
	var total int
	for i := 0; i < blocks; i++ {
		chunk := input[i*blockSize : (i+1)*blockSize]
		out := r.Process(chunk)
		total += len(out)
	}
	total += len(r.Flush())

	want := float64(blocks*blockSize) * (float64(dstRate) / float64(srcRate))
	diff := math.Abs(float64(total) - want)
	if diff > 2 {
		t.Errorf("total output samples = %d, want ~%.0f (diff %.1f)", total, want, diff)
	}
}

func TestProcessPreservesEnergyApproximately(t *testing.T) {
	const srcRate = 44100
	const dstRate = 24000
	input := sineWave(4096, 1000, srcRate)

	r := New(srcRate, dstRate, DefaultConfig)
	out := r.Process(input)
	out = append(out, r.Flush()...)

	if len(out) == 0 {
		t.Fatal("expected non-empty output")
	}

	var sumSq float64
	for _, s := range out {
		sumSq += float64(s) * float64(s)
	}
	rms := math.Sqrt(sumSq / float64(len(out)))
	// Input sine has RMS ~0.707; a correctly scaled resampler should stay
	// within a generous band of that (filter ripple, edge effects).
	if rms < 0.3 || rms > 1.2 {
		t.Errorf("output RMS = %.3f, want within [0.3, 1.2] of input RMS 0.707", rms)
	}
}

func TestUpsamplingProducesMoreSamples(t *testing.T) {
	const srcRate = 16000
	const dstRate = 24000
	input := sineWave(1600, 300, srcRate)

	r := New(srcRate, dstRate, DefaultConfig)
	out := r.Process(input)
	out = append(out, r.Flush()...)

	if len(out) <= len(input) {
		t.Errorf("upsampling 16k->24k: got %d output samples from %d input, expected more", len(out), len(input))
	}
}

func TestSilenceInSilenceOut(t *testing.T) {
	r := New(48000, 24000, DefaultConfig)
	input := make([]float32, 4000)
	out := r.Process(input)
	out = append(out, r.Flush()...)

	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %f, want 0 for silent input", i, s)
			break
		}
	}
}
