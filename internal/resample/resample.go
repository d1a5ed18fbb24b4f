// Package resample converts between a device-native sample rate and the
// engine-native rate (24 kHz mono) using a fixed-quality windowed-sinc
// filter. No pure-Go sinc resampler appears anywhere in the examples this
// module was built from — the only resampler in that corpus is a cgo
// binding to the system libsoxr library, which isn't a fetchable Go module
// — so this is a hand-written implementation using the mandated
// configuration below.
package resample

import "math"

// Config is the fixed-quality filter configuration. These values are part
// of the contract: lower-quality settings produce audible artifacts
// downstream.
type Config struct {
	SincLen      int
	FCutoff      float64
	Oversampling int
}

// DefaultConfig is the mandated configuration.
var DefaultConfig = Config{
	SincLen:      512,
	FCutoff:      0.99,
	Oversampling: 512,
}

// Resampler converts PCM between srcRate and dstRate. It is not
// thread-safe; callers use one instance per direction and call Process
// repeatedly, which maintains tail state across calls so a stream split
// across many small reads produces the same output as one large read.
type Resampler struct {
	cfg      Config
	srcRate  int
	dstRate  int
	ratio    float64 // dstRate / srcRate
	scale    float64 // cutoff scale factor, < 1 when downsampling
	halfTaps int

	table [][]float32 // table[phase][tap] for phase in [0, oversampling]

	history  []float32 // past input samples, left-padded with zeros at start
	histBase int64     // absolute input-sample index of history[0]
	nextPos  float64   // absolute input-sample position of the next output sample

	totalIn  int64
	totalOut int64
}

// New creates a Resampler converting srcRate Hz to dstRate Hz using cfg.
func New(srcRate, dstRate int, cfg Config) *Resampler {
	if cfg.SincLen <= 0 {
		cfg = DefaultConfig
	}
	r := &Resampler{
		cfg:     cfg,
		srcRate: srcRate,
		dstRate: dstRate,
		ratio:   float64(dstRate) / float64(srcRate),
	}
	r.scale = 1.0
	if r.ratio < 1.0 {
		r.scale = r.ratio // scale cutoff down when downsampling to avoid aliasing
	}
	r.halfTaps = cfg.SincLen / 2
	r.buildTable()

	// Seed history with half a filter's worth of silence so the first
	// real samples can be fully convolved without a special case.
	r.history = make([]float32, r.halfTaps)
	r.histBase = -int64(r.halfTaps)
	r.nextPos = 0
	return r
}

// buildTable precomputes windowedSinc(tap - phase/oversampling) * blackman
// for every (phase, tap) pair. Runtime resampling then only needs a table
// lookup plus linear interpolation between adjacent phases — the
// "interpolation: Linear" the configuration specifies refers to this
// interpolation within the oversampled table, not to the signal itself.
func (r *Resampler) buildTable() {
	taps := r.cfg.SincLen
	over := r.cfg.Oversampling
	r.table = make([][]float32, over+1)
	cutoff := r.cfg.FCutoff * r.scale

	for p := 0; p <= over; p++ {
		row := make([]float32, taps)
		frac := float64(p) / float64(over)
		for j := 0; j < taps; j++ {
			// tap j corresponds to offset (j - halfTaps + 1) from center;
			// x is the distance (in samples) from the ideal continuous
			// sample position to this tap.
			x := float64(j-r.halfTaps+1) - frac
			row[j] = float32(windowedSinc(x, cutoff, taps))
		}
		r.table[p] = row
	}
}

func windowedSinc(x, cutoff float64, taps int) float64 {
	s := sinc(x * cutoff) * cutoff
	w := blackman(x, taps)
	return s * w
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackman evaluates the Blackman window centered on the filter's support,
// treating x (distance from center in samples) as the window argument.
func blackman(x float64, taps int) float64 {
	half := float64(taps) / 2
	if x <= -half || x >= half {
		return 0
	}
	n := (x + half) / float64(taps) // normalized to [0,1)
	const a0, a1, a2 = 0.42, 0.5, 0.08
	return a0 - a1*math.Cos(2*math.Pi*n) + a2*math.Cos(4*math.Pi*n)
}

// Process converts input (at srcRate) into output samples at dstRate,
// preserving energy and monotonically increasing sample order. Partial
// tails that don't yet form a full output sample are retained internally.
func (r *Resampler) Process(input []float32) []float32 {
	r.appendHistory(input)
	r.totalIn += int64(len(input))

	var out []float32
	// Only emit output samples for which we have enough future history
	// (halfTaps worth) to convolve fully; the rest waits for the next call.
	maxPos := float64(r.histBase+int64(len(r.history))) - float64(r.halfTaps)

	for r.nextPos <= maxPos {
		out = append(out, r.sampleAt(r.nextPos))
		r.nextPos += 1.0 / r.ratio
	}

	r.trimHistory()
	r.totalOut += int64(len(out))
	return out
}

func (r *Resampler) appendHistory(input []float32) {
	r.history = append(r.history, input...)
}

// trimHistory drops history entries that can no longer be referenced by
// any future convolution (everything strictly before nextPos - halfTaps).
func (r *Resampler) trimHistory() {
	keepFrom := int64(math.Floor(r.nextPos)) - int64(r.halfTaps)
	drop := keepFrom - r.histBase
	if drop <= 0 {
		return
	}
	if drop >= int64(len(r.history)) {
		drop = int64(len(r.history))
	}
	r.history = r.history[drop:]
	r.histBase += drop
}

// sampleAt convolves the windowed-sinc filter centered at absolute input
// position pos, using linear interpolation between the two nearest
// precomputed table phases.
func (r *Resampler) sampleAt(pos float64) float32 {
	i0 := math.Floor(pos)
	frac := pos - i0
	phaseF := frac * float64(r.cfg.Oversampling)
	p0 := int(phaseF)
	p1 := p0 + 1
	if p1 > r.cfg.Oversampling {
		p1 = r.cfg.Oversampling
	}
	pw := float32(phaseF - float64(p0))

	row0 := r.table[p0]
	row1 := r.table[p1]

	base := int64(i0) - r.histBase - int64(r.halfTaps) + 1
	var acc float32
	for j := 0; j < r.cfg.SincLen; j++ {
		idx := base + int64(j)
		if idx < 0 || idx >= int64(len(r.history)) {
			continue
		}
		w := row0[j]*(1-pw) + row1[j]*pw
		acc += w * r.history[idx]
	}
	return acc
}

// Flush emits any remaining output samples using the history buffer
// padded with trailing silence. It does not reset internal state. Call it
// once when the stream ends.
func (r *Resampler) Flush() []float32 {
	pad := make([]float32, r.halfTaps)
	r.history = append(r.history, pad...)

	var out []float32
	maxPos := float64(r.histBase + int64(len(r.history)) - int64(r.halfTaps))
	for r.nextPos <= maxPos {
		out = append(out, r.sampleAt(r.nextPos))
		r.nextPos += 1.0 / r.ratio
	}
	r.totalOut += int64(len(out))
	return out
}

// Stats returns the cumulative input/output sample counts seen so far.
func (r *Resampler) Stats() (totalIn, totalOut int64) {
	return r.totalIn, r.totalOut
}
