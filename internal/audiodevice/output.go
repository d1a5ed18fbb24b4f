package audiodevice

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/ebitengine/oto/v3"
)

// outputChannels and the oto.FormatSignedInt16LE format below mirror the
// donor player's oto setup (signed 16-bit little-endian PCM), the format
// oto's streaming API
// expects regardless of the engine's internal float32 representation.
const outputChannels = 1

func newOtoContext(sampleRate int) (*oto.Context, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: outputChannels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	return ctx, nil
}

// sourceReader adapts a Device's OutputSource callback into an io.Reader
// that oto's playback goroutine pulls from at its own pace. Output period
// behavior: if the source has nothing to offer, it returns silence and
// the underflow counter is incremented — the contract requires playback
// to return within the device period no matter what.
type sourceReader struct {
	dev *Device
}

func newSourceReader(dev *Device) *sourceReader {
	return &sourceReader{dev: dev}
}

// Read fills p with as many complete int16 LE samples as fit, pulling
// float32 samples from the installed OutputSource and converting them.
func (s *sourceReader) Read(p []byte) (int, error) {
	const bytesPerSample = 2
	n := len(p) / bytesPerSample
	if n == 0 {
		return 0, nil
	}

	buf := make([]float32, n)
	filled := 0
	if srcPtr := s.dev.source.Load(); srcPtr != nil {
		src := *srcPtr
		filled = src(buf)
	}
	if filled < n {
		s.dev.Drops.OutputUnderflow.Add(1)
		for i := filled; i < n; i++ {
			buf[i] = 0
		}
	}

	for i, sample := range buf {
		v := clampInt16(sample)
		binary.LittleEndian.PutUint16(p[i*bytesPerSample:], uint16(v))
	}
	return n * bytesPerSample, nil
}

func clampInt16(f float32) int16 {
	v := f * math.MaxInt16
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

var _ io.Reader = (*sourceReader)(nil)
