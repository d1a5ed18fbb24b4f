package audiodevice

import "testing"

func TestClampInt16(t *testing.T) {
	cases := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{2, 32767},
		{-2, -32768},
		{0.5, 16383},
	}
	for _, c := range cases {
		if got := clampInt16(c.in); got != c.want {
			t.Errorf("clampInt16(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSourceReaderFillsFromSource(t *testing.T) {
	dev := &Device{}
	dev.SetOutputSource(func(out []float32) int {
		for i := range out {
			out[i] = 1.0
		}
		return len(out)
	})

	r := newSourceReader(dev)
	buf := make([]byte, 8) // 4 int16 samples
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if n != 8 {
		t.Fatalf("Read returned n=%d, want 8", n)
	}
	if dev.Drops.OutputUnderflow.Load() != 0 {
		t.Errorf("expected no underflow, got %d", dev.Drops.OutputUnderflow.Load())
	}
}

func TestSourceReaderUnderflowReturnsSilenceAndCounts(t *testing.T) {
	dev := &Device{}
	dev.SetOutputSource(func(out []float32) int {
		return 0 // nothing available
	})

	r := newSourceReader(dev)
	buf := make([]byte, 4) // 2 int16 samples
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if n != 4 {
		t.Fatalf("Read returned n=%d, want 4", n)
	}
	for i, b := range buf {
		if b != 0 {
			t.Errorf("byte %d = %d, want 0 (silence)", i, b)
		}
	}
	if dev.Drops.OutputUnderflow.Load() != 1 {
		t.Errorf("expected 1 underflow, got %d", dev.Drops.OutputUnderflow.Load())
	}
}

func TestSourceReaderNoSourceInstalledIsSilence(t *testing.T) {
	dev := &Device{}
	r := newSourceReader(dev)
	buf := make([]byte, 4)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if dev.Drops.OutputUnderflow.Load() != 1 {
		t.Errorf("expected underflow counted when no source installed, got %d", dev.Drops.OutputUnderflow.Load())
	}
}
