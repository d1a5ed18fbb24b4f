package supervisor

import (
	"testing"

	"github.com/mirror-labs/xswarm/internal/domain"
)

func TestOutputRingAppendThenPull(t *testing.T) {
	var r outputRing
	r.append([]float32{1, 2, 3})

	out := make([]float32, 2)
	n := r.pull(out)
	if n != 2 || out[0] != 1 || out[1] != 2 {
		t.Fatalf("pull = (%v, %d), want ([1 2], 2)", out, n)
	}

	out2 := make([]float32, 2)
	n2 := r.pull(out2)
	if n2 != 1 || out2[0] != 3 {
		t.Fatalf("second pull = (%v, %d), want ([3 _], 1)", out2, n2)
	}
}

func TestOutputRingPullOnEmptyReturnsZero(t *testing.T) {
	var r outputRing
	out := make([]float32, 4)
	if n := r.pull(out); n != 0 {
		t.Fatalf("pull on empty ring = %d, want 0", n)
	}
}

func TestOutputRingPullNeverExceedsRequestedLength(t *testing.T) {
	var r outputRing
	r.append([]float32{1, 2, 3, 4, 5})

	out := make([]float32, 3)
	n := r.pull(out)
	if n != 3 {
		t.Fatalf("pull = %d, want 3 (bounded by len(out))", n)
	}
}

func TestNextModeCyclesDevSequence(t *testing.T) {
	got := []struct {
		from, want string
	}{}
	m := domain.ModeIdle
	for i := 0; i < 4; i++ {
		next := nextMode(m)
		got = append(got, struct{ from, want string }{m.String(), next.String()})
		m = next
	}
	if got[0].want != "Listening" || got[1].want != "Speaking" || got[2].want != "Thinking" || got[3].want != "Idle" {
		t.Fatalf("mode cycle = %+v, want Listening,Speaking,Thinking,Idle", got)
	}
}
