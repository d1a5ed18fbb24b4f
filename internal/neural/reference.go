package neural

import (
	"strings"

	"github.com/mirror-labs/xswarm/internal/domain"
)

// toneFrequency maps a persona's VoiceParams.ToneTag to a carrier frequency
// for the reference tone generator. Unknown tags fall back to a neutral
// mid frequency.
var toneFrequency = map[string]float64{
	"warm":    220.0,
	"bright":  440.0,
	"neutral": 330.0,
	"calm":    180.0,
	"excited": 520.0,
}

const referenceAmplitude = 0.05

// stepReference is the deterministic CPU-only engine behavior used when no
// AcceleratorBackend is installed. It synthesizes a low-amplitude tone
// shaped by the active condition's tone tag and, paced one word per step,
// scripts text_pieces from the words queued at BeginSession so every test
// and the reference build can exercise text emission without a real model.
func (e *Engine) stepReference(st *sessionState, input *domain.AudioFrame, forceText []string) (StepOutput, error) {
	if forceText != nil {
		st.words = forceText
		st.wordIdx = 0
	}

	freq, ok := toneFrequency[st.cond.ToneTag]
	if !ok {
		freq = toneFrequency["neutral"]
	}

	var out domain.OutputFrame
	const twoPi = 2 * 3.14159265358979323846
	step := twoPi * freq / float64(domain.EngineSampleRate)
	for i := range out.Samples {
		out.Samples[i] = float32(referenceAmplitude * sinApprox(st.phase))
		st.phase += step
		if st.phase > twoPi {
			st.phase -= twoPi
		}
	}

	st.seq++
	out.ProducedSeq = st.seq

	var textPiece *string
	var tokens uint32
	// Emit roughly one word every four frames (≈320 ms) so a full greeting
	// finalizes comfortably inside the 1.5 s happy-path budget.
	if st.wordIdx < len(st.words) && st.seq%4 == 0 {
		w := st.words[st.wordIdx]
		textPiece = &w
		tokens = 1
		st.wordIdx++
	}

	return StepOutput{Output: out, TextPiece: textPiece, TokensEmitted: tokens}, nil
}

// greetingWords scripts the reference engine's text_pieces straight from
// the persona's own system_prompt, a word at a time, so the bundled
// non-accelerator build actually honors what the persona's prompt asks
// for (e.g. "Greet the user once.") rather than a synthesized stand-in.
// Only used for the reference (non-accelerator) path.
func greetingWords(cond domain.Condition) []string {
	prompt := strings.TrimSpace(cond.SystemPrompt)
	if prompt == "" {
		return nil
	}
	return strings.Fields(prompt)
}

// sinApprox is a cheap, allocation-free sine approximation (Bhaskara I)
// good enough for the low-amplitude reference tone; avoids pulling math.Sin
// into the hot per-sample loop for a component that exists only as a
// non-accelerator stand-in.
func sinApprox(x float64) float64 {
	const pi = 3.14159265358979323846
	for x > pi {
		x -= 2 * pi
	}
	for x < -pi {
		x += 2 * pi
	}
	if x < 0 {
		return -sinApprox(-x)
	}
	num := 16 * x * (pi - x)
	den := 5*pi*pi - 4*x*(pi-x)
	return num / den
}
