// Package wakeword provides real-time wake-word detection using the
// openWakeWord ONNX pipeline: melspectrogram → embedding → per-word
// wakeword score, generalized from a single hardcoded phrase to a
// configurable set (§4.8). The detector is advisory only — it fires a
// callback naming the matched word; the Supervisor decides whether to
// transition dashboard modes.
//
// Feed is the primary integration point: the Supervisor calls it with
// each engine-native AudioFrame from the processing task, so the detector
// never owns its own mic stream in that path. A self-contained capture
// loop (Start) is also provided, built on the donor's malgo-based
// low-overhead continuous capture, for standalone operation independent
// of the main device's exact frame cadence — e.g. development/testing
// without a Supervisor.
package wakeword

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/mirror-labs/xswarm/internal/domain"
	"github.com/mirror-labs/xswarm/internal/logger"
	"github.com/mirror-labs/xswarm/internal/resample"
)

// ── Constants matching the openWakeWord pipeline ─────────────────

const (
	modelSampleRate = 16000
	chunkSamples    = 1280 // 80 ms @ 16 kHz — exactly domain.FrameSize resampled 24kHz->16kHz
	melWindowSize   = 76   // embedding model needs 76 mel frames
	melStepSize     = 8    // step between embedding windows
	embeddingDim    = 96   // output dim per embedding frame
	nEmbedFrames    = 16   // wakeword model needs 16 embedding frames
	melBins         = 32   // melspectrogram output bands
	nMelFrames      = 5    // 1280 samples → 5 mel frames

	// scoreWindowSize is the number of recent scores tracked per word; the
	// detector fires on the max score in this window to absorb
	// frame-alignment variance (the peak may land one frame early/late).
	scoreWindowSize = 5

	defaultCooldown = 1500 * time.Millisecond
)

// Config holds the model directory and ONNX runtime library path. Each
// configured word is expected to have a model at
// filepath.Join(ModelDir, word+".onnx").
type Config struct {
	ModelDir       string
	MelspecModel   string
	EmbeddingModel string
	OnnxLib        string
	Cooldown       time.Duration
}

func (c *Config) defaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
}

// wordState tracks one configured wake word's model session and trailing
// score window.
type wordState struct {
	word    string
	session *ort.AdvancedSession
	in      *ort.Tensor[float32]
	out     *ort.Tensor[float32]

	scoreWindow [scoreWindowSize]float32
	scoreIdx    int
	lastDetect  time.Time
}

func (w *wordState) destroy() {
	if w.session != nil {
		w.session.Destroy()
	}
	if w.in != nil {
		w.in.Destroy()
	}
	if w.out != nil {
		w.out.Destroy()
	}
}

// Detector listens for any of a configured set of wake words and fires
// OnDetect with the matched word.
type Detector struct {
	cfg Config
	log *logger.Logger

	// OnDetect is invoked from whichever goroutine calls Feed (the
	// processing task, per the concurrency contract) when any configured
	// word's score crosses threshold. Must not block.
	OnDetect func(word string)

	onnxReady bool
	melspec   *ort.AdvancedSession
	melIn     *ort.Tensor[float32]
	melOut    *ort.Tensor[float32]
	embed     *ort.AdvancedSession
	embedIn   *ort.Tensor[float32]
	embedOut  *ort.Tensor[float32]

	mu          sync.Mutex
	threshold   float64
	words       map[string]*wordState
	melBuffer   []float32
	embedBuffer []float32
	resampler   *resample.Resampler

	paused bool
}

// New creates a Detector. Call Init once before Configure/Feed.
func New(cfg Config, log *logger.Logger) *Detector {
	cfg.defaults()
	return &Detector{
		cfg:         cfg,
		log:         log,
		threshold:   0.5,
		words:       make(map[string]*wordState),
		embedBuffer: make([]float32, nEmbedFrames*embeddingDim),
		resampler:   resample.New(domain.EngineSampleRate, modelSampleRate, resample.DefaultConfig),
	}
}

// Init loads the ONNX runtime and the shared melspectrogram/embedding
// sessions. Call once; Configure may be called many times afterward.
func (d *Detector) Init() error {
	ort.SetSharedLibraryPath(d.cfg.OnnxLib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("wakeword: onnx init: %w", err)
	}

	var err error
	d.melIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, chunkSamples))
	if err != nil {
		return err
	}
	d.melOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, nMelFrames, melBins))
	if err != nil {
		return err
	}
	msIn, msOut, err := ort.GetInputOutputInfo(d.cfg.MelspecModel)
	if err != nil {
		return err
	}
	d.melspec, err = ort.NewAdvancedSession(d.cfg.MelspecModel,
		[]string{msIn[0].Name}, []string{msOut[0].Name},
		[]ort.Value{d.melIn}, []ort.Value{d.melOut}, nil)
	if err != nil {
		return err
	}

	d.embedIn, err = ort.NewEmptyTensor[float32](ort.NewShape(1, melWindowSize, melBins, 1))
	if err != nil {
		return err
	}
	d.embedOut, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1, 1, embeddingDim))
	if err != nil {
		return err
	}
	emIn, emOut, err := ort.GetInputOutputInfo(d.cfg.EmbeddingModel)
	if err != nil {
		return err
	}
	d.embed, err = ort.NewAdvancedSession(d.cfg.EmbeddingModel,
		[]string{emIn[0].Name}, []string{emOut[0].Name},
		[]ort.Value{d.embedIn}, []ort.Value{d.embedOut}, nil)
	if err != nil {
		return err
	}

	d.onnxReady = true
	d.log.Debug("wakeword: onnx runtime + shared models initialized")
	return nil
}

// Close releases all ONNX sessions and tensors.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range d.words {
		w.destroy()
	}
	d.words = make(map[string]*wordState)

	if d.melspec != nil {
		d.melspec.Destroy()
	}
	if d.melIn != nil {
		d.melIn.Destroy()
	}
	if d.melOut != nil {
		d.melOut.Destroy()
	}
	if d.embed != nil {
		d.embed.Destroy()
	}
	if d.embedIn != nil {
		d.embedIn.Destroy()
	}
	if d.embedOut != nil {
		d.embedOut.Destroy()
	}
	if d.onnxReady {
		ort.DestroyEnvironment()
		d.onnxReady = false
	}
}

// Configure replaces the active wake-word set and sensitivity. Sensitivity
// in [0,1], default 0.5; higher means lower threshold (more false
// positives), per the spec. Existing per-word sessions for words no
// longer configured are torn down; new ones are loaded from ModelDir.
func (d *Detector) Configure(words map[string]struct{}, sensitivity float32) error {
	if sensitivity < 0 {
		sensitivity = 0
	}
	if sensitivity > 1 {
		sensitivity = 1
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.threshold = 0.8 - 0.6*float64(sensitivity)

	keep := make(map[string]struct{}, len(words))
	for w := range words {
		keep[w] = struct{}{}
		if _, ok := d.words[w]; ok {
			continue
		}
		ws, err := d.loadWord(w)
		if err != nil {
			return fmt.Errorf("wakeword: loading model for %q: %w", w, err)
		}
		d.words[w] = ws
	}
	for w, ws := range d.words {
		if _, ok := keep[w]; !ok {
			ws.destroy()
			delete(d.words, w)
		}
	}

	d.melBuffer = d.melBuffer[:0]
	for i := range d.embedBuffer {
		d.embedBuffer[i] = 0
	}
	d.log.Info("wakeword: configured words=%v sensitivity=%.2f threshold=%.2f", keys(words), sensitivity, d.threshold)
	return nil
}

func (d *Detector) loadWord(word string) (*wordState, error) {
	path := d.cfg.ModelDir + "/" + word + ".onnx"
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, nEmbedFrames, embeddingDim))
	if err != nil {
		return nil, err
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		in.Destroy()
		return nil, err
	}
	wwIn, wwOut, err := ort.GetInputOutputInfo(path)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, err
	}
	sess, err := ort.NewAdvancedSession(path, []string{wwIn[0].Name}, []string{wwOut[0].Name},
		[]ort.Value{in}, []ort.Value{out}, nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, err
	}
	return &wordState{word: word, session: sess, in: in, out: out}, nil
}

// Pause temporarily stops detection (e.g. while the engine is speaking,
// so the wake detector doesn't react to the speaker output).
func (d *Detector) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume re-enables detection.
func (d *Detector) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
}

// Feed processes one engine-native (24 kHz) AudioFrame. It must not
// block: all work here is CPU-bound ONNX inference sized to complete well
// within a frame period, matching the "advisory, called from the
// processing task" contract in §4.8/§5.
func (d *Detector) Feed(frame *domain.AudioFrame) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.paused || !d.onnxReady || len(d.words) == 0 {
		return
	}

	chunk := d.resampler.Process(frame.Samples[:])
	if len(chunk) == 0 {
		return
	}

	for len(chunk) >= chunkSamples {
		d.processChunk(chunk[:chunkSamples])
		chunk = chunk[chunkSamples:]
	}
}

func (d *Detector) processChunk(chunk []float32) {
	inData := d.melIn.GetData()
	copy(inData, chunk)

	if err := d.melspec.Run(); err != nil {
		d.log.Error("wakeword: melspec run failed: %v", err)
		return
	}
	melData := d.melOut.GetData()
	for i := 0; i < nMelFrames*melBins && i < len(melData); i++ {
		d.melBuffer = append(d.melBuffer, melData[i]/10.0+2.0)
	}

	for len(d.melBuffer)/melBins >= melWindowSize {
		eData := d.embedIn.GetData()
		copy(eData, d.melBuffer[:melWindowSize*melBins])
		if err := d.embed.Run(); err != nil {
			d.log.Error("wakeword: embed run failed: %v", err)
			break
		}
		eOut := d.embedOut.GetData()
		copy(d.embedBuffer, d.embedBuffer[embeddingDim:])
		copy(d.embedBuffer[(nEmbedFrames-1)*embeddingDim:], eOut[:embeddingDim])

		n := copy(d.melBuffer, d.melBuffer[melStepSize*melBins:])
		d.melBuffer = d.melBuffer[:n]

		d.scoreAllWords()
	}
}

func (d *Detector) scoreAllWords() {
	now := time.Now()
	for _, ws := range d.words {
		wwData := ws.in.GetData()
		copy(wwData, d.embedBuffer)
		if err := ws.session.Run(); err != nil {
			d.log.Error("wakeword: scoring %q failed: %v", ws.word, err)
			continue
		}
		score := ws.out.GetData()[0]

		ws.scoreWindow[ws.scoreIdx%scoreWindowSize] = score
		ws.scoreIdx++

		var maxScore float32
		for _, s := range ws.scoreWindow {
			if s > maxScore {
				maxScore = s
			}
		}

		if float64(maxScore) >= d.threshold && now.Sub(ws.lastDetect) > d.cfg.Cooldown {
			ws.lastDetect = now
			for i := range ws.scoreWindow {
				ws.scoreWindow[i] = 0
			}
			d.log.Info("wakeword: detected %q (score=%.4f)", ws.word, maxScore)
			if d.OnDetect != nil {
				d.OnDetect(ws.word)
			}
		}
	}
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Start runs a self-contained malgo capture loop feeding Feed, for
// standalone operation independent of the Supervisor's own device stream
// and exact frame cadence. Run this in its own goroutine.
func (d *Detector) Start(ctx context.Context) error {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
	if err != nil {
		return err
	}
	defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = domain.EngineSampleRate
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1

	frames := make(chan domain.AudioFrame, 8)
	var pending []float32
	var seq uint64

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			n := len(raw) / 2
			for i := 0; i < n; i++ {
				s := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
				pending = append(pending, float32(s)/32768.0)
			}
			for len(pending) >= domain.FrameSize {
				var f domain.AudioFrame
				copy(f.Samples[:], pending[:domain.FrameSize])
				f.CaptureSeq = seq
				f.CaptureInstant = time.Now()
				seq++
				pending = pending[domain.FrameSize:]
				select {
				case frames <- f:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		return err
	}
	defer device.Uninit()
	if err := device.Start(); err != nil {
		return err
	}
	defer device.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-frames:
			d.Feed(&f)
		}
	}
}
