package excitement

import (
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/clipsieve/clipsieve/internal/media"
	"github.com/clipsieve/clipsieve/internal/types"
)

const (
	windowSize = 1024 // ~64ms at 16 kHz
	hopSize    = 512

	// baselineFloor keeps normalization defined on silence-only input.
	baselineFloor = 1e-4

	// peakGain maps "this many times the trailing baseline" to score 1.0.
	peakGain = 4.0
)

// Params tune how the two novelty signals become one excitement score.
type Params struct {
	EnergyWeight    float64
	FluxWeight      float64
	SmoothingFactor float64       // EMA alpha in (0,1]
	Baseline        time.Duration // trailing window for the adaptive baseline
}

// Analyze consumes the audio stream and produces the dense excitement curve:
// one sample per hop, timestamps strictly increasing, no gaps, scores in
// [0,1]. The final partial window is zero-padded rather than dropped.
func Analyze(r media.SampleSource, p Params) ([]types.ExcitementSample, error) {
	rate := r.SampleRate()
	hopDur := time.Duration(hopSize) * time.Second / time.Duration(rate)
	baselineHops := int(p.Baseline / hopDur)
	if baselineHops < 1 {
		baselineHops = 1
	}

	fft := fourier.NewFFT(windowSize)
	hann := hannWindow(windowSize)

	st := &state{
		fft:          fft,
		hann:         hann,
		baselineHops: baselineHops,
		params:       p,
	}

	var pending []float64
	var consumed int64 // samples fully advanced past
	var out []types.ExcitementSample

	emit := func(frame []float64) {
		at := time.Duration(consumed) * time.Second / time.Duration(rate)
		out = append(out, types.ExcitementSample{At: at, Score: st.score(frame)})
		consumed += hopSize
	}

	for {
		chunk, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		pending = append(pending, chunk.Samples...)
		for len(pending) >= windowSize {
			emit(pending[:windowSize])
			pending = pending[hopSize:]
		}
	}

	// Variable-length tail: zero-pad the remainder so the curve covers the
	// full duration.
	for len(pending) > 0 {
		frame := make([]float64, windowSize)
		copy(frame, pending)
		emit(frame)
		if len(pending) > hopSize {
			pending = pending[hopSize:]
		} else {
			pending = nil
		}
	}

	return out, nil
}

type state struct {
	fft          *fourier.FFT
	hann         []float64
	baselineHops int
	params       Params

	prevMag     []float64
	energyHist  []float64
	fluxHist    []float64
	smoothed    float64
	haveSmooth  bool
	windowedBuf []float64
}

// score computes the combined, baseline-normalized, smoothed score for one
// analysis frame.
func (s *state) score(frame []float64) float64 {
	energy := rms(frame)

	if s.windowedBuf == nil {
		s.windowedBuf = make([]float64, len(frame))
	}
	for i, v := range frame {
		s.windowedBuf[i] = v * s.hann[i]
	}
	coeffs := s.fft.Coefficients(nil, s.windowedBuf)
	mag := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag[i] = math.Hypot(real(c), imag(c))
	}

	flux := 0.0
	if s.prevMag != nil {
		for i := range mag {
			if d := mag[i] - s.prevMag[i]; d > 0 {
				flux += d
			}
		}
		flux /= float64(len(mag))
	}
	s.prevMag = mag

	energyNorm := normalize(energy, &s.energyHist, s.baselineHops)
	fluxNorm := normalize(flux, &s.fluxHist, s.baselineHops)

	wSum := s.params.EnergyWeight + s.params.FluxWeight
	combined := (s.params.EnergyWeight*energyNorm + s.params.FluxWeight*fluxNorm) / wSum
	combined = clamp01(combined)

	if !s.haveSmooth {
		s.smoothed = combined
		s.haveSmooth = true
	} else {
		a := s.params.SmoothingFactor
		s.smoothed = a*combined + (1-a)*s.smoothed
	}
	return s.smoothed
}

// normalize divides by the trailing moving average (with floor) so quiet
// recordings still produce relative peaks, then maps peakGain-times-baseline
// to 1.0. An empty history is seeded with the current value: the very first
// hop scores against itself rather than the bare floor, which would mark the
// start of any non-silent recording as a maximal peak.
func normalize(v float64, hist *[]float64, n int) float64 {
	if len(*hist) == 0 {
		*hist = append(*hist, v)
	}
	baseline := baselineFloor
	sum := 0.0
	for _, h := range *hist {
		sum += h
	}
	if avg := sum / float64(len(*hist)); avg > baseline {
		baseline = avg
	}

	*hist = append(*hist, v)
	if len(*hist) > n {
		*hist = (*hist)[len(*hist)-n:]
	}

	return clamp01(v / (baseline * peakGain))
}

func rms(frame []float64) float64 {
	sum := 0.0
	for _, v := range frame {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
