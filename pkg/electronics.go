package sigproc

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"
	"gopkg.in/yaml.v3"
)

type ElecType int

const (
	ColdElectronics ElecType = iota
	WarmElectronics
)

var elecTypeStrings = []string{
	"cold",
	"warm",
}

func (e ElecType) String() string {
	if e < ColdElectronics || e > WarmElectronics {
		return "UNKNOWN"
	}
	return elecTypeStrings[e]
}

func ParseElecType(s string) (ElecType, error) {
	for i, v := range elecTypeStrings {
		if strings.EqualFold(v, s) {
			return ElecType(i), nil
		}
	}
	return 0, &ConfigError{Expr: s, Err: fmt.Errorf("invalid electronics type, want one of %v", elecTypeStrings)}
}

func (e ElecType) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

func (e *ElecType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseElecType(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

func (e *ElecType) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := ParseElecType(s)
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// DomainError reports electronics parameters for which no response can be
// built. Callers wanting "no electronics" skip the convolution instead.
type DomainError struct {
	Gain    float64
	Shaping float64
	Reason  string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("electronics response undefined for gain=%g shaping=%g: %s", e.Gain, e.Shaping, e.Reason)
}

// ElectronicsValue evaluates the electronics response at time t. The
// result is in voltage per unit charge when gain is.
func ElectronicsValue(t, gain, shaping float64, family ElecType) float64 {
	if t <= 0 {
		return 0
	}
	reltime := t / shaping
	if family == WarmElectronics {
		return warmElectronics(reltime, gain)
	}
	return coldElectronics(reltime, gain)
}

// coldElectronics peaks at 0.988*gain at reltime 1.174.
func coldElectronics(r, gain float64) float64 {
	e1 := math.Exp(-2.94809 * r)
	e2 := math.Exp(-2.82833 * r)
	e3 := math.Exp(-2.40318 * r)
	c1, s1 := math.Cos(1.19361*r), math.Sin(1.19361*r)
	c2, s2 := math.Cos(2.38722*r), math.Sin(2.38722*r)
	c3, s3 := math.Cos(2.5928*r), math.Sin(2.5928*r)
	c4, s4 := math.Cos(5.18561*r), math.Sin(5.18561*r)

	v := 4.31054*e1 -
		2.6202*e2*c1 -
		2.6202*e2*c1*c2 +
		0.464924*e3*c3 +
		0.464924*e3*c3*c4 +
		0.762456*e2*s1 -
		0.762456*e2*c2*s1 +
		0.762456*e2*c1*s2 -
		2.6202*e2*s1*s2 -
		0.327684*e3*s3 +
		0.327684*e3*c4*s3 -
		0.327684*e3*c3*s4 +
		0.464924*e3*s3*s4
	return 10 * gain * v
}

// warmElectronics is a CR-(RC)^4 semi-Gaussian with its peak, equal to
// gain, at reltime 1.
func warmElectronics(r, gain float64) float64 {
	r2 := r * r
	return gain * math.Exp(4-4*r) * r2 * r2
}

// Impulse samples the electronics response at t = i*period for i in [0, n).
func Impulse(gain, shaping float64, family ElecType, period float64, n int) ([]float64, error) {
	switch {
	case gain == 0:
		return nil, &DomainError{Gain: gain, Shaping: shaping, Reason: "gain is zero"}
	case !(shaping > 0):
		return nil, &DomainError{Gain: gain, Shaping: shaping, Reason: "shaping time must be positive"}
	case !(period > 0):
		return nil, &DomainError{Gain: gain, Shaping: shaping, Reason: fmt.Sprintf("sample period must be positive, got %g", period)}
	case n <= 0:
		return nil, &DomainError{Gain: gain, Shaping: shaping, Reason: fmt.Sprintf("need at least one sample, got %d", n)}
	}
	wave := make([]float64, n)
	for i := range wave {
		wave[i] = ElectronicsValue(float64(i)*period, gain, shaping, family)
	}
	return wave, nil
}

// Spectrum returns the full, unnormalized discrete Fourier transform of a
// real waveform.
func Spectrum(wave []float64) []complex128 {
	if len(wave) == 0 {
		return nil
	}
	seq := make([]complex128, len(wave))
	for i, v := range wave {
		seq[i] = complex(v, 0)
	}
	return fourier.NewCmplxFFT(len(wave)).Coefficients(nil, seq)
}

// Convolver performs the linear convolution of fixed-length rows with one
// kernel in the frequency domain. Rows and kernel are zero padded to twice
// their length so no wrap-around occurs, and the first n samples are kept,
// which keeps the result causally aligned with the input.
//
// A Convolver holds FFT work buffers and must not be shared between
// goroutines.
type Convolver struct {
	n      int
	scale  float64
	fft    *fourier.FFT
	kernel []complex128
	padded []float64
	coeffs []complex128
	out    []float64
}

// NewConvolver prepares the convolution with kernel. Every output sample is
// multiplied by scale, which is the sample period when a current is
// convolved with a per-charge response.
func NewConvolver(kernel []float64, scale float64) *Convolver {
	n := len(kernel)
	m := 2 * n
	c := &Convolver{
		n:      n,
		scale:  scale,
		fft:    fourier.NewFFT(m),
		padded: make([]float64, m),
		coeffs: make([]complex128, m/2+1),
		out:    make([]float64, m),
	}
	copy(c.padded, kernel)
	c.kernel = c.fft.Coefficients(nil, c.padded)
	return c
}

func (c *Convolver) Len() int { return c.n }

// Convolve returns a new slice holding the first Len() samples of the
// linear convolution of row with the kernel.
func (c *Convolver) Convolve(row []float64) ([]float64, error) {
	if len(row) != c.n {
		return nil, fmt.Errorf("row has %d samples, convolver expects %d", len(row), c.n)
	}
	for i := range c.padded {
		c.padded[i] = 0
	}
	copy(c.padded, row)
	c.fft.Coefficients(c.coeffs, c.padded)
	for i := range c.coeffs {
		c.coeffs[i] *= c.kernel[i]
	}
	c.fft.Sequence(c.out, c.coeffs)

	norm := c.scale / float64(len(c.padded))
	result := make([]float64, c.n)
	for i := range result {
		result[i] = c.out[i] * norm
	}
	return result, nil
}
