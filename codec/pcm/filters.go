/*
NAME
  filters.go

DESCRIPTION
  filters.go implements AudioFilter and its FIR/amplifier
  implementations, used by diag.Recorder to optionally condition a
  captured S16_LE PCM stream before it is written to a WAV file (e.g.
  stripping DC rumble a misbehaving Bluetooth peer injects into an SCO
  mic stream, or redacting a capture's content before archiving it).

AUTHOR
  btaudio contributors, adapted from codec/pcm/filters.go (ausocean/av).

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package pcm

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"github.com/pkg/errors"
)

// AudioFilter is applied to a Buffer's raw S16_LE data by diag.Recorder
// before encoding, e.g. to strip DC offset or isolate a frequency band
// from a diagnostic capture.
type AudioFilter interface {
	Apply(b Buffer) ([]byte, error)
}

// SelectiveFrequencyFilter is an FIR low-pass, high-pass, band-pass or
// band-stop filter built from a windowed-sinc design.
type SelectiveFrequencyFilter struct {
	coeffs     []float64
	cutoff     [2]float64
	sampleRate uint
	taps       int
	buffInfo   BufferFormat
}

// NewLowPass builds a low-pass filter with cutoff fc Hz and length taps,
// sized for the given capture format.
func NewLowPass(fc float64, info BufferFormat, taps int) (*SelectiveFrequencyFilter, error) {
	return newLoHiFilter(fc, info, taps, [2]float64{0, fc})
}

// NewHighPass builds a high-pass filter with cutoff fc Hz, useful for
// stripping DC rumble from a diagnostic capture before archiving it.
func NewHighPass(fc float64, info BufferFormat, taps int) (*SelectiveFrequencyFilter, error) {
	return newLoHiFilter(fc, info, taps, [2]float64{fc, 0})
}

// NewBandPass builds a band-pass filter passing [lowerHz, upperHz].
func NewBandPass(lowerHz, upperHz float64, info BufferFormat, taps int) (*SelectiveFrequencyFilter, error) {
	newFilter, lp, hp, err := newBandFilter([2]float64{lowerHz, upperHz}, info, taps)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: band-pass filter")
	}

	newFilter.coeffs, err = fastConvolve(hp.coeffs, lp.coeffs)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: convolve band-pass halves")
	}
	return newFilter, nil
}

// NewBandStop builds a band-stop (notch) filter rejecting [lowerHz, upperHz].
func NewBandStop(lowerHz, upperHz float64, info BufferFormat, taps int) (*SelectiveFrequencyFilter, error) {
	newFilter, lp, hp, err := newBandFilter([2]float64{upperHz, lowerHz}, info, taps)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: band-stop filter")
	}
	size := newFilter.taps + 1
	newFilter.coeffs = make([]float64, size)
	for i := range lp.coeffs {
		newFilter.coeffs[i] = lp.coeffs[i] + hp.coeffs[i]
	}
	return newFilter, nil
}

// Apply convolves b.Data with the filter's FIR coefficients.
func (filter *SelectiveFrequencyFilter) Apply(b Buffer) ([]byte, error) {
	return convolveFromBytes(b.Data, filter.coeffs)
}

// Amplifier scales every sample by a fixed factor, clipping to stay in
// range. A factor of 0 silences a capture entirely, useful for
// redacting a diagnostic recording's content while preserving its
// timing.
type Amplifier struct {
	factor float64
}

// NewAmplifier returns an Amplifier for the given factor (its absolute
// value is used, so a negative factor behaves like its positive twin).
func NewAmplifier(factor float64) *Amplifier {
	return &Amplifier{factor: math.Abs(factor)}
}

// Apply scales b.Data by the amplifier's factor, clipping to [-1, 1]
// before converting back to S16_LE.
func (amp *Amplifier) Apply(b Buffer) ([]byte, error) {
	inputAsFloat, err := bytesToFloats(b.Data)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: amplifier input")
	}

	floatOutput := make([]float64, len(inputAsFloat))
	for i := range inputAsFloat {
		v := inputAsFloat[i] * amp.factor
		switch {
		case v > 1:
			v = 1
		case v < -1:
			v = -1
		}
		floatOutput[i] = v
	}
	outBytes, err := floatsToBytes(floatOutput)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: amplifier output")
	}
	return outBytes, nil
}

// newLoHiFilter builds a windowed-sinc low-pass or high-pass filter,
// selected by which half of cutoff is zero.
func newLoHiFilter(fc float64, info BufferFormat, taps int, cutoff [2]float64) (*SelectiveFrequencyFilter, error) {
	if fc <= 0 || fc >= float64(info.Rate)/2 {
		return nil, errors.New("pcm: cutoff frequency out of bounds")
	}
	if taps <= 0 {
		return nil, errors.New("pcm: filter length must be > 0")
	}

	var fd, factor1, factor2 float64
	switch {
	case cutoff[0] == 0: // Low-pass: cutoff[0] = 0, cutoff[1] = fc.
		fd = cutoff[1] / float64(info.Rate)
		factor1 = 1
		factor2 = 2 * fd
	case cutoff[1] == 0: // High-pass: cutoff[0] = fc, cutoff[1] = 0.
		fd = cutoff[0] / float64(info.Rate)
		factor1 = -1
		factor2 = 1 - 2*fd
	default:
		return nil, errors.New("pcm: newLoHiFilter cannot build a band filter")
	}

	newFilter := SelectiveFrequencyFilter{cutoff: cutoff, sampleRate: info.Rate, taps: taps, buffInfo: info}
	size := newFilter.taps + 1
	newFilter.coeffs = make([]float64, size)
	b := 2 * math.Pi * fd
	winData := window.FlatTop(size)
	for n := 0; n < newFilter.taps/2; n++ {
		c := float64(n) - float64(newFilter.taps)/2
		y := math.Sin(c*b) / (math.Pi * c)
		newFilter.coeffs[n] = factor1 * y * winData[n]
		newFilter.coeffs[size-1-n] = newFilter.coeffs[n]
	}
	newFilter.coeffs[newFilter.taps/2] = factor2 * winData[newFilter.taps/2]

	return &newFilter, nil
}

// newBandFilter builds the low-pass/high-pass halves a band-pass or
// band-stop filter convolves or sums together.
func newBandFilter(cutoff [2]float64, info BufferFormat, taps int) (new, lp, hp *SelectiveFrequencyFilter, err error) {
	if cutoff[0] <= 0 || cutoff[0] >= float64(info.Rate)/2 {
		return nil, nil, nil, errors.New("pcm: cutoff frequencies out of bounds")
	}
	if cutoff[1] <= 0 || cutoff[1] >= float64(info.Rate)/2 {
		return nil, nil, nil, errors.New("pcm: cutoff frequencies out of bounds")
	}
	if taps <= 0 {
		return nil, nil, nil, errors.New("pcm: filter length must be > 0")
	}

	newFilter := SelectiveFrequencyFilter{cutoff: cutoff, sampleRate: info.Rate, taps: taps, buffInfo: info}
	hp, err = NewHighPass(newFilter.cutoff[0], newFilter.buffInfo, newFilter.taps)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "pcm: band filter high-pass half")
	}
	lp, err = NewLowPass(newFilter.cutoff[1], newFilter.buffInfo, newFilter.taps)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "pcm: band filter low-pass half")
	}
	return &newFilter, hp, lp, nil
}

// convolveFromBytes converts b to floats, convolves with filter, and
// converts the result back to S16_LE bytes.
func convolveFromBytes(b []byte, filter []float64) ([]byte, error) {
	bufAsFloats, err := bytesToFloats(b)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: convert input to floats")
	}
	convolution, err := fastConvolve(bufAsFloats, filter)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: fast convolve")
	}
	outBytes, err := floatsToBytes(convolution)
	if err != nil {
		return nil, errors.Wrap(err, "pcm: convert convolution to bytes")
	}
	return outBytes, nil
}

// bytesToFloats unpacks little-endian S16 samples into floats in [-1, 1].
func bytesToFloats(b []byte) ([]float64, error) {
	if len(b) == 0 {
		return nil, errors.New("pcm: no audio to convert to floats")
	}
	if len(b)%bytesPerSample != 0 {
		return nil, errors.New("pcm: uneven number of bytes (not a whole number of samples)")
	}

	out := make([]float64, len(b)/bytesPerSample)
	var sample int16
	r := bytes.NewReader(b)
	for i := range out {
		if err := binary.Read(r, binary.LittleEndian, &sample); err != nil {
			return nil, errors.Wrap(err, "pcm: read sample")
		}
		out[i] = float64(sample) / (math.MaxInt16 + 1)
	}
	return out, nil
}

// floatsToBytes packs floats in [-1, 1] into little-endian S16 bytes.
func floatsToBytes(f []float64) ([]byte, error) {
	buf := new(bytes.Buffer)
	for _, v := range f {
		if err := binary.Write(buf, binary.LittleEndian, int16(v*math.MaxInt16)); err != nil {
			return nil, errors.Wrap(err, "pcm: write sample")
		}
	}
	return buf.Bytes(), nil
}

// fastConvolve computes the linear convolution of x and h via zero-padded
// FFT multiplication, O(n log n) instead of a direct O(n*m) sum.
func fastConvolve(x, h []float64) ([]float64, error) {
	if len(x) == 0 || len(h) == 0 {
		return nil, errors.New("pcm: convolution requires non-empty inputs")
	}

	convLen := len(x) + len(h) - 1
	padLen := int(math.Pow(2, math.Ceil(math.Log2(float64(convLen)))))

	xPadded := make([]float64, padLen)
	copy(xPadded, x)
	hPadded := make([]float64, padLen)
	copy(hPadded, h)

	xFFT, hFFT := fft.FFTReal(xPadded), fft.FFTReal(hPadded)

	yFFT := make([]complex128, padLen)
	for i := range xFFT {
		yFFT[i] = xFFT[i] * hFFT[i]
	}

	iy := fft.IFFT(yFFT)
	y := make([]float64, padLen)
	for i := range iy {
		y[i] = real(iy[i])
	}

	return y[:convLen], nil
}
