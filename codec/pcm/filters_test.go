/*
NAME
  filters_test.go

AUTHOR
  btaudio contributors, adapted from codec/pcm/filters_test.go (ausocean/av).

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package pcm

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/mjibson/go-dsp/fft"
)

const (
	sampleRate   = 44100
	filterLength = 500
	freqTest     = 1000
)

// TestLowPass checks that frequencies above the cutoff are attenuated.
func TestLowPass(t *testing.T) {
	genAudio, err := generate()
	if err != nil {
		t.Fatal(err)
	}
	buf := Buffer{Data: genAudio, Format: BufferFormat{Rate: sampleRate, Channels: 1}}

	const fc = 4500.0
	lp, err := NewLowPass(fc, buf.Format, filterLength)
	if err != nil {
		t.Fatal(err)
	}

	filteredAudio, err := lp.Apply(buf)
	if err != nil {
		t.Fatal(err)
	}

	filteredFloats, err := bytesToFloats(filteredAudio)
	if err != nil {
		t.Fatal(err)
	}
	filteredFFT := fft.FFTReal(filteredFloats)

	for i := int(fc); i < sampleRate/2; i++ {
		mag := math.Pow(cmplx.Abs(filteredFFT[i]), 2)
		if mag > freqTest {
			t.Error("low-pass filter failed to attenuate above cutoff")
			break
		}
	}
}

// TestHighPass checks that frequencies below the cutoff are attenuated,
// the property a DC-rumble-stripping capture filter relies on.
func TestHighPass(t *testing.T) {
	genAudio, err := generate()
	if err != nil {
		t.Fatal(err)
	}
	buf := Buffer{Data: genAudio, Format: BufferFormat{Rate: sampleRate, Channels: 1}}

	const fc = 4500.0
	hp, err := NewHighPass(fc, buf.Format, filterLength)
	if err != nil {
		t.Fatal(err)
	}

	filteredAudio, err := hp.Apply(buf)
	if err != nil {
		t.Fatal(err)
	}

	filteredFloats, err := bytesToFloats(filteredAudio)
	if err != nil {
		t.Fatal(err)
	}
	filteredFFT := fft.FFTReal(filteredFloats)

	for i := 0; i < int(fc); i++ {
		mag := math.Pow(cmplx.Abs(filteredFFT[i]), 2)
		if mag > freqTest {
			t.Error("high-pass filter failed to attenuate below cutoff", i)
		}
	}
}

func TestBandPass(t *testing.T) {
	genAudio, err := generate()
	if err != nil {
		t.Fatal(err)
	}
	buf := Buffer{Data: genAudio, Format: BufferFormat{Rate: sampleRate, Channels: 1}}

	const lowerHz, upperHz = 4500.0, 9500.0
	bp, err := NewBandPass(lowerHz, upperHz, buf.Format, filterLength)
	if err != nil {
		t.Fatal(err)
	}

	filteredAudio, err := bp.Apply(buf)
	if err != nil {
		t.Fatal(err)
	}

	filteredFloats, err := bytesToFloats(filteredAudio)
	if err != nil {
		t.Fatal(err)
	}
	filteredFFT := fft.FFTReal(filteredFloats)

	for i := 0; i < int(lowerHz); i++ {
		mag := math.Pow(cmplx.Abs(filteredFFT[i]), 2)
		if mag > freqTest {
			t.Error("band-pass filter failed to attenuate below lower cutoff", i)
		}
	}
	for i := int(upperHz); i < sampleRate/2; i++ {
		mag := math.Pow(cmplx.Abs(filteredFFT[i]), 2)
		if mag > freqTest {
			t.Error("band-pass filter failed to attenuate above upper cutoff", i)
		}
	}
}

func TestBandStop(t *testing.T) {
	genAudio, err := generate()
	if err != nil {
		t.Fatal(err)
	}
	buf := Buffer{Data: genAudio, Format: BufferFormat{Rate: sampleRate, Channels: 1}}

	const lowerHz, upperHz = 4500.0, 9500.0
	bs, err := NewBandStop(lowerHz, upperHz, buf.Format, filterLength)
	if err != nil {
		t.Fatal(err)
	}

	filteredAudio, err := bs.Apply(buf)
	if err != nil {
		t.Fatal(err)
	}

	filteredFloats, err := bytesToFloats(filteredAudio)
	if err != nil {
		t.Fatal(err)
	}
	filteredFFT := fft.FFTReal(filteredFloats)

	for i := int(lowerHz); i < int(upperHz); i++ {
		mag := math.Pow(cmplx.Abs(filteredFFT[i]), 2)
		if mag > freqTest {
			t.Error("band-stop filter failed to attenuate inside the stop band", i)
		}
	}
}

// TestAmplifier checks that scaling by factor roughly scales the peak
// sample value by the same factor, short of clipping.
func TestAmplifier(t *testing.T) {
	const fc = 1000.0
	lowSine := sine(fc, sampleRate, sampleRate/10)
	buf := Buffer{Data: lowSine, Format: BufferFormat{Rate: sampleRate, Channels: 1}}

	const factor = 3.0
	amp := NewAmplifier(factor)

	filteredAudio, err := amp.Apply(buf)
	if err != nil {
		t.Fatal(err)
	}

	dataFloats, err := bytesToFloats(buf.Data)
	if err != nil {
		t.Fatal(err)
	}
	preMax := maxAbs(dataFloats)
	filteredFloats, err := bytesToFloats(filteredAudio)
	if err != nil {
		t.Fatal(err)
	}
	postMax := maxAbs(filteredFloats)

	if preMax*factor > 1 && postMax > 0.99 {
		return // Clipped, as expected.
	}
	if ratio := postMax / preMax; ratio > 1.01*factor || ratio < 0.99*factor {
		t.Errorf("amplifier failed to scale by %v, got ratio %v", factor, ratio)
	}
}

// TestAmplifierZeroSilences checks that an Amplifier used to redact a
// diagnostic capture's content (factor 0) zeroes every sample.
func TestAmplifierZeroSilences(t *testing.T) {
	buf := Buffer{Data: sine(1000, sampleRate, 256), Format: BufferFormat{Rate: sampleRate, Channels: 1}}
	amp := NewAmplifier(0)
	filtered, err := amp.Apply(buf)
	if err != nil {
		t.Fatal(err)
	}
	floats, err := bytesToFloats(filtered)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range floats {
		if v != 0 {
			t.Fatalf("sample %d = %v, want 0 after zero-factor amplifier", i, v)
		}
	}
}

// generate returns one second of S16_LE PCM summing evenly spaced
// sinusoids from 1kHz to 20kHz, used to exercise the filters' frequency
// response across the audible band.
func generate() ([]byte, error) {
	t := make([]float64, sampleRate)
	s := make([]float64, sampleRate)
	const (
		deltaFreq = 1000
		maxFreq   = 21000
		amplitude = float64(deltaFreq) / float64(maxFreq-deltaFreq)
	)
	for n := 0; n < sampleRate; n++ {
		t[n] = float64(n) / float64(sampleRate)
		for f := deltaFreq; f < maxFreq; f += deltaFreq {
			s[n] += amplitude * math.Sin(float64(f)*2*math.Pi*t[n])
		}
	}
	return floatsToBytes(s)
}

// maxAbs returns the largest-magnitude value in a.
func maxAbs(a []float64) float64 {
	var m float64
	for _, v := range a {
		if av := math.Abs(v); av > m {
			m = av
		}
	}
	return m
}
