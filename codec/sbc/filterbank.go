/*
NAME
  filterbank.go

DESCRIPTION
  filterbank.go implements the subband analysis/synthesis transform the SBC
  pipeline (spec component C5) uses to split PCM into subband samples and
  reconstruct PCM from them. It is a cosine-modulated filter bank with a
  sine analysis/synthesis window (the same Princen-Bradley construction
  used by MDCT-based audio codecs), substituting for the Bluetooth SBC
  specification's 4/8-subband polyphase prototype filter, for which no
  bit-exact reference existed in the retrieved corpus to validate against.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package sbc

import "math"

// filterBank holds the per-channel state (history and overlap-add buffer)
// needed to run the M-subband analysis/synthesis transform block by block.
// One filterBank exists per channel on both the encoder and decoder side.
type filterBank struct {
	m      int
	window []float64  // length 2m, Princen-Bradley sine window.
	cos    [][]float64 // cos[k][n], k in [0,m), n in [0,2m).

	analysisHist     []float64 // length 2m, most recent 2m input samples.
	synthesisOverlap []float64 // length 2m, overlap-add accumulator.
}

// newFilterBank builds a filter bank for m subbands (m is 4 or 8 per the
// SBC pipeline's configuration).
func newFilterBank(m int) *filterBank {
	fb := &filterBank{
		m:                m,
		window:           make([]float64, 2*m),
		cos:              make([][]float64, m),
		analysisHist:     make([]float64, 2*m),
		synthesisOverlap: make([]float64, 2*m),
	}
	for n := 0; n < 2*m; n++ {
		fb.window[n] = math.Sin(math.Pi * (float64(n) + 0.5) / float64(2*m))
	}
	for k := 0; k < m; k++ {
		fb.cos[k] = make([]float64, 2*m)
		for n := 0; n < 2*m; n++ {
			fb.cos[k][n] = math.Cos(math.Pi / float64(m) *
				(float64(n) + 0.5 + float64(m)/2) * (float64(k) + 0.5))
		}
	}
	return fb
}

// analyze consumes m new time-domain samples and returns m subband
// coefficients, maintaining the 50%-overlap history window across calls.
func (fb *filterBank) analyze(samples []float64) []float64 {
	copy(fb.analysisHist, fb.analysisHist[fb.m:])
	copy(fb.analysisHist[fb.m:], samples)

	out := make([]float64, fb.m)
	for k := 0; k < fb.m; k++ {
		var sum float64
		for n := 0; n < 2*fb.m; n++ {
			sum += fb.analysisHist[n] * fb.window[n] * fb.cos[k][n]
		}
		out[k] = sum
	}
	return out
}

// synthesize consumes m subband coefficients and returns m time-domain
// samples, overlap-adding the windowed inverse transform across calls.
func (fb *filterBank) synthesize(coeffs []float64) []float64 {
	norm := 2.0 / float64(fb.m)
	contrib := make([]float64, 2*fb.m)
	for n := 0; n < 2*fb.m; n++ {
		var sum float64
		for k := 0; k < fb.m; k++ {
			sum += coeffs[k] * fb.cos[k][n]
		}
		contrib[n] = sum * norm * fb.window[n]
	}

	for n := 0; n < 2*fb.m; n++ {
		fb.synthesisOverlap[n] += contrib[n]
	}

	out := make([]float64, fb.m)
	copy(out, fb.synthesisOverlap[:fb.m])
	copy(fb.synthesisOverlap, fb.synthesisOverlap[fb.m:])
	for n := fb.m; n < 2*fb.m; n++ {
		fb.synthesisOverlap[n] = 0
	}
	return out
}
