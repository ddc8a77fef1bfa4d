/*
NAME
  volume.go

DESCRIPTION
  volume.go implements the A2DP per-channel volume scaler (spec component
  C3): a dB-mapped gain or mute applied in place to a 16-bit interleaved
  PCM buffer.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package volume scales interleaved 16-bit PCM samples by a per-channel
// gain derived from a 7-bit A2DP volume value, following the same
// sample<->float conversion idiom codec/pcm's Amplifier filter uses in the
// teacher repository, but applied channel-wise and in place rather than via
// a single wholesale factor.
package volume

import (
	"encoding/binary"
	"math"
)

// Scaler holds the per-channel gain state derived from Transport volume and
// mute fields. Muted and Gain are recomputed by Set whenever the control
// plane's volume fields change.
type Scaler struct {
	Gain  [2]float64
	Muted [2]bool
}

// Set derives channel ch's playback gain from a 7-bit A2DP volume value and
// mute flag, per spec section 4.3: scale = 10^((-64 + 64*vol/127)/20) unless
// muted, in which case scale = 0.
func (s *Scaler) Set(ch int, vol uint8, muted bool) {
	s.Muted[ch] = muted
	if muted {
		s.Gain[ch] = 0
		return
	}
	db := -64 + 64*float64(vol)/127
	s.Gain[ch] = math.Pow(10, db/20)
}

// Apply scales buf in place. channels must be 1 (mono, channel 1 only) or 2
// (stereo interleaved, channel 1 on even sample indices, channel 2 on odd).
// Output is clamped to the 16-bit signed range.
func (s *Scaler) Apply(buf []byte, channels int) {
	nSamples := len(buf) / 2
	for i := 0; i < nSamples; i++ {
		ch := 0
		if channels == 2 && i%2 == 1 {
			ch = 1
		}
		gain := s.Gain[ch]
		if gain == 1 {
			continue
		}
		off := i * 2
		sample := int16(binary.LittleEndian.Uint16(buf[off : off+2]))
		scaled := float64(sample) * gain
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(clamp16(scaled)))
	}
}

// clamp16 clamps a float64 sample value to the int16 range before the final
// narrowing conversion, preventing wraparound distortion on gain > 1 (mute
// reversal, future headroom) cases.
func clamp16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
