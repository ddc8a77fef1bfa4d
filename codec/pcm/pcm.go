/*
NAME
  pcm.go

DESCRIPTION
  pcm.go provides Buffer, the interleaved S16_LE PCM container the
  diagnostics recorder (diag.Recorder) and its optional filters operate
  on, plus Resample and StereoToMono for reshaping a captured stream
  before it is written out.

AUTHOR
  btaudio contributors, adapted from codec/pcm/pcm.go (ausocean/av).

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package pcm provides the PCM buffer shape this module's transports
// always carry: mono or stereo, little-endian 16-bit signed samples
// (transport.Pcm never negotiates a different sample format, unlike the
// ausocean/av teacher this package is adapted from, which had to carry
// S16_LE/S32_LE and arbitrary channel counts across its ALSA and video
// capture pipelines). Dropping that generality keeps Resample and
// StereoToMono a direct byte-level operation instead of a per-format
// switch.
package pcm

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// bytesPerSample is fixed: every Buffer in this module holds
// little-endian 16-bit signed samples.
const bytesPerSample = 2

// BufferFormat describes a Buffer's sample rate and channel count. Only
// mono (1) and stereo (2) are meaningful here, matching the two channel
// layouts A2DP and SCO ever negotiate.
type BufferFormat struct {
	Rate     uint
	Channels uint
}

// Buffer pairs raw interleaved S16_LE PCM data with its format.
type Buffer struct {
	Format BufferFormat
	Data   []byte
}

// DataSize returns the number of bytes period seconds of PCM at the
// given rate and channel count occupies.
func DataSize(rate, channels uint, period float64) int {
	return int(float64(channels) * float64(rate) * float64(bytesPerSample) * period)
}

// Resample downsamples c to rate Hz by averaging consecutive input
// samples, returning c unchanged if it is already at rate. c's rate must
// be an integer multiple of rate. If len(c.Data) is not a whole multiple
// of the decimation factor, the trailing remainder is dropped (e.g. an
// input of 480002 bytes downsampled 6:1 yields 80000 bytes of output).
func Resample(c Buffer, rate uint) (Buffer, error) {
	if c.Format.Rate == rate {
		return c, nil
	}
	if rate == 0 {
		return Buffer{}, errors.New("pcm: cannot resample to 0 Hz")
	}

	sampleLen := int(bytesPerSample * c.Format.Channels)
	if sampleLen == 0 {
		return Buffer{}, errors.New("pcm: buffer format has 0 channels")
	}
	inPcmLen := len(c.Data)

	rateGcd := gcd(rate, c.Format.Rate)
	ratioFrom := int(c.Format.Rate / rateGcd)
	ratioTo := int(rate / rateGcd)
	if ratioTo != 1 {
		return Buffer{}, errors.Errorf("pcm: unhandled from:to rate ratio %d:%d: 'to' must be 1", ratioFrom, ratioTo)
	}

	newLen := inPcmLen / ratioFrom
	resampled := make([]byte, 0, newLen)

	bAvg := make([]byte, sampleLen)
	for i := 0; i < newLen/sampleLen; i++ {
		var sum int
		for j := 0; j < ratioFrom; j++ {
			off := (i * ratioFrom * sampleLen) + (j * sampleLen)
			sum += int(int16(binary.LittleEndian.Uint16(c.Data[off : off+sampleLen])))
		}
		avg := sum / ratioFrom
		binary.LittleEndian.PutUint16(bAvg, uint16(int16(avg)))
		resampled = append(resampled, bAvg...)
	}

	return Buffer{
		Format: BufferFormat{Channels: c.Format.Channels, Rate: rate},
		Data:   resampled,
	}, nil
}

// StereoToMono returns mono PCM built from the left channel of stereo
// Buffer c. c already mono is returned unchanged.
func StereoToMono(c Buffer) (Buffer, error) {
	if c.Format.Channels == 1 {
		return c, nil
	}
	if c.Format.Channels != 2 {
		return Buffer{}, errors.Errorf("pcm: cannot derive mono from %d channels", c.Format.Channels)
	}

	const stereoSampleBytes = 2 * bytesPerSample
	recLength := len(c.Data)
	mono := make([]byte, 0, recLength/2)
	for i := 0; i+bytesPerSample <= recLength; i += stereoSampleBytes {
		mono = append(mono, c.Data[i:i+bytesPerSample]...)
	}

	return Buffer{
		Format: BufferFormat{Channels: 1, Rate: c.Format.Rate},
		Data:   mono,
	}, nil
}

// gcd returns the greatest common divisor of two positive integers.
func gcd(a, b uint) uint {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
