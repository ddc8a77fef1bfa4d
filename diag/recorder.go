/*
NAME
  recorder.go

DESCRIPTION
  recorder.go provides Recorder, a best-effort WAV capture sidecar for
  troubleshooting a running transport's PCM stream, adapted from
  codec/pcm's Buffer/BufferFormat/AudioFilter types (codec/pcm/pcm.go,
  codec/pcm/filters.go).

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package diag provides operator troubleshooting helpers that sit outside
// the real-time a2dp/sco/hfp workers: a Recorder taps a transport's PCM
// stream and writes it to a WAV file, the same role bluez-alsa's own
// recording utilities play alongside its daemon.
package diag

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	"github.com/kuikka/btaudio/codec/pcm"
)

// bitDepth is fixed because every transport in this module carries S16_LE
// PCM on its pipes (transport.Pcm never negotiates sample format).
const bitDepth = 16

// Recorder captures raw PCM frames to a WAV file, optionally passing each
// frame through a codec/pcm.AudioFilter first.
type Recorder struct {
	enc    *wav.Encoder
	format pcm.BufferFormat
	filter pcm.AudioFilter
}

// NewRecorder opens a WAV encoder over w for PCM matching format. filter,
// if non-nil, is applied to every frame before it is encoded (e.g. a
// pcm.NewHighPass filter to strip DC rumble a misbehaving peer injects).
func NewRecorder(w io.WriteSeeker, format pcm.BufferFormat, filter pcm.AudioFilter) (*Recorder, error) {
	if format.Channels == 0 || format.Rate == 0 {
		return nil, errors.New("diag: recorder requires a non-zero rate and channel count")
	}
	enc := wav.NewEncoder(w, int(format.Rate), bitDepth, int(format.Channels), 1)
	return &Recorder{enc: enc, format: format, filter: filter}, nil
}

// Write encodes one frame of raw little-endian S16 PCM bytes into the WAV
// file. len(b) must be a whole number of samples.
func (r *Recorder) Write(b []byte) error {
	if len(b)%2 != 0 {
		return errors.New("diag: frame is not a whole number of S16 samples")
	}
	if len(b) == 0 {
		return nil
	}

	buf := pcm.Buffer{Format: r.format, Data: b}
	if r.filter != nil {
		filtered, err := r.filter.Apply(buf)
		if err != nil {
			return errors.Wrap(err, "diag: apply filter")
		}
		buf.Data = filtered
	}

	samples := make([]int, len(buf.Data)/2)
	for i := range samples {
		samples[i] = int(int16(uint16(buf.Data[i*2]) | uint16(buf.Data[i*2+1])<<8))
	}

	ib := &audio.IntBuffer{
		Format:         &audio.Format{SampleRate: int(r.format.Rate), NumChannels: int(r.format.Channels)},
		Data:           samples,
		SourceBitDepth: bitDepth,
	}
	return r.enc.Write(ib)
}

// Close flushes the WAV header and closes the underlying encoder. The
// caller remains responsible for closing the underlying writer.
func (r *Recorder) Close() error {
	return r.enc.Close()
}
