/*
NAME
  iosync.go

DESCRIPTION
  iosync.go implements the rate pacer (spec component C2): it keeps
  Bluetooth transmission within 10ms of the audio-time represented by PCM
  frames already read, sleeping as needed, and reports the playback
  duration of a batch of frames so callers can advance an RTP timestamp.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package iosync provides Sync, the pacing clock shared by the A2DP source
// and SCO worker loops. It mirrors the "reference timestamp plus frame
// counter" idiom used by protocol/rtp's Encoder in the teacher repository,
// generalized to report elapsed playback duration instead of only ticking
// an RTP clock.
package iosync

import (
	"sync"
	"time"
)

// leadFraction is how far ahead of audio-time transmission is allowed to
// run before the pacer starts sleeping (spec section 4.2: 10ms).
const leadFraction = 100 // 1/100 of sampling rate is the lead in frames.

// Sync is the pacing state for one worker. frames == 0 means "not yet
// started"; the next successful PCM read initializes ts0 (spec section 3).
type Sync struct {
	mu     sync.Mutex
	ts0    time.Time
	frames uint32
	rate   uint
}

// New returns a Sync for the given sampling rate in Hz.
func New(rate uint) *Sync {
	return &Sync{rate: rate}
}

// Reset clears the frame counter so the pacer re-anchors on the next read,
// matching the "io-sync.frames is reset to 0" invariant from spec section
// 4.2. Used on event-driven resets such as a PCM reopen.
func (s *Sync) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = 0
	s.ts0 = time.Time{}
}

// Started reports whether the first nonzero PCM read has been observed.
func (s *Sync) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames != 0
}

// Anchor sets ts0 if this is the first call since Reset, implementing "ts0
// is set on the first nonzero PCM read, not at worker start."
func (s *Sync) Anchor(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == 0 && s.ts0.IsZero() {
		s.ts0 = now
	}
}

// Advance implements time-sync(io-sync, frames) from spec section 4.2: it
// folds frames into the cumulative counter, sleeps to keep transmission no
// more than leadFraction ahead of audio time, and returns the playback
// duration the frames represent, in microseconds, for advancing an RTP
// timestamp.
func (s *Sync) Advance(frames uint32) time.Duration {
	s.mu.Lock()
	s.frames += frames
	total := s.frames
	ts0 := s.ts0
	rate := s.rate
	s.mu.Unlock()

	if ts0.IsZero() || rate == 0 {
		return framesDuration(frames, rate)
	}

	lead := rate / leadFraction
	var targetFrames uint32
	if total > uint32(lead) {
		targetFrames = total - uint32(lead)
	}
	target := framesDuration(targetFrames, rate)
	elapsed := time.Since(ts0)

	if target > elapsed {
		time.Sleep(target - elapsed)
	}

	return framesDuration(frames, rate)
}

// framesDuration converts a frame count at the given sampling rate into a
// time.Duration, matching spec section 4.2's microsecond formula
// (1_000_000 * sec + 1_000_000/rate * remainder) at nanosecond precision.
func framesDuration(frames uint32, rate uint) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
