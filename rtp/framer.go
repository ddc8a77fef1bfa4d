/*
NAME
  framer.go

DESCRIPTION
  framer.go provides Framer, the sequence/timestamp state machine the A2DP
  source loop uses to build RTP packets (spec component C4 transmit path).
  It is adapted from protocol/rtp's Encoder in the teacher repository,
  replacing its fixed fps-based clock tick with ticks driven by the rate
  pacer's reported playback duration per packet (spec section 4.2/4.4).

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package rtp

import (
	"math/rand"
	"time"
)

// Framer holds the per-transport sequence number and RTP clock, and a
// reusable packet buffer the way the teacher's Encoder reuses pktSpace.
type Framer struct {
	ssrc     uint32
	seq      uint16
	clock    uint32 // RTP timestamp units (sampling-rate ticks).
	rate     uint
	pktSpace []byte
}

// NewFramer returns a Framer seeded with a random initial sequence number
// (spec section 8 scenario 3: "sequence number incremented by one from its
// initial random value") and SSRC, for the given sampling rate.
func NewFramer(rate uint) *Framer {
	return &Framer{
		ssrc: rand.Uint32(),
		seq:  uint16(rand.Uint32()),
		rate: rate,
	}
}

// Next builds the next RTP packet with the given payload and marker bit,
// advances the sequence number (wrapping at 16 bits) and returns the
// encoded bytes, reusing the Framer's internal buffer.
func (f *Framer) Next(payload []byte, marker bool) []byte {
	pkt := Packet{
		Version:    Version,
		PacketType: PayloadType,
		Marker:     marker,
		Sequence:   f.seq,
		Timestamp:  f.clock,
		SSRC:       f.ssrc,
		Payload:    payload,
	}
	f.seq++
	out := pkt.Bytes(f.pktSpace)
	f.pktSpace = out
	return out
}

// Advance moves the RTP clock forward by the given playback duration,
// converting to sampling-rate ticks. Called once per emitted packet with
// the duration returned by iosync.Sync.Advance, per spec section 4.4.
func (f *Framer) Advance(d time.Duration) {
	f.clock += uint32(d.Seconds() * float64(f.rate))
}

// SSRC returns the synchronisation source identifier this Framer uses.
func (f *Framer) SSRC() uint32 { return f.ssrc }

// Sequence returns the next sequence number that will be assigned.
func (f *Framer) Sequence() uint16 { return f.seq }
