/*
NAME
  rtp.go

DESCRIPTION
  rtp.go provides Packet, a data structure encapsulating the fields of an
  RTP packet used to frame A2DP codec payloads (spec component C4), and
  Bytes/Parse to encode/decode the fixed 12-byte header plus CSRC list.

  See https://tools.ietf.org/html/rfc3550 for the RTP standard this is
  derived from.

AUTHOR
  btaudio contributors, adapted from protocol/rtp in the ausocean/av
  repository (Saxon A. Nelson-Milton <saxon@ausocean.org>).

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package rtp provides the RTP header framing used by the A2DP source and
// sink worker loops. Packet and its Bytes encoder are adapted from the
// teacher repository's protocol/rtp package; Parse is new, implementing the
// receive-side decoding spec section 4.4 requires but the teacher's
// transmit-only package didn't need.
package rtp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	Version      = 2  // RTP version this package is compatible with (spec section 3).
	PayloadType  = 96 // Dynamic audio payload type used throughout A2DP (spec section 3).
	HeaderLen    = 12 // Fixed RTP header length before CSRC entries.
	csrcEntryLen = 4
)

// Packet holds the fields of an RTP packet, consistent with RFC3550.
type Packet struct {
	Version    uint8
	Padding    bool
	Extension  bool
	Marker     bool
	PacketType uint8
	Sequence   uint16
	Timestamp  uint32
	SSRC       uint32
	CSRC       [][4]byte
	Payload    []byte
}

// Bytes encodes p into buf, reusing buf's backing array when it has enough
// capacity (the A2DP source loop keeps one fixed packet buffer and rewrites
// it every packet, matching the teacher's Encoder.pktSpace idiom).
func (p *Packet) Bytes(buf []byte) []byte {
	need := HeaderLen + csrcEntryLen*len(p.CSRC) + len(p.Payload)
	if cap(buf) < need {
		buf = make([]byte, need)
	}
	buf = buf[:need]

	buf[0] = p.Version<<6 | boolBit(p.Padding)<<5 | boolBit(p.Extension)<<4 | uint8(len(p.CSRC))
	buf[1] = boolBit(p.Marker)<<7 | p.PacketType
	binary.BigEndian.PutUint16(buf[2:4], p.Sequence)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)

	idx := HeaderLen
	for _, c := range p.CSRC {
		copy(buf[idx:], c[:])
		idx += csrcEntryLen
	}

	copy(buf[idx:], p.Payload)
	return buf
}

// Parse decodes the RTP header from buf (spec section 4.4 receive path):
// it validates the payload type, skips CSRC entries, and returns a Packet
// whose Payload aliases the remainder of buf.
func Parse(buf []byte) (Packet, error) {
	if len(buf) < HeaderLen {
		return Packet{}, errors.New("rtp: packet shorter than header")
	}

	cc := buf[0] & 0x0f
	var p Packet
	p.Version = buf[0] >> 6
	p.Padding = buf[0]&0x20 != 0
	p.Extension = buf[0]&0x10 != 0
	p.Marker = buf[1]&0x80 != 0
	p.PacketType = buf[1] & 0x7f
	p.Sequence = binary.BigEndian.Uint16(buf[2:4])
	p.Timestamp = binary.BigEndian.Uint32(buf[4:8])
	p.SSRC = binary.BigEndian.Uint32(buf[8:12])

	idx := HeaderLen + int(cc)*csrcEntryLen
	if len(buf) < idx {
		return Packet{}, errors.New("rtp: packet shorter than header plus csrc")
	}
	p.CSRC = make([][4]byte, cc)
	for i := 0; i < int(cc); i++ {
		copy(p.CSRC[i][:], buf[HeaderLen+i*csrcEntryLen:])
	}

	if p.PacketType != PayloadType {
		return p, errors.Errorf("rtp: unexpected payload type %d", p.PacketType)
	}

	p.Payload = buf[idx:]
	return p, nil
}

func boolBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
