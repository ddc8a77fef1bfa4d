/*
NAME
  msbc.go

DESCRIPTION
  msbc.go implements the mSBC framer (spec component C7): H2 synchronization
  header synthesis on encode, byte-level resync on decode, and PCM<->mSBC
  conversion for the wideband SCO voice path. It wraps codec/sbc with the
  fixed mSBC geometry (mono, 16kHz, 8 subbands, 15 blocks, bitpool 26,
  sync word 0xAD) rather than reimplementing the subband transform.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package msbc implements the mSBC frame format HFP uses for wideband
// voice over SCO (spec section 4.7): a 2-byte H2 synchronization header
// followed by a 57-byte SBC payload, for a fixed 59-byte frame.
package msbc

import (
	"encoding/binary"

	"github.com/kuikka/btaudio/codec/sbc"
)

const (
	H2HeaderLen   = 2
	PayloadLen    = 57
	FrameLen      = H2HeaderLen + PayloadLen // 59, spec section 4.7.
	PCMBlockBytes = 240                      // 120 samples at 16kHz mono.

	// SCOChunkLen is the SCO wire quantum the prebuffer threshold is
	// measured in (mirrors sco.scoChunk); it is not FrameLen, since the
	// encoder hands output to the SCO worker 24 bytes at a time rather
	// than one 59-byte mSBC frame at a time.
	SCOChunkLen = 24

	// PrebufferFrames is the number of SCOChunkLen-sized wire chunks held
	// back before the first BT write (spec section 4.7's
	// "first-frame-sent" latch).
	PrebufferFrames = 2

	syncWord = 0xAD
)

// h2Second cycles through the four H2 second-byte values keyed by a 2-bit
// sequence counter modulo 4 (spec section 4.7).
var h2Second = [4]byte{0x08, 0x38, 0xC8, 0xF8}

func config() sbc.Config {
	return sbc.Config{
		SampleRate: 16000,
		Channels:   1,
		Subbands:   8,
		Blocks:     15,
		Bitpool:    26,
		SyncByte:   syncWord,
	}
}

// Encoder buffers raw 16-bit PCM, emits 59-byte mSBC frames, and holds
// back a small prebuffer before the first frame is considered ready.
type Encoder struct {
	enc         *sbc.Encoder
	pcmBuf      []byte
	out         []byte
	seq         int
	prebuffered bool
}

// NewEncoder returns an mSBC Encoder.
func NewEncoder() (*Encoder, error) {
	enc, err := sbc.NewEncoder(config())
	if err != nil {
		return nil, err
	}
	return &Encoder{enc: enc}, nil
}

// Write appends little-endian 16-bit PCM bytes to the encoder's input
// buffer and encodes every complete 240-byte block available, prepending
// the H2 header and advancing the sequence counter modulo 4 (spec section
// 4.7's encode loop).
func (e *Encoder) Write(pcm []byte) {
	e.pcmBuf = append(e.pcmBuf, pcm...)
	for len(e.pcmBuf) >= PCMBlockBytes {
		block := e.pcmBuf[:PCMBlockBytes]
		samples := bytesToInt16(block)
		frame, err := e.enc.Encode(samples)
		if err == nil {
			e.out = append(e.out, 0x01, h2Second[e.seq%4])
			e.out = append(e.out, frame...)
			e.seq++
		}
		e.pcmBuf = append(e.pcmBuf[:0], e.pcmBuf[PCMBlockBytes:]...)
	}
}

// Ready reports whether the prebuffer threshold has been reached. Once
// latched it stays true for the life of the Encoder, matching the "first
// frame sent" one-shot gate spec section 4.7 describes. The threshold is
// PrebufferFrames SCO wire chunks, not mSBC frames: the SCO worker reads
// the encoder's output SCOChunkLen bytes at a time, so gating on FrameLen
// would hold back roughly 2.4x the intended prebuffer window.
func (e *Encoder) Ready() bool {
	if e.prebuffered {
		return true
	}
	if len(e.out) >= PrebufferFrames*SCOChunkLen {
		e.prebuffered = true
	}
	return e.prebuffered
}

// Read drains up to n bytes of encoded output. SCO transmits in fixed-size
// chunks (spec section 4.8's 24-byte quantum).
func (e *Encoder) Read(n int) []byte {
	if n > len(e.out) {
		n = len(e.out)
	}
	chunk := append([]byte(nil), e.out[:n]...)
	e.out = append(e.out[:0], e.out[n:]...)
	return chunk
}

// Buffered returns the number of encoded bytes waiting to be transmitted.
func (e *Encoder) Buffered() int { return len(e.out) }

// Decoder buffers raw SCO bytes and resyncs/decodes mSBC frames from them.
type Decoder struct {
	dec *sbc.Decoder
	buf []byte
}

// NewDecoder returns an mSBC Decoder.
func NewDecoder() *Decoder {
	d := sbc.NewDecoder()
	d.ExpectedSync = syncWord
	return &Decoder{dec: d}
}

// Write appends raw bytes received over SCO to the decoder's input buffer.
func (d *Decoder) Write(b []byte) { d.buf = append(d.buf, b...) }

// Decode implements spec section 4.7's decode-sync algorithm: while at
// least FrameLen bytes remain, check for an aligned H2 header (buf[0] ==
// 0x01 && buf[2] == 0xAD); on a hit, decode the 57-byte payload and advance
// past it, on a miss advance by one byte for byte-level resync. On a
// decode failure the entire buffered input is dropped, matching the spec's
// "drop the entire buffer" rule so a corrupt frame never wedges resync.
// Decode returns the concatenated decoded PCM bytes, little-endian 16-bit.
func (d *Decoder) Decode() []byte {
	var pcm []byte
	for len(d.buf) >= FrameLen {
		if d.buf[0] != 0x01 || d.buf[2] != syncWord {
			d.buf = d.buf[1:]
			continue
		}
		samples, consumed, err := d.dec.Decode(d.buf[2:])
		if err != nil {
			d.buf = d.buf[:0]
			return pcm
		}
		pcm = append(pcm, int16ToBytes(samples)...)
		d.buf = d.buf[2+consumed:]
	}
	return pcm
}

// Reset discards all buffered input, used when the caller detects a codec
// error upstream (spec's error table: "mSBC decode buffer is reset on
// codec error").
func (d *Decoder) Reset() { d.buf = d.buf[:0] }

// State is the dual-direction mSBC ring a SCO worker holds: an encoder for
// the speaker->BT direction and a decoder for the BT->microphone direction
// (spec section 3's "Sbc-state").
type State struct {
	Enc *Encoder
	Dec *Decoder
}

// NewState returns a State ready for both directions.
func NewState() (*State, error) {
	enc, err := NewEncoder()
	if err != nil {
		return nil, err
	}
	return &State{Enc: enc, Dec: NewDecoder()}, nil
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func int16ToBytes(s []int16) []byte {
	out := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}
