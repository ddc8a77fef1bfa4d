/*
NAME
  aaclatm_test.go

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package aaclatm

import (
	"encoding/binary"
	"testing"
)

// passthroughCodec is a test double standing in for a real AAC encoder: it
// "encodes" by packing PCM samples as big-endian bytes and "decodes" by
// unpacking them, letting these tests exercise LATM muxing and RTP
// fragmentation independent of any real codec implementation.
type passthroughCodec struct {
	frameSize int
}

func (p *passthroughCodec) FrameSize() int { return p.frameSize }

func (p *passthroughCodec) EncodeFrame(pcm []int16) ([]byte, error) {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.BigEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

func (p *passthroughCodec) DecodeFrame(aac []byte) ([]int16, error) {
	out := make([]int16, len(aac)/2)
	for i := range out {
		out[i] = int16(binary.BigEndian.Uint16(aac[i*2:]))
	}
	return out, nil
}

func TestMuxDemuxRoundTrip(t *testing.T) {
	cfg := Config{SampleRate: 44100, Channels: 2, ObjectTypeMask: ObjTypeMPEG4LC}
	codec := &passthroughCodec{frameSize: 1024}
	enc := NewEncoder(cfg, codec)
	dec := NewDecoder(codec)

	pcm := make([]int16, 1024*2)
	for i := range pcm {
		pcm[i] = int16(i % 100)
	}

	frame, err := enc.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, consumed, err := dec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(frame) {
		t.Errorf("consumed %d, want %d", consumed, len(frame))
	}
	if len(got) != len(pcm) {
		t.Fatalf("got %d samples, want %d", len(got), len(pcm))
	}
	for i, want := range pcm {
		if got[i] != want {
			t.Fatalf("sample %d: got %d, want %d", i, got[i], want)
		}
	}
}

func TestMuxLongPayloadLengthPrefix(t *testing.T) {
	cfg := Config{SampleRate: 48000, Channels: 1, ObjectTypeMask: ObjTypeMPEG4LC}
	// A frame size big enough that the encoded payload exceeds 255 bytes,
	// forcing the continuation-byte length prefix to span more than one
	// byte.
	codec := &passthroughCodec{frameSize: 200}
	enc := NewEncoder(cfg, codec)
	dec := NewDecoder(codec)

	pcm := make([]int16, 200)
	frame, err := enc.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame[2] != 0xFF {
		t.Fatalf("expected first length byte to be a continuation byte, got 0x%02x", frame[2])
	}

	_, consumed, err := dec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(frame) {
		t.Errorf("consumed %d, want %d", consumed, len(frame))
	}
}

// TestFragmentationScenario covers spec section 8 scenario 5: an oversized
// AAC frame fragments into multiple RTP payload-sized chunks, MARK=1 on
// every fragment but the last, and a Reassembler recombines them.
func TestFragmentationScenario(t *testing.T) {
	frame := make([]byte, 1100)
	for i := range frame {
		frame[i] = byte(i)
	}

	const rtpHeaderLen = 12
	const mtu = 600
	maxChunk := mtu - rtpHeaderLen

	chunks := Fragment(frame, maxChunk)
	if len(chunks) < 2 {
		t.Fatalf("expected fragmentation into multiple chunks, got %d", len(chunks))
	}

	var reasm Reassembler
	var got []byte
	for i, c := range chunks {
		marker := i != len(chunks)-1
		out, ready := reasm.Add(c, marker)
		if ready {
			got = out
		}
	}
	if got == nil {
		t.Fatal("reassembler never signalled a complete frame")
	}
	if len(got) != len(frame) {
		t.Fatalf("reassembled length %d, want %d", len(got), len(frame))
	}
	for i := range frame {
		if got[i] != frame[i] {
			t.Fatalf("byte %d mismatch: got %d, want %d", i, got[i], frame[i])
		}
	}
}
