/*
NAME
  rtp_test.go

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package rtp

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBytesParseRoundTrip(t *testing.T) {
	p := Packet{
		Version:    Version,
		Marker:     true,
		PacketType: PayloadType,
		Sequence:   1234,
		Timestamp:  99999,
		SSRC:       0xdeadbeef,
		Payload:    []byte{0x01, 0x02, 0x03},
	}
	buf := p.Bytes(nil)
	if len(buf) != HeaderLen+len(p.Payload) {
		t.Fatalf("unexpected encoded length: got %d", len(buf))
	}

	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	// CSRC is nil on the original but Parse returns an empty non-nil slice;
	// normalise before comparing.
	got.CSRC = nil
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsWrongPayloadType(t *testing.T) {
	p := Packet{Version: Version, PacketType: 97, Payload: []byte{0xaa}}
	buf := p.Bytes(nil)
	_, err := Parse(buf)
	if err == nil {
		t.Fatal("expected error for unexpected payload type")
	}
}

func TestParseSkipsCSRC(t *testing.T) {
	p := Packet{
		Version:    Version,
		PacketType: PayloadType,
		CSRC:       [][4]byte{{1, 2, 3, 4}, {5, 6, 7, 8}},
		Payload:    []byte{0xff},
	}
	buf := p.Bytes(nil)
	got, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(got.Payload) != 1 || got.Payload[0] != 0xff {
		t.Errorf("expected payload after CSRC entries, got %v", got.Payload)
	}
}

func TestFramerSequenceWraps(t *testing.T) {
	f := NewFramer(44100)
	f.seq = 0xfffe
	f.Next(nil, false)
	if f.seq != 0xffff {
		t.Fatalf("expected 0xffff, got %x", f.seq)
	}
	f.Next(nil, false)
	if f.seq != 0 {
		t.Fatalf("expected wrap to 0, got %x", f.seq)
	}
}

func TestFramerMonotonicTimestamp(t *testing.T) {
	f := NewFramer(44100)
	start := f.clock
	f.Advance(time.Duration(512) * time.Second / 44100)
	if f.clock <= start {
		t.Fatalf("expected timestamp to advance, got %d <= %d", f.clock, start)
	}
}

func TestFramerSSRCStable(t *testing.T) {
	f := NewFramer(16000)
	want := f.SSRC()
	f.Next([]byte{1, 2, 3}, true)
	f.Next([]byte{4, 5, 6}, false)
	if f.SSRC() != want {
		t.Errorf("SSRC changed across Next calls: got %d, want %d", f.SSRC(), want)
	}
}
