/*
NAME
  recorder_test.go

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package diag

import (
	"os"
	"testing"

	"github.com/go-audio/wav"

	"github.com/kuikka/btaudio/codec/pcm"
)

func TestRecorderRoundTrip(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "capture-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	format := pcm.BufferFormat{Rate: 8000, Channels: 1}
	rec, err := NewRecorder(f, format, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	// Two frames of four samples each: 0, 100, -100, 31872.
	frame := []byte{0, 0, 100, 0, 156, 255, 128, 124}
	if err := rec.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rec.Write(frame); err != nil {
		t.Fatalf("Write (second frame): %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if got, want := len(buf.Data), 8; got != want {
		t.Errorf("decoded sample count = %d, want %d", got, want)
	}
	if buf.Format.SampleRate != 8000 || buf.Format.NumChannels != 1 {
		t.Errorf("decoded format = %+v", buf.Format)
	}
	if buf.Data[1] != 100 {
		t.Errorf("second decoded sample = %d, want 100", buf.Data[1])
	}
}

func TestRecorderAppliesFilter(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "capture-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	format := pcm.BufferFormat{Rate: 8000, Channels: 1}
	amp := pcm.NewAmplifier(0) // zeroes every sample out.
	rec, err := NewRecorder(f, format, amp)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	frame := []byte{0, 16, 0, 32, 0, 48, 0, 64}
	if err := rec.Write(frame); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	for i, s := range buf.Data {
		if s != 0 {
			t.Errorf("sample %d = %d, want 0 after zero-factor amplifier", i, s)
		}
	}
}

func TestNewRecorderRejectsZeroFormat(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "capture-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	if _, err := NewRecorder(f, pcm.BufferFormat{Rate: 0, Channels: 1}, nil); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := NewRecorder(f, pcm.BufferFormat{Rate: 8000, Channels: 0}, nil); err == nil {
		t.Error("expected error for zero channel count")
	}
}
