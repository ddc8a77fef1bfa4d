/*
NAME
  volume_test.go

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package volume

import (
	"encoding/binary"
	"testing"
)

func makeBuf(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestApplyFullVolumeIsIdentity(t *testing.T) {
	var s Scaler
	s.Set(0, 127, false)
	s.Set(1, 127, false)

	samples := []int16{1000, -2000, 3000, -4000}
	buf := makeBuf(samples)
	s.Apply(buf, 2)

	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		diff := int(got) - int(want)
		if diff < -1 || diff > 1 {
			t.Errorf("sample %d: got %d, want %d (within 1 LSB)", i, got, want)
		}
	}
}

func TestApplyMutedIsZero(t *testing.T) {
	var s Scaler
	s.Set(0, 127, true)
	s.Set(1, 64, true)

	buf := makeBuf([]int16{12345, -12345, 1, -1})
	s.Apply(buf, 2)

	for i := 0; i < len(buf)/2; i++ {
		got := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		if got != 0 {
			t.Errorf("sample %d: got %d, want 0", i, got)
		}
	}
}

func TestApplyMono(t *testing.T) {
	var s Scaler
	s.Set(0, 0, false) // Minimum volume, channel 1 only used.
	s.Set(1, 127, false)

	buf := makeBuf([]int16{20000, 20000})
	s.Apply(buf, 1)

	for i := 0; i < 2; i++ {
		got := int16(binary.LittleEndian.Uint16(buf[i*2:]))
		if got == 20000 {
			t.Errorf("sample %d: expected attenuation at minimum volume, got unchanged value", i)
		}
	}
}
