/*
NAME
  a2dp.go

DESCRIPTION
  a2dp.go decodes the 4-byte SBC Codec Specific Information Element A2DP
  negotiation produces into a Config, so the a2dp source/sink workers can
  treat Transport.Config as the opaque blob spec section 3 describes and
  leave its interpretation to this package (spec section 4.5: "initialize
  the SBC codec from the A2DP configuration blob").

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package sbc

import "github.com/pkg/errors"

// ConfigFromA2DP decodes a negotiated (single-bit-per-field) 4-byte SBC
// Codec Specific Information Element: octet0 sampling-frequency nibble
// (high) + channel-mode nibble (low); octet1 block-length nibble (high) +
// subbands 2 bits + allocation-method 2 bits; octet2 min bitpool; octet3
// max bitpool. The encoder uses the max bitpool for best quality within
// the negotiated range, matching common A2DP source behaviour.
func ConfigFromA2DP(blob []byte) (Config, error) {
	if len(blob) < 4 {
		return Config{}, errors.New("sbc: a2dp config blob too short")
	}

	freq, err := pickBit(blob[0]>>4, []int{16000, 32000, 44100, 48000})
	if err != nil {
		return Config{}, errors.Wrap(err, "sbc: sampling frequency")
	}
	channels, err := pickChannelMode(blob[0] & 0x0f)
	if err != nil {
		return Config{}, err
	}
	blocks, err := pickBit(blob[1]>>4, []int{4, 8, 12, 16})
	if err != nil {
		return Config{}, errors.Wrap(err, "sbc: block length")
	}
	subbands, err := pickBit((blob[1]>>2)&0x03, []int{4, 8})
	if err != nil {
		return Config{}, errors.Wrap(err, "sbc: subbands")
	}

	cfg := Config{
		SampleRate: freq,
		Channels:   channels,
		Subbands:   subbands,
		Blocks:     blocks,
		Bitpool:    int(blob[3]),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// pickBit returns values[i] for the lowest i whose bit is set in mask,
// that is, for the most significant set bit
// (mask's bit 3 corresponds to values[0], bit 0 to values[len-1], matching
// the A2DP IE convention of most-significant-bit-first enumeration).
func pickBit(mask byte, values []int) (int, error) {
	for i, v := range values {
		bit := byte(1) << uint(len(values)-1-i)
		if mask&bit != 0 {
			return v, nil
		}
	}
	return 0, errors.Errorf("sbc: no bit set in mask 0x%x", mask)
}

// Channel mode bits: bit3=Mono, bit2=DualChannel, bit1=Stereo, bit0=JointStereo.
// Dual channel and joint stereo both decode as 2-channel non-joint streams;
// see DESIGN.md for the joint-stereo scope decision.
func pickChannelMode(mask byte) (int, error) {
	switch {
	case mask&0x08 != 0:
		return 1, nil
	case mask&(0x04|0x02|0x01) != 0:
		return 2, nil
	default:
		return 0, errors.Errorf("sbc: no channel mode bit set in 0x%x", mask)
	}
}
