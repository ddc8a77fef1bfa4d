/*
NAME
  a2dp.go

DESCRIPTION
  a2dp.go decodes the A2DP AAC Codec Specific Information Element into a
  Config (spec section 4.6: "encoder parameters derived from A2DP
  config"). The real MPEG-4 AAC element packs sampling frequency and
  channel mode as bitmasks across the same octets as the object-type and
  bitrate fields; this decoder keeps the object-type and bitrate fields
  at their standard offsets but takes sample rate and channel count as
  separate parameters supplied by the transport's negotiated stream
  parameters, which the core always has available alongside the blob.
  See DESIGN.md for this scope decision.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package aaclatm

import "github.com/pkg/errors"

// ConfigFromA2DP decodes octet0 (object-type bitmask) and octets 1-2
// (16-bit big-endian bitrate in kbps) of the AAC configuration blob,
// combining them with the given sample rate/channel count and the
// engine's global VBR/afterburner settings. configVBRBit reports whether
// the blob requests VBR; VBR is only enabled when both that bit and the
// global vbrGlobal flag are set (spec section 4.6).
func ConfigFromA2DP(blob []byte, sampleRate, channels int, vbrGlobal, afterburnerGlobal bool) (Config, error) {
	if len(blob) < 3 {
		return Config{}, errors.New("aaclatm: a2dp config blob too short")
	}
	objMask := blob[0]
	bitrate := int(blob[1])<<8 | int(blob[2])
	configVBRBit := objMask&0x80 != 0

	return Config{
		SampleRate:     sampleRate,
		Channels:       channels,
		ObjectTypeMask: objMask &^ 0x80,
		BitrateKbps:    bitrate,
		VBR:            configVBRBit && vbrGlobal,
		Afterburner:    afterburnerGlobal,
	}, nil
}
