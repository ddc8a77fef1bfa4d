/*
NAME
  sbc.go

DESCRIPTION
  sbc.go implements the SBC codec pipeline (spec component C5): a pure-Go
  encoder/decoder for the subband codec A2DP uses as its mandatory audio
  format. The corpus retrieved for this project carries no pure-Go SBC
  implementation (codec/aac in the teacher repository wraps a native AAC
  library via cgo-style framing, not SBC), so this package follows the
  spec's functional description of the pipeline directly: configurable
  subbands/blocks/channels/bitpool, a scale-factor-driven bit allocator,
  and a CRC-checked frame header.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package sbc implements the SBC audio codec used by the A2DP source and
// sink worker loops (spec section 4.5). Frame layout: a 4-byte header
// (sync byte, packed subbands/blocks/channels, bitpool, CRC8), followed by
// one 4-bit scale factor per channel per subband, followed by the packed
// subband sample bitstream. Joint stereo and the SNR allocation method
// are not implemented; see DESIGN.md for the scope decision.
package sbc

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

const (
	syncByte       = 0x9C
	headerLen      = 4
	maxSubbandBits = 16
	fixedPointBits = 14 // Q14 fixed point used for the internal subband domain.
)

// Config describes an SBC stream's frame geometry, matching the fields the
// A2DP configuration blob carries (spec section 4.5).
type Config struct {
	SampleRate int
	Channels   int // 1 (mono) or 2 (stereo, non-joint).
	Subbands   int // 4 or 8.
	Blocks     int // 4, 8, 12, 15 (mSBC) or 16.
	Bitpool    int

	// SyncByte overrides the frame's leading sync byte. Zero means the
	// standard SBC sync word (0x9C); the msbc package sets this to 0xAD
	// to match the mSBC payload's sync word (spec section 4.7).
	SyncByte byte
}

func (cfg Config) sync() byte {
	if cfg.SyncByte != 0 {
		return cfg.SyncByte
	}
	return syncByte
}

// Validate checks cfg's fields are within the ranges the bitstream header
// can represent.
func (cfg Config) Validate() error {
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return errors.Errorf("sbc: invalid channel count %d", cfg.Channels)
	}
	if cfg.Subbands != 4 && cfg.Subbands != 8 {
		return errors.Errorf("sbc: invalid subband count %d", cfg.Subbands)
	}
	if blocksCode(cfg.Blocks) < 0 {
		return errors.Errorf("sbc: invalid block count %d", cfg.Blocks)
	}
	if cfg.Bitpool < 2 || cfg.Bitpool > 250 {
		return errors.Errorf("sbc: invalid bitpool %d", cfg.Bitpool)
	}
	return nil
}

// CodeSize returns S, the number of PCM samples per channel a single SBC
// frame encodes (spec section 4.5: "query frame length F and code size S").
func (cfg Config) CodeSize() int { return cfg.Blocks * cfg.Subbands }

func (cfg Config) scaleFactorBytes() int {
	return (cfg.Channels*cfg.Subbands*4 + 7) / 8
}

func (cfg Config) perBlockBudget() int { return cfg.Channels * cfg.Bitpool }

// FrameLength returns F, the encoded size in bytes of one SBC frame under
// cfg (spec section 4.5).
func (cfg Config) FrameLength() int {
	dataBits := cfg.Blocks * cfg.perBlockBudget()
	return headerLen + cfg.scaleFactorBytes() + (dataBits+7)/8
}

// blockCounts enumerates the block counts the header's 3-bit blocks field
// can represent. 15 is not a standard A2DP SBC value but is mSBC's fixed
// block count (spec section 4.7), so it gets a slot alongside the four
// regular SBC choices.
var blockCounts = []int{4, 8, 12, 15, 16}

func blocksCode(blocks int) int {
	for i, b := range blockCounts {
		if b == blocks {
			return i
		}
	}
	return -1
}

func blocksFromCode(code int) int {
	if code < 0 || code >= len(blockCounts) {
		return 0
	}
	return blockCounts[code]
}

// Encoder holds the per-channel filter bank state for one SBC stream.
type Encoder struct {
	cfg   Config
	banks []*filterBank
}

// NewEncoder returns an Encoder for cfg, or an error if cfg is invalid.
func NewEncoder(cfg Config) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Encoder{cfg: cfg, banks: make([]*filterBank, cfg.Channels)}
	for ch := range e.banks {
		e.banks[ch] = newFilterBank(cfg.Subbands)
	}
	return e, nil
}

// Encode consumes exactly cfg.CodeSize()*cfg.Channels interleaved 16-bit
// PCM samples and returns one encoded SBC frame.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	cfg := e.cfg
	want := cfg.CodeSize() * cfg.Channels
	if len(pcm) != want {
		return nil, errors.Errorf("sbc: Encode wants %d samples, got %d", want, len(pcm))
	}

	raw := make([][][]int32, cfg.Blocks)
	for blk := 0; blk < cfg.Blocks; blk++ {
		raw[blk] = make([][]int32, cfg.Channels)
		for ch := 0; ch < cfg.Channels; ch++ {
			samples := make([]float64, cfg.Subbands)
			for s := 0; s < cfg.Subbands; s++ {
				idx := (blk*cfg.Subbands+s)*cfg.Channels + ch
				samples[s] = float64(pcm[idx]) / 32768
			}
			coeffs := e.banks[ch].analyze(samples)
			row := make([]int32, cfg.Subbands)
			for s, c := range coeffs {
				row[s] = int32(math.Round(c * float64(int32(1)<<fixedPointBits)))
			}
			raw[blk][ch] = row
		}
	}

	scf := make([][]int, cfg.Channels)
	for ch := 0; ch < cfg.Channels; ch++ {
		scf[ch] = make([]int, cfg.Subbands)
		for s := 0; s < cfg.Subbands; s++ {
			max := int32(0)
			for blk := 0; blk < cfg.Blocks; blk++ {
				v := raw[blk][ch][s]
				if v < 0 {
					v = -v
				}
				if v > max {
					max = v
				}
			}
			scf[ch][s] = clampScaleFactor(bitsNeeded(max))
		}
	}

	bits := allocateBits(scf, cfg)

	w := &bitWriter{}
	writeScaleFactors(w, scf, cfg)
	headerBits := append([]byte(nil), w.bytes()...)

	for blk := 0; blk < cfg.Blocks; blk++ {
		for ch := 0; ch < cfg.Channels; ch++ {
			for s := 0; s < cfg.Subbands; s++ {
				b := bits[ch][s]
				if b == 0 {
					continue
				}
				code := quantize(raw[blk][ch][s], scf[ch][s], b)
				w.writeBits(uint32(code), b)
			}
		}
	}

	frame := make([]byte, 0, headerLen+len(w.bytes()))
	frame = append(frame, cfg.sync(), packConfigByte(cfg), byte(cfg.Bitpool), 0)
	frame = append(frame, w.bytes()...)
	crcInput := append([]byte{frame[1], frame[2]}, headerBits...)
	frame[3] = crc8(crcInput)
	return frame, nil
}

// Decoder holds per-channel filter bank state reconstructed lazily from the
// first frame's header (channel/subband count can only be known then).
type Decoder struct {
	cfg   Config
	banks []*filterBank

	// ExpectedSync overrides the sync byte Decode requires at buf[0].
	// Zero means the standard SBC sync word (0x9C); the msbc package sets
	// this to 0xAD.
	ExpectedSync byte
}

// NewDecoder returns a Decoder ready to parse SBC frames. Its filter banks
// are allocated on the first call to Decode, once the stream's geometry is
// known from the frame header.
func NewDecoder() *Decoder { return &Decoder{} }

func (d *Decoder) expectedSync() byte {
	if d.ExpectedSync != 0 {
		return d.ExpectedSync
	}
	return syncByte
}

// Decode parses one SBC frame from the head of buf, returning the decoded
// interleaved PCM samples and the number of bytes consumed. Per spec
// section 4.5's "frame-count-vs-length consistency" rule, callers should
// stop decoding a packet (without treating it as a stream error) if buf is
// shorter than the frame this header describes.
func (d *Decoder) Decode(buf []byte) ([]int16, int, error) {
	if len(buf) < headerLen {
		return nil, 0, errors.New("sbc: frame shorter than header")
	}
	if buf[0] != d.expectedSync() {
		return nil, 0, errors.New("sbc: bad sync byte")
	}
	cfg, err := unpackConfigByte(buf[1])
	if err != nil {
		return nil, 0, err
	}
	cfg.Bitpool = int(buf[2])
	if err := cfg.Validate(); err != nil {
		return nil, 0, err
	}

	sfBytes := cfg.scaleFactorBytes()
	if len(buf) < headerLen+sfBytes {
		return nil, 0, errors.New("sbc: frame shorter than header plus scale factors")
	}
	crcInput := append([]byte{buf[1], buf[2]}, buf[headerLen:headerLen+sfBytes]...)
	if crc8(crcInput) != buf[3] {
		return nil, 0, errors.New("sbc: CRC mismatch")
	}

	r := newBitReader(buf[headerLen:])
	scf := make([][]int, cfg.Channels)
	for ch := 0; ch < cfg.Channels; ch++ {
		scf[ch] = make([]int, cfg.Subbands)
		for s := 0; s < cfg.Subbands; s++ {
			v, ok := r.readBits(4)
			if !ok {
				return nil, 0, errors.New("sbc: truncated scale factors")
			}
			scf[ch][s] = int(v)
		}
	}
	bits := allocateBits(scf, cfg)

	if d.banks == nil || d.cfg.Channels != cfg.Channels || d.cfg.Subbands != cfg.Subbands {
		d.banks = make([]*filterBank, cfg.Channels)
		for ch := range d.banks {
			d.banks[ch] = newFilterBank(cfg.Subbands)
		}
	}
	d.cfg = cfg

	out := make([]int16, cfg.CodeSize()*cfg.Channels)
	for blk := 0; blk < cfg.Blocks; blk++ {
		for ch := 0; ch < cfg.Channels; ch++ {
			coeffs := make([]float64, cfg.Subbands)
			for s := 0; s < cfg.Subbands; s++ {
				b := bits[ch][s]
				if b == 0 {
					continue
				}
				code, ok := r.readBits(b)
				if !ok {
					return nil, 0, errors.New("sbc: truncated subband data")
				}
				raw := dequantize(int32(code), scf[ch][s], b)
				coeffs[s] = float64(raw) / float64(int32(1)<<fixedPointBits)
			}
			samples := d.banks[ch].synthesize(coeffs)
			for s := 0; s < cfg.Subbands; s++ {
				idx := (blk*cfg.Subbands+s)*cfg.Channels + ch
				out[idx] = clampSample(samples[s] * 32768)
			}
		}
	}

	return out, cfg.FrameLength(), nil
}

func writeScaleFactors(w *bitWriter, scf [][]int, cfg Config) {
	for ch := 0; ch < cfg.Channels; ch++ {
		for s := 0; s < cfg.Subbands; s++ {
			w.writeBits(uint32(scf[ch][s]), 4)
		}
	}
}

// allocateBits distributes the per-block bit budget across subbands using
// a greedy water-fill keyed by unmet scale-factor need, deterministically
// reproducible by the decoder from the transmitted scale factors alone.
func allocateBits(scf [][]int, cfg Config) [][]int {
	bits := make([][]int, cfg.Channels)
	for ch := range bits {
		bits[ch] = make([]int, cfg.Subbands)
	}
	remaining := cfg.perBlockBudget()
	needs := make([]float64, cfg.Channels*cfg.Subbands)
	for remaining > 0 {
		for ch := 0; ch < cfg.Channels; ch++ {
			for s := 0; s < cfg.Subbands; s++ {
				idx := ch*cfg.Subbands + s
				if scf[ch][s] == 0 || bits[ch][s] >= maxSubbandBits || bits[ch][s] >= scf[ch][s]+2 {
					needs[idx] = 0
					continue
				}
				needs[idx] = float64(scf[ch][s] - bits[ch][s])
			}
		}
		// gonum/floats.MaxIdx picks the first index attaining the
		// maximum, matching the strict "need > bestNeed" tie-break this
		// water-fill used before.
		idx := floats.MaxIdx(needs)
		if needs[idx] <= 0 {
			break
		}
		bits[idx/cfg.Subbands][idx%cfg.Subbands]++
		remaining--
	}
	return bits
}

func bitsNeeded(v int32) int {
	n := 0
	for v > 0 {
		v >>= 1
		n++
	}
	return n
}

func clampScaleFactor(n int) int {
	if n > 15 {
		return 15
	}
	return n
}

func quantize(raw int32, scf, bits int) uint32 {
	levels := (int64(1) << uint(bits)) - 1
	rangeVal := float64(int64(1) << uint(scf))
	norm := float64(raw) / rangeVal
	code := int64((norm+1)/2*float64(levels) + 0.5)
	if code < 0 {
		code = 0
	}
	if code > levels {
		code = levels
	}
	return uint32(code)
}

func dequantize(code int32, scf, bits int) int32 {
	levels := float64((int64(1) << uint(bits)) - 1)
	rangeVal := float64(int64(1) << uint(scf))
	norm := float64(code)/levels*2 - 1
	return int32(norm * rangeVal)
}

func clampSample(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func packConfigByte(cfg Config) byte {
	var subbandsBit byte
	if cfg.Subbands == 8 {
		subbandsBit = 1
	}
	channelsBit := byte(cfg.Channels - 1)
	return subbandsBit<<7 | byte(blocksCode(cfg.Blocks))<<4 | channelsBit<<3
}

func unpackConfigByte(b byte) (Config, error) {
	subbands := 4
	if b&0x80 != 0 {
		subbands = 8
	}
	blocks := blocksFromCode(int(b >> 4 & 0x07))
	channels := int(b>>3&0x01) + 1
	return Config{Subbands: subbands, Blocks: blocks, Channels: channels}, nil
}
