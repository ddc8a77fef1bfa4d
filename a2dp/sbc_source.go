/*
NAME
  sbc_source.go

DESCRIPTION
  sbc_source.go implements the A2DP source worker's SBC pipeline (spec
  section 4.5, source loop): PCM read, volume scaling, SBC encode,
  RTP packetization and pacing.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package a2dp

import (
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/btsock"
	"github.com/kuikka/btaudio/codec/sbc"
	"github.com/kuikka/btaudio/engine/config"
	"github.com/kuikka/btaudio/iosync"
	"github.com/kuikka/btaudio/pcmio"
	"github.com/kuikka/btaudio/rtp"
	"github.com/kuikka/btaudio/transport"
	"github.com/kuikka/btaudio/volume"
)

// SBCSource runs the A2DP source worker loop for an SBC transport.
type SBCSource struct {
	Transport *transport.Transport
	Codec     sbc.Config
	Global    config.Config
	Log       logging.Logger
}

// Run executes the worker loop until the transport is released or a fatal
// error occurs. It blocks; callers run it in its own goroutine.
func (w *SBCSource) Run() error {
	t := w.Transport
	if err := t.Validate(); err != nil {
		return errors.Wrap(err, "a2dp: sbc source init")
	}
	pcm := t.A2DP.Pcm

	enc, err := sbc.NewEncoder(w.Codec)
	if err != nil {
		return errors.Wrap(err, "a2dp: sbc source init")
	}

	frameLen := w.Codec.FrameLength()
	samplesPerFrame := w.Codec.CodeSize() * w.Codec.Channels
	budget := t.WriteMTU - rtp.HeaderLen - 1 // 1 byte SBC payload header (spec section 4.4).
	framesPerPacket := budget / frameLen
	if framesPerPacket < 1 {
		return errors.New("a2dp: sbc source init: mtu too small for one sbc frame")
	}

	// Sized as an exact multiple of samplesPerFrame, so every block-read
	// produces whole SBC frames with nothing left over to carry forward
	// (spec section 4.5's "input buffer size S x floor(MTU/F)").
	pcmBuf := make([]byte, samplesPerFrame*framesPerPacket*2)
	payload := make([]byte, 0, t.WriteMTU)

	sync := iosync.New(uint(w.Codec.SampleRate))
	framer := rtp.NewFramer(uint(w.Codec.SampleRate))
	var scaler volume.Scaler

	if err := pcmio.OpenForRead(pcm); err != nil {
		return errors.Wrap(err, "a2dp: sbc source: open pcm")
	}

	ps := btsock.NewPollSet(t.EventFD, -1)

	for {
		ps.Arm(slotEvent, t.EventFD, true)
		ps.Arm(slotPCM, pcm.FDAdvisory(), true)
		if err := ps.Wait(-1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "a2dp: sbc source: poll")
		}
		if ps.Readable(slotEvent) {
			drainEvent(t.EventFD, w.Log)
			sync.Reset()
		}
		if !ps.Readable(slotPCM) {
			continue
		}

		n, err := pcmio.ReadFrames(pcm, pcmBuf)
		if err == pcmio.ErrClosed {
			// Sole PCM input lost: spec section 8 scenario 6, the source
			// worker exits rather than waiting for a new writer.
			t.ReleaseOnce()
			return nil
		}
		if err != nil {
			w.Log.Error("a2dp: sbc source: pcm read", "error", err)
			continue
		}
		sync.Anchor(time.Now())

		if !w.Global.A2DPVolumePassthrough {
			w.applyVolume(&scaler, pcmBuf)
		}

		samples := bytesToInt16(pcmBuf[:n*2])
		payload = payload[:0]
		frameCount := 0
		for off := 0; off+samplesPerFrame <= len(samples); off += samplesPerFrame {
			frame, err := enc.Encode(samples[off : off+samplesPerFrame])
			if err != nil {
				w.Log.Warning("a2dp: sbc source: encode", "error", err)
				continue
			}
			payload = append(payload, frame...)
			frameCount++
		}
		if frameCount == 0 {
			continue
		}

		pktPayload := make([]byte, 1+len(payload))
		pktPayload[0] = byte(frameCount)
		copy(pktPayload[1:], payload)

		pkt := framer.Next(pktPayload, false)
		if err := btWrite(t.BTFD, pkt); err != nil {
			if peerClosed(err) {
				t.ClearBTFD()
				t.ReleaseOnce()
				return nil
			}
			w.Log.Warning("a2dp: sbc source: bt write", "error", err)
			continue
		}

		d := sync.Advance(uint32(n / w.Codec.Channels))
		framer.Advance(d)
	}
}

func (w *SBCSource) applyVolume(scaler *volume.Scaler, pcmBuf []byte) {
	t := w.Transport
	vol, muted := t.A2DP.GetVolume(0)
	scaler.Set(0, vol, muted)
	if w.Codec.Channels == 2 {
		vol2, muted2 := t.A2DP.GetVolume(1)
		scaler.Set(1, vol2, muted2)
	}
	scaler.Apply(pcmBuf, w.Codec.Channels)
}
