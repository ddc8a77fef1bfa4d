/*
NAME
  aac_source.go

DESCRIPTION
  aac_source.go implements the A2DP source worker's AAC-LATM pipeline
  (spec section 4.6): PCM read, volume scaling, AAC-LATM encode and RTP
  fragmentation for frames larger than the MTU budget.

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
	"github.com/kuikka/btaudio/codec/aaclatm"
	"github.com/kuikka/btaudio/engine/config"
	"github.com/kuikka/btaudio/iosync"
	"github.com/kuikka/btaudio/pcmio"
	"github.com/kuikka/btaudio/rtp"
	"github.com/kuikka/btaudio/transport"
	"github.com/kuikka/btaudio/volume"
)

// AACSource runs the A2DP source worker loop for an AAC-LATM transport.
type AACSource struct {
	Transport *transport.Transport
	Codec     aaclatm.Config
	RawCodec  aaclatm.RawCodec
	Global    config.Config
	Log       logging.Logger
}

// Run executes the worker loop until the transport is released or a fatal
// error occurs. It blocks; callers run it in its own goroutine.
func (w *AACSource) Run() error {
	t := w.Transport
	if err := t.Validate(); err != nil {
		return errors.Wrap(err, "a2dp: aac source init")
	}
	pcm := t.A2DP.Pcm

	enc := aaclatm.NewEncoder(w.Codec, w.RawCodec)
	samplesPerFrame := enc.FrameSize() * w.Codec.Channels
	pcmBuf := make([]byte, samplesPerFrame*2)

	sync := iosync.New(uint(w.Codec.SampleRate))
	framer := rtp.NewFramer(uint(w.Codec.SampleRate))
	var scaler volume.Scaler

	if err := pcmio.OpenForRead(pcm); err != nil {
		return errors.Wrap(err, "a2dp: aac source: open pcm")
	}

	ps := btsock.NewPollSet(t.EventFD, -1)
	chunk := t.WriteMTU - rtp.HeaderLen

	for {
		ps.Arm(slotEvent, t.EventFD, true)
		ps.Arm(slotPCM, pcm.FDAdvisory(), true)
		if err := ps.Wait(-1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "a2dp: aac source: poll")
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
			t.ReleaseOnce()
			return nil
		}
		if err != nil {
			w.Log.Error("a2dp: aac source: pcm read", "error", err)
			continue
		}
		sync.Anchor(time.Now())

		if !w.Global.A2DPVolumePassthrough {
			w.applyVolume(&scaler, pcmBuf)
		}

		samples := bytesToInt16(pcmBuf[:n*2])
		frame, err := enc.Encode(samples)
		if err != nil {
			w.Log.Warning("a2dp: aac source: encode", "error", err)
			continue
		}

		// Fragment across multiple RTP packets when the encoded frame
		// exceeds the MTU budget; MARK=1 on every fragment but the last
		// (spec section 4.4, the decided open question in DESIGN.md).
		chunks := aaclatm.Fragment(frame, chunk)
		aborted := false
		for i, c := range chunks {
			marker := i != len(chunks)-1
			pkt := framer.Next(c, marker)
			if err := btWrite(t.BTFD, pkt); err != nil {
				if peerClosed(err) {
					t.ClearBTFD()
					t.ReleaseOnce()
					return nil
				}
				w.Log.Warning("a2dp: aac source: bt write", "error", err)
				aborted = true
				break
			}
		}
		if aborted {
			continue
		}

		d := sync.Advance(uint32(n / w.Codec.Channels))
		framer.Advance(d)
	}
}

func (w *AACSource) applyVolume(scaler *volume.Scaler, pcmBuf []byte) {
	t := w.Transport
	vol, muted := t.A2DP.GetVolume(0)
	scaler.Set(0, vol, muted)
	if w.Codec.Channels == 2 {
		vol2, muted2 := t.A2DP.GetVolume(1)
		scaler.Set(1, vol2, muted2)
	}
	scaler.Apply(pcmBuf, w.Codec.Channels)
}
