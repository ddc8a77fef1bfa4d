/*
NAME
  aac_sink.go

DESCRIPTION
  aac_sink.go implements the A2DP sink worker's AAC-LATM pipeline (spec
  section 4.6): RTP defragmentation in arrival order, LATM decode, and
  lazy PCM-for-write open.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package a2dp

import (
	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/btsock"
	"github.com/kuikka/btaudio/codec/aaclatm"
	"github.com/kuikka/btaudio/pcmio"
	"github.com/kuikka/btaudio/rtp"
	"github.com/kuikka/btaudio/transport"
)

// AACSink runs the A2DP sink worker loop for an AAC-LATM transport.
type AACSink struct {
	Transport *transport.Transport
	RawCodec  aaclatm.RawCodec
	Log       logging.Logger
}

// Run executes the worker loop until the transport is released or a fatal
// error occurs. It blocks; callers run it in its own goroutine.
func (w *AACSink) Run() error {
	t := w.Transport
	if err := t.Validate(); err != nil {
		return errors.Wrap(err, "a2dp: aac sink init")
	}
	pcm := t.A2DP.Pcm
	dec := aaclatm.NewDecoder(w.RawCodec)
	var reasm aaclatm.Reassembler
	buf := make([]byte, t.ReadMTU)

	ps := btsock.NewPollSet(t.EventFD, t.BTFD)

	for {
		ps.Arm(slotEvent, t.EventFD, true)
		ps.Arm(slotBT, t.BTFD, true)
		if err := ps.Wait(-1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "a2dp: aac sink: poll")
		}
		if ps.Readable(slotEvent) {
			drainEvent(t.EventFD, w.Log)
		}
		if !ps.Readable(slotBT) {
			continue
		}

		n, err := btRead(t.BTFD, buf)
		if err != nil {
			if peerClosed(err) {
				t.ClearBTFD()
				t.ReleaseOnce()
				return nil
			}
			w.Log.Warning("a2dp: aac sink: bt read", "error", err)
			continue
		}
		if n == 0 {
			t.ClearBTFD()
			t.ReleaseOnce()
			return nil
		}

		pkt, err := rtp.Parse(buf[:n])
		if err != nil {
			w.Log.Warning("a2dp: aac sink: rtp parse", "error", err)
			continue
		}

		frame, complete := reasm.Add(pkt.Payload, pkt.Marker)
		if !complete {
			continue
		}

		if pcm.PathAdvisory() == "" {
			continue // Pipe not yet wanted; drop this frame's audio.
		}
		if !pcm.IsOpen() {
			if err := pcmio.OpenForWrite(pcm); err != nil {
				w.Log.Warning("a2dp: aac sink: open pcm", "error", err)
				continue
			}
		}

		pcmSamples, _, err := dec.Decode(frame)
		if err != nil {
			w.Log.Warning("a2dp: aac sink: decode", "error", err)
			continue
		}
		if _, err := pcmio.WriteFrames(pcm, int16ToBytes(pcmSamples)); err != nil && err != pcmio.ErrClosed {
			w.Log.Warning("a2dp: aac sink: pcm write", "error", err)
		}
	}
}
