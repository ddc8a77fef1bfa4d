/*
NAME
  sbc_sink.go

DESCRIPTION
  sbc_sink.go implements the A2DP sink worker's SBC pipeline (spec
  section 4.5, sink loop): RTP parse, SBC decode, lazy PCM-for-write open.

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
	"github.com/kuikka/btaudio/codec/sbc"
	"github.com/kuikka/btaudio/pcmio"
	"github.com/kuikka/btaudio/rtp"
	"github.com/kuikka/btaudio/transport"
)

// SBCSink runs the A2DP sink worker loop for an SBC transport.
type SBCSink struct {
	Transport *transport.Transport
	Log       logging.Logger
}

// Run executes the worker loop until the transport is released or a fatal
// error occurs. It blocks; callers run it in its own goroutine.
func (w *SBCSink) Run() error {
	t := w.Transport
	if err := t.Validate(); err != nil {
		return errors.Wrap(err, "a2dp: sbc sink init")
	}
	pcm := t.A2DP.Pcm
	dec := sbc.NewDecoder()
	buf := make([]byte, t.ReadMTU)

	ps := btsock.NewPollSet(t.EventFD, t.BTFD)

	for {
		ps.Arm(slotEvent, t.EventFD, true)
		ps.Arm(slotBT, t.BTFD, true)
		if err := ps.Wait(-1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "a2dp: sbc sink: poll")
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
			w.Log.Warning("a2dp: sbc sink: bt read", "error", err)
			continue
		}
		if n == 0 {
			t.ClearBTFD()
			t.ReleaseOnce()
			return nil
		}

		pkt, err := rtp.Parse(buf[:n])
		if err != nil {
			w.Log.Warning("a2dp: sbc sink: rtp parse", "error", err)
			continue
		}
		if len(pkt.Payload) < 1 {
			w.Log.Warning("a2dp: sbc sink: empty payload")
			continue
		}
		frameCount := int(pkt.Payload[0] & 0x0f)
		data := pkt.Payload[1:]

		if pcm.PathAdvisory() == "" {
			continue // Pipe not yet wanted; drop this packet's audio.
		}
		if !pcm.IsOpen() {
			if err := pcmio.OpenForWrite(pcm); err != nil {
				w.Log.Warning("a2dp: sbc sink: open pcm", "error", err)
				continue
			}
		}

		var out []int16
		for i := 0; i < frameCount; i++ {
			if len(data) == 0 {
				w.Log.Warning("a2dp: sbc sink: frame count exceeds available data")
				break
			}
			pcmFrame, consumed, err := dec.Decode(data)
			if err != nil {
				w.Log.Warning("a2dp: sbc sink: decode", "error", err)
				break
			}
			out = append(out, pcmFrame...)
			if consumed >= len(data) {
				data = nil
			} else {
				data = data[consumed:]
			}
		}
		if len(out) == 0 {
			continue
		}

		if _, err := pcmio.WriteFrames(pcm, int16ToBytes(out)); err != nil && err != pcmio.ErrClosed {
			w.Log.Warning("a2dp: sbc sink: pcm write", "error", err)
		}
	}
}
