/*
NAME
  sco.go

DESCRIPTION
  sco.go implements the SCO worker (spec component C8): a single goroutine
  multiplexing the Bluetooth SCO socket with independent speaker (read) and
  mic (write) PCM pipes, switching between raw CVSD passthrough and mSBC
  framing per the transport's negotiated codec.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package sco implements the SCO worker loop (spec section 4.8): CVSD
// passthrough and mSBC wideband voice framing over a Bluetooth SCO socket,
// with best-effort speaker/mic PCM pipe attachment.
package sco

import (
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/btsock"
	"github.com/kuikka/btaudio/codec/msbc"
	"github.com/kuikka/btaudio/iosync"
	"github.com/kuikka/btaudio/pcmio"
	"github.com/kuikka/btaudio/transport"
)

const (
	slotEvent   = 0
	slotBT      = 1
	slotSpeaker = 2

	// scoChunk is the observed usable SCO wire quantum (spec section 4.7),
	// also msbc.SCOChunkLen.
	scoChunk = msbc.SCOChunkLen

	// cvsdReadBuf is sized generously; CVSD MTU is auto-detected from the
	// first packet and is typically well under this.
	cvsdReadBuf = 256

	// mSBC output is capped to a small number of buffered frames so the
	// speaker-PCM poll slot can be disarmed once the encoder is ahead of
	// the link, per spec section 4.8's "disarm... until encoder output has
	// room for another frame."
	msbcOutputCapFrames = 4
)

// Worker runs the SCO worker loop for one Transport (spec section 4.8).
type Worker struct {
	Transport *transport.Transport
	Log       logging.Logger

	enc *msbc.Encoder
	dec *msbc.Decoder

	sync *iosync.Sync

	cvsdMTUKnown bool
}

// Run executes the worker loop until the transport is released or a fatal
// error occurs. It blocks; callers run it in its own goroutine.
func (w *Worker) Run() error {
	t := w.Transport
	if t.BTFD < 0 {
		return errors.New("sco: bt fd not set")
	}
	if t.Sco == nil {
		return errors.New("sco: no Sco data")
	}
	w.sync = iosync.New(8000) // re-derived per codec below once known.

	ps := btsock.NewPollSet(t.EventFD, t.BTFD, -1)

	for {
		ps.Arm(slotEvent, t.EventFD, true)
		if t.BTFD >= 0 {
			ps.Arm(slotBT, t.BTFD, true)
		}
		speakerFD := -1
		if t.Sco.Speaker != nil && t.Sco.Speaker.IsOpen() && w.speakerHasRoom() {
			speakerFD = t.Sco.Speaker.FDAdvisory()
		}
		ps.Arm(slotSpeaker, speakerFD, true)

		if err := ps.Wait(-1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "sco: poll")
		}

		if ps.Readable(slotEvent) {
			if _, err := btsock.DrainEvent(t.EventFD); err != nil {
				w.Log.Warning("sco: drain event fd", "error", err)
			}
			if err := w.handleEvent(); err != nil {
				return err
			}
		}

		if speakerFD >= 0 && ps.Readable(slotSpeaker) {
			if err := w.handleSpeakerReadable(); err != nil {
				if peerClosed(err) {
					t.Sco.Speaker.ReleaseOnce()
					continue
				}
				w.Log.Warning("sco: speaker pcm", "error", err)
			}
		}

		if t.BTFD >= 0 && ps.Readable(slotBT) {
			if err := w.handleBTReadable(); err != nil {
				if peerClosed(err) {
					t.ClearBTFD()
					t.ReleaseOnce()
					return nil
				}
				w.Log.Warning("sco: bt read", "error", err)
			}
		}
	}
}

// handleEvent implements spec section 4.8's "state flow on event": it
// attempts best-effort speaker/mic PCM attachment, then acquires or
// releases the underlying SCO link depending on whether either PCM
// endpoint is now open.
func (w *Worker) handleEvent() error {
	t := w.Transport
	sc := t.Sco

	if sc.Speaker != nil && !sc.Speaker.IsOpen() {
		if _, err := pcmio.TryOpenForRead(sc.Speaker); err != nil {
			w.Log.Warning("sco: open speaker pcm", "error", err)
		}
	}
	if sc.Mic != nil && !sc.Mic.IsOpen() {
		if _, err := pcmio.TryOpenForWrite(sc.Mic); err != nil {
			w.Log.Warning("sco: open mic pcm", "error", err)
		}
	}

	speakerOpen := sc.Speaker != nil && sc.Speaker.IsOpen()
	micOpen := sc.Mic != nil && sc.Mic.IsOpen()

	if !speakerOpen && !micOpen {
		if sc.ReleaseLink != nil {
			sc.ReleaseLink()
		}
		w.sync.Reset()
		return nil
	}

	if sc.AcquireLink != nil {
		if err := sc.AcquireLink(); err != nil {
			return errors.Wrap(err, "sco: acquire link")
		}
	}

	if sc.SelectedCodec() == transport.CodecMSBC && w.enc == nil {
		enc, err := msbc.NewEncoder()
		if err != nil {
			return errors.Wrap(err, "sco: new mSBC encoder")
		}
		w.enc = enc
		w.dec = msbc.NewDecoder()
		w.sync = iosync.New(16000)
	}
	return nil
}

// speakerHasRoom reports whether the speaker-PCM poll slot should be armed:
// always true for CVSD or before an mSBC encoder exists, and gated on
// buffer headroom once mSBC encoding has started.
func (w *Worker) speakerHasRoom() bool {
	if w.enc == nil {
		return true
	}
	return w.enc.Buffered() < msbcOutputCapFrames*msbc.FrameLen
}

// handleSpeakerReadable reads one chunk of speaker PCM and either feeds the
// mSBC encoder or forwards raw CVSD samples to the BT socket, per spec
// section 4.8's "On speaker-pcm-readable" branch.
func (w *Worker) handleSpeakerReadable() error {
	t := w.Transport
	sc := t.Sco

	if sc.SelectedCodec() == transport.CodecMSBC {
		buf := make([]byte, msbc.PCMBlockBytes)
		n, err := pcmio.ReadFrames(sc.Speaker, buf)
		if err != nil {
			return err
		}
		w.enc.Write(buf[:n*2])
		return nil
	}

	// CVSD: read mtu_write/2 samples (mtu_write bytes of 16-bit mono PCM)
	// and forward raw to the BT socket.
	n := t.WriteMTU
	if n <= 0 {
		n = cvsdReadBuf
	}
	buf := make([]byte, n)
	got, err := pcmio.ReadFrames(sc.Speaker, buf)
	if err != nil {
		return err
	}
	w.sync.Anchor(time.Now())
	if err := btWrite(t.BTFD, buf[:got*2]); err != nil {
		return err
	}
	w.sync.Advance(uint32(got))
	return nil
}

// handleBTReadable reads one chunk off the SCO socket and either
// resyncs/decodes mSBC (forwarding PCM to the mic pipe and opportunistically
// emitting one encoded chunk back) or, for CVSD, auto-detects the MTU on
// the first packet and forwards the raw bytes to the mic pipe, per spec
// section 4.8's "On bt-readable" branch.
func (w *Worker) handleBTReadable() error {
	t := w.Transport
	sc := t.Sco

	if sc.SelectedCodec() == transport.CodecMSBC {
		buf := make([]byte, scoChunk*2)
		n, err := btRead(t.BTFD, buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return unix.ECONNRESET
		}
		w.dec.Write(buf[:n])
		pcm := w.dec.Decode()
		if len(pcm) > 0 {
			if sc.Mic != nil && sc.Mic.IsOpen() {
				if _, err := pcmio.WriteFrames(sc.Mic, pcm); err != nil && err != pcmio.ErrClosed {
					w.Log.Warning("sco: mic pcm write", "error", err)
				}
			}
		}
		if w.enc != nil && w.enc.Ready() && w.enc.Buffered() >= scoChunk {
			chunk := w.enc.Read(scoChunk)
			if err := btWrite(t.BTFD, chunk); err != nil {
				return err
			}
		}
		return nil
	}

	buf := make([]byte, cvsdReadBuf)
	n, err := btRead(t.BTFD, buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return unix.ECONNRESET
	}
	if !w.cvsdMTUKnown {
		t.ReadMTU = n
		t.WriteMTU = n
		w.cvsdMTUKnown = true
	}
	if sc.Mic != nil && sc.Mic.IsOpen() {
		if _, err := pcmio.WriteFrames(sc.Mic, buf[:n]); err != nil && err != pcmio.ErrClosed {
			w.Log.Warning("sco: mic pcm write", "error", err)
		}
	}
	return nil
}

func peerClosed(err error) bool {
	return err == unix.ECONNRESET || err == unix.ENOTCONN || err == unix.EPIPE
}

func btRead(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		return n, err
	}
}

func btWrite(fd int, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := unix.Write(fd, buf[total:])
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return err
		}
		total += n
	}
	return nil
}
