/*
NAME
  hfp.go

DESCRIPTION
  hfp.go implements the RFCOMM/HFP state machine (spec component C9,
  section 4.9): the per-command dispatch table, the AG features bitmask,
  gain-change unsolicited responses, and response framing.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package hfp implements the Hands-Free Profile RFCOMM control-channel
// worker (spec section 4.9): AT command dispatch, AG feature negotiation,
// codec selection hand-off to the paired SCO transport, and unsolicited
// gain-change notifications.
package hfp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/btsock"
	"github.com/kuikka/btaudio/hfp/at"
	"github.com/kuikka/btaudio/transport"
)

const (
	slotEvent  = 0
	slotRfcomm = 1

	readBufSize = 64

	// HF features bit 7: HF advertises codec negotiation support (spec
	// section 4.9's "+BRSF" row).
	hfBitCodecNegotiation = 1 << 7

	// AG features bits this module sets (spec section 4.9).
	agBitEnhancedCallStatus = 1 << 6
	agBitCodecNegotiation   = 1 << 9
)

// noGain is the sentinel meaning "no gain observed yet", so the worker's
// first event doesn't spuriously emit a +VGM/+VGS notification.
const noGain = 0xFF

// Worker runs the RFCOMM/HFP state machine for one Transport (spec section
// 4.9). MSBCBuild reports whether this build negotiates mSBC at all; when
// false the AG always forces CVSD regardless of HF capability.
type Worker struct {
	Transport *transport.Transport
	MSBCBuild bool
	Log       logging.Logger

	lastMicGain uint8
	lastSpkGain uint8
}

// Run executes the worker loop until the transport is released or a fatal
// error occurs. It blocks; callers run it in its own goroutine.
func (w *Worker) Run() error {
	t := w.Transport
	if err := t.Validate(); err != nil {
		return errors.Wrap(err, "hfp: init")
	}
	if t.Rfcomm == nil {
		return errors.New("hfp: no Rfcomm data")
	}
	w.lastMicGain, w.lastSpkGain = noGain, noGain

	ps := btsock.NewPollSet(t.EventFD, t.BTFD)
	buf := make([]byte, readBufSize)

	for {
		ps.Arm(slotEvent, t.EventFD, true)
		ps.Arm(slotRfcomm, t.BTFD, true)
		if err := ps.Wait(-1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "hfp: poll")
		}

		if ps.Readable(slotEvent) {
			if _, err := btsock.DrainEvent(t.EventFD); err != nil {
				w.Log.Warning("hfp: drain event fd", "error", err)
			}
			if err := w.checkGainChange(); err != nil {
				w.Log.Warning("hfp: gain notify", "error", err)
			}
		}

		if !ps.Readable(slotRfcomm) {
			continue
		}
		n, err := unix.Read(t.BTFD, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			if peerClosed(err) {
				t.ClearBTFD()
				t.ReleaseOnce()
				return nil
			}
			w.Log.Warning("hfp: rfcomm read", "error", err)
			continue
		}
		if n == 0 {
			t.ClearBTFD()
			t.ReleaseOnce()
			return nil
		}
		if err := w.handleLine(string(buf[:n])); err != nil {
			w.Log.Warning("hfp: handle command", "error", err)
		}
	}
}

func peerClosed(err error) bool {
	return err == unix.ECONNRESET || err == unix.ENOTCONN || err == unix.EPIPE
}

// checkGainChange implements spec section 4.9's "on event" step: compare
// last-known mic/speaker gain against the paired SCO transport's fields
// and emit +VGM/+VGS on change.
func (w *Worker) checkGainChange() error {
	sco := w.Transport.Rfcomm.Paired()
	if sco == nil || sco.Sco == nil {
		return nil
	}
	mic, spk := sco.Sco.Gains()
	if w.lastMicGain == noGain {
		w.lastMicGain, w.lastSpkGain = mic, spk
		return nil
	}
	if mic != w.lastMicGain {
		w.lastMicGain = mic
		if err := w.write(at.FrameSolicited(fmt.Sprintf("+VGM=%d", mic))); err != nil {
			return err
		}
	}
	if spk != w.lastSpkGain {
		w.lastSpkGain = spk
		if err := w.write(at.FrameSolicited(fmt.Sprintf("+VGS=%d", spk))); err != nil {
			return err
		}
	}
	return nil
}

// handleLine parses one RFCOMM read as an AT command and dispatches it,
// writing the framed response(s).
func (w *Worker) handleLine(line string) error {
	cmd, err := at.Parse(line)
	if err != nil {
		return w.write(at.FrameResponse("ERROR"))
	}
	res := w.dispatch(cmd)
	for _, e := range res.extra {
		if err := w.write(at.FrameResponse(e)); err != nil {
			return err
		}
	}
	if res.isError {
		return w.write(at.FrameResponse("ERROR"))
	}
	if res.ok {
		return w.write(at.FrameResponse("OK"))
	}
	return nil
}

// dispatchResult carries the text lines a command produces before its
// terminal status line, and whether that status is OK/ERROR/neither
// (CMER emits its own OK and must not also get the generic one).
type dispatchResult struct {
	extra   []string
	ok      bool
	isError bool
}

// dispatch implements spec section 4.9's command table.
func (w *Worker) dispatch(cmd at.Command) dispatchResult {
	t := w.Transport
	switch strings.ToUpper(cmd.Name) {
	case "+BRSF":
		return w.handleBRSF(cmd)
	case "+BAC":
		codecs := at.SplitCodecs(cmd.Value)
		if sco := t.Rfcomm.Paired(); sco != nil && sco.Sco != nil {
			for _, c := range codecs {
				if c == 2 {
					sco.Sco.SetCodec(transport.CodecMSBC)
				}
			}
		}
		return dispatchResult{ok: true}
	case "+CIND":
		if cmd.Type == at.TEST {
			return dispatchResult{extra: []string{cindSchema}, ok: true}
		}
		return dispatchResult{extra: []string{cindSnapshot}, ok: true}
	case "+CMER":
		return w.handleCMER()
	case "+BCS":
		w.Log.Info("hfp: HF confirmed codec", "value", cmd.Value)
		return dispatchResult{ok: true}
	case "+CHLD":
		if cmd.Type == at.TEST {
			return dispatchResult{extra: []string{"+CHLD: (0,1,2,3)"}, ok: true}
		}
		return dispatchResult{ok: true}
	case "+VGM":
		w.setGain(cmd.Value, true)
		return dispatchResult{ok: true}
	case "+VGS":
		w.setGain(cmd.Value, false)
		return dispatchResult{ok: true}
	case "+IPHONEACCEV":
		w.Log.Debug("hfp: iphoneaccev", "value", cmd.Value)
		return dispatchResult{ok: true}
	case "+XAPL":
		return dispatchResult{extra: []string{"+XAPL=BlueALSA,0"}, ok: true}
	case "RING", "+CKPD", "+BTRH", "+NREC", "+CCWA", "+BIA":
		return dispatchResult{ok: true}
	default:
		return dispatchResult{isError: true}
	}
}

func (w *Worker) handleBRSF(cmd at.Command) dispatchResult {
	t := w.Transport
	hfFeat, _ := strconv.ParseUint(cmd.Value, 10, 32)
	t.Rfcomm.SetFeatures(uint32(hfFeat))

	mSBCEnabled := w.MSBCBuild && uint32(hfFeat)&hfBitCodecNegotiation != 0
	if !mSBCEnabled {
		if sco := t.Rfcomm.Paired(); sco != nil && sco.Sco != nil {
			sco.Sco.SetCodec(transport.CodecCVSD)
		}
	}

	agFeat := uint32(agBitEnhancedCallStatus)
	if mSBCEnabled {
		agFeat |= agBitCodecNegotiation
	}
	return dispatchResult{extra: []string{fmt.Sprintf("+BRSF: %d", agFeat)}, ok: true}
}

// handleCMER implements the terminal step of service-level-connection
// setup: emit OK, then, if a codec other than CVSD was negotiated, emit
// +BCS with that codec and skip the generic OK (already sent above).
func (w *Worker) handleCMER() dispatchResult {
	lines := []string{"OK"}
	sco := w.Transport.Rfcomm.Paired()
	if sco != nil && sco.Sco != nil {
		if c := sco.Sco.SelectedCodec(); c != transport.CodecCVSD {
			lines = append(lines, fmt.Sprintf("+BCS: %d", hfpCodecID(c)))
		}
	}
	return dispatchResult{extra: lines}
}

func hfpCodecID(c transport.Codec) int {
	if c == transport.CodecMSBC {
		return 2
	}
	return 1
}

func (w *Worker) setGain(value string, mic bool) {
	n, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return
	}
	sco := w.Transport.Rfcomm.Paired()
	if sco == nil || sco.Sco == nil {
		return
	}
	curMic, curSpk := sco.Sco.Gains()
	if mic {
		sco.Sco.SetGains(uint8(n), curSpk)
	} else {
		sco.Sco.SetGains(curMic, uint8(n))
	}
}

func (w *Worker) write(s string) error {
	buf := []byte(s)
	total := 0
	for total < len(buf) {
		n, err := unix.Write(w.Transport.BTFD, buf[total:])
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

const cindSnapshot = "+CIND: 0,0,1,4,0,4,0"

const cindSchema = `+CIND: ("call",(0,1)),("callsetup",(0-3)),("service",(0,1)),("signal",(0-5)),("roam",(0,1)),("battchg",(0-5)),("callheld",(0-2))`
