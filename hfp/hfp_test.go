/*
NAME
  hfp_test.go

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package hfp

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/btsock"
	"github.com/kuikka/btaudio/internal/testutil"
	"github.com/kuikka/btaudio/transport"
)

func newEventFD(t *testing.T) int {
	t.Helper()
	fd, err := btsock.NewEventFD()
	if err != nil {
		t.Skipf("eventfd unavailable: %v", err)
	}
	return fd
}

func readMessage(t *testing.T, fd int) string {
	t.Helper()
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	if _, err := unix.Poll(pfds, 2000); err != nil {
		t.Fatalf("poll rfcomm response: %v", err)
	}
	if pfds[0].Revents&unix.POLLIN == 0 {
		t.Fatal("timed out reading rfcomm response")
	}
	buf := make([]byte, 256)
	n, err := unix.Read(fd, buf)
	if err != nil {
		t.Fatalf("reading rfcomm response: %v", err)
	}
	return string(buf[:n])
}

// TestHFPBRSFNegotiatesMSBC covers spec section 8 scenario 1: HF advertises
// codec-negotiation support and the build supports mSBC, so the AG enables
// its own codec-negotiation bit alongside enhanced-call-status.
func TestHFPBRSFNegotiatesMSBC(t *testing.T) {
	evFD := newEventFD(t)
	defer unix.Close(evFD)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	btLocal, btRemote := fds[0], fds[1]
	defer unix.Close(btLocal)
	defer unix.Close(btRemote)

	tr := transport.New(transport.ProfileHFPAG)
	tr.BTFD = btLocal
	tr.EventFD = evFD
	tr.ReadMTU, tr.WriteMTU = 64, 64
	tr.Release = func() {}

	scoTr := transport.New(transport.ProfileHSPAG)
	scoTr.Sco = &transport.Sco{}
	tr.Rfcomm = &transport.Rfcomm{ScoLookup: func() *transport.Transport { return scoTr }}

	w := &Worker{Transport: tr, MSBCBuild: true, Log: testutil.NewLogger(t)}
	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	if _, err := unix.Write(btRemote, []byte("AT+BRSF=128\r")); err != nil {
		t.Fatalf("write BRSF: %v", err)
	}

	want := "\r\n+BRSF: 576\r\n" // enhanced-call-status (64) | codec-negotiation (512)
	if got := readMessage(t, btRemote); got != want {
		t.Errorf("BRSF reply: got %q, want %q", got, want)
	}
	if got := readMessage(t, btRemote); got != "\r\nOK\r\n" {
		t.Errorf("trailing status: got %q", got)
	}

	unix.Close(btRemote)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hfp worker did not exit after rfcomm close")
	}
}

// TestHFPCINDTest covers spec section 8 scenario 2: a CIND TEST command
// replies with the indicator schema.
func TestHFPCINDTest(t *testing.T) {
	evFD := newEventFD(t)
	defer unix.Close(evFD)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	btLocal, btRemote := fds[0], fds[1]
	defer unix.Close(btLocal)
	defer unix.Close(btRemote)

	tr := transport.New(transport.ProfileHFPAG)
	tr.BTFD = btLocal
	tr.EventFD = evFD
	tr.ReadMTU, tr.WriteMTU = 64, 64
	tr.Release = func() {}
	tr.Rfcomm = &transport.Rfcomm{}

	w := &Worker{Transport: tr, Log: testutil.NewLogger(t)}
	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	if _, err := unix.Write(btRemote, []byte("AT+CIND=?\r")); err != nil {
		t.Fatalf("write CIND test: %v", err)
	}
	if got := readMessage(t, btRemote); got != "\r\n"+cindSchema+"\r\n" {
		t.Errorf("CIND test reply: got %q", got)
	}
	if got := readMessage(t, btRemote); got != "\r\nOK\r\n" {
		t.Errorf("trailing status: got %q", got)
	}

	if _, err := unix.Write(btRemote, []byte("AT+CIND?\r")); err != nil {
		t.Fatalf("write CIND get: %v", err)
	}
	if got := readMessage(t, btRemote); got != "\r\n"+cindSnapshot+"\r\n" {
		t.Errorf("CIND snapshot reply: got %q", got)
	}
	readMessage(t, btRemote) // trailing OK

	unix.Close(btRemote)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hfp worker did not exit after rfcomm close")
	}
}

// TestHFPCMEREmitsBCSForMSBC covers the CMER terminal step with a
// previously negotiated mSBC codec: OK then +BCS, with no extra OK.
func TestHFPCMEREmitsBCSForMSBC(t *testing.T) {
	evFD := newEventFD(t)
	defer unix.Close(evFD)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	btLocal, btRemote := fds[0], fds[1]
	defer unix.Close(btLocal)
	defer unix.Close(btRemote)

	tr := transport.New(transport.ProfileHFPAG)
	tr.BTFD = btLocal
	tr.EventFD = evFD
	tr.ReadMTU, tr.WriteMTU = 64, 64
	tr.Release = func() {}

	scoTr := transport.New(transport.ProfileHSPAG)
	scoTr.Sco = &transport.Sco{}
	scoTr.Sco.SetCodec(transport.CodecMSBC)
	tr.Rfcomm = &transport.Rfcomm{ScoLookup: func() *transport.Transport { return scoTr }}

	w := &Worker{Transport: tr, MSBCBuild: true, Log: testutil.NewLogger(t)}
	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	if _, err := unix.Write(btRemote, []byte("AT+CMER=3,0,0,1\r")); err != nil {
		t.Fatalf("write CMER: %v", err)
	}
	if got := readMessage(t, btRemote); got != "\r\nOK\r\n" {
		t.Errorf("CMER OK: got %q", got)
	}
	if got := readMessage(t, btRemote); got != "\r\n+BCS: 2\r\n" {
		t.Errorf("CMER BCS: got %q", got)
	}

	unix.Close(btRemote)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hfp worker did not exit after rfcomm close")
	}
}

// TestHFPGainChangeNotifies covers spec section 4.9's event-driven +VGM/
// +VGS unsolicited responses on a paired SCO gain change.
func TestHFPGainChangeNotifies(t *testing.T) {
	evFD := newEventFD(t)
	defer unix.Close(evFD)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	btLocal, btRemote := fds[0], fds[1]
	defer unix.Close(btLocal)
	defer unix.Close(btRemote)

	tr := transport.New(transport.ProfileHFPAG)
	tr.BTFD = btLocal
	tr.EventFD = evFD
	tr.ReadMTU, tr.WriteMTU = 64, 64
	tr.Release = func() {}

	scoTr := transport.New(transport.ProfileHSPAG)
	scoTr.Sco = &transport.Sco{}
	scoTr.Sco.SetGains(1, 1)
	tr.Rfcomm = &transport.Rfcomm{ScoLookup: func() *transport.Transport { return scoTr }}

	w := &Worker{Transport: tr, Log: testutil.NewLogger(t)}
	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	if err := btsock.SignalEvent(evFD); err != nil {
		t.Fatalf("SignalEvent (baseline): %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the baseline-establishing event drain.

	scoTr.Sco.SetGains(10, 5)
	if err := btsock.SignalEvent(evFD); err != nil {
		t.Fatalf("SignalEvent (change): %v", err)
	}

	if got := readMessage(t, btRemote); got != "+VGM=10\r" {
		t.Errorf("VGM notify: got %q", got)
	}
	if got := readMessage(t, btRemote); got != "+VGS=5\r" {
		t.Errorf("VGS notify: got %q", got)
	}

	unix.Close(btRemote)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hfp worker did not exit after rfcomm close")
	}
}
