/*
NAME
  sbc_test.go

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package a2dp

import (
	"math"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/btsock"
	"github.com/kuikka/btaudio/codec/sbc"
	"github.com/kuikka/btaudio/engine/config"
	"github.com/kuikka/btaudio/internal/testutil"
	"github.com/kuikka/btaudio/rtp"
	"github.com/kuikka/btaudio/transport"
)

func sineWave(n int, freq, rate float64, amp int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(float64(amp) * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return out
}

func interleave(l, r []int16) []int16 {
	out := make([]int16, len(l)+len(r))
	for i := range l {
		out[2*i] = l[i]
		out[2*i+1] = r[i]
	}
	return out
}

func int16sToBytes(samples []int16) []byte { return int16ToBytes(samples) }

func newEventFD(t *testing.T) int {
	t.Helper()
	fd, err := btsock.NewEventFD()
	if err != nil {
		t.Skipf("eventfd unavailable: %v", err)
	}
	return fd
}

// TestSBCSourceFirstPacket covers spec section 8 scenario 3: a 512-sample
// (per channel) stereo sine buffer at 44.1kHz, MTU 672, produces an RTP
// packet with the SBC payload type and a nonzero frame_count.
func TestSBCSourceFirstPacket(t *testing.T) {
	evFD := newEventFD(t)
	defer unix.Close(evFD)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	btLocal, btRemote := fds[0], fds[1]
	defer unix.Close(btLocal)
	defer unix.Close(btRemote)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()

	tr := transport.New(transport.ProfileA2DPSource)
	tr.Codec = transport.CodecSBC
	tr.BTFD = btLocal
	tr.EventFD = evFD
	tr.ReadMTU = 672
	tr.WriteMTU = 672
	tr.A2DP = &transport.A2DP{Pcm: transport.NewPcm()}
	tr.A2DP.Pcm.SetFDFromWorker(int(r.Fd()))
	tr.A2DP.SetVolume(0, 127, false)
	tr.A2DP.SetVolume(1, 127, false)

	cfg := sbc.Config{SampleRate: 44100, Channels: 2, Subbands: 8, Blocks: 16, Bitpool: 32}
	src := &SBCSource{
		Transport: tr,
		Codec:     cfg,
		Global:    config.Config{A2DPVolumePassthrough: true},
		Log:       testutil.NewLogger(t),
	}

	const n = 512
	pcm := interleave(sineWave(n, 440, 44100, 8000), sineWave(n, 440, 44100, 8000))

	done := make(chan error, 1)
	go func() { done <- src.Run() }()

	go func() {
		w.Write(int16sToBytes(pcm))
	}()

	buf := make([]byte, tr.WriteMTU)
	if err := unix.SetNonblock(btRemote, false); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	n2, err := unix.Read(btRemote, buf)
	if err != nil {
		t.Fatalf("reading emitted packet: %v", err)
	}

	pkt, err := rtp.Parse(buf[:n2])
	if err != nil {
		t.Fatalf("rtp.Parse: %v", err)
	}
	if pkt.PacketType != rtp.PayloadType {
		t.Errorf("unexpected payload type %d", pkt.PacketType)
	}
	if len(pkt.Payload) < 1 {
		t.Fatalf("empty payload")
	}
	frameCount := int(pkt.Payload[0])
	if frameCount == 0 {
		t.Errorf("expected nonzero frame_count, got 0")
	}

	w.Close() // Triggers PCM EOF; the source worker should exit.
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("source worker did not exit after PCM EOF")
	}
}

// TestSBCSinkDecodesPacket feeds one hand-encoded SBC-in-RTP packet over a
// socketpair and checks the sink worker writes decoded PCM to the pipe.
func TestSBCSinkDecodesPacket(t *testing.T) {
	evFD := newEventFD(t)
	defer unix.Close(evFD)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	btLocal, btRemote := fds[0], fds[1]
	defer unix.Close(btLocal)
	defer unix.Close(btRemote)

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	tr := transport.New(transport.ProfileA2DPSink)
	tr.Codec = transport.CodecSBC
	tr.BTFD = btLocal
	tr.EventFD = evFD
	tr.ReadMTU = 672
	tr.WriteMTU = 672
	tr.A2DP = &transport.A2DP{Pcm: transport.NewPcm()}
	tr.A2DP.Pcm.SetPath("test-sink-pipe")
	tr.A2DP.Pcm.SetFDFromWorker(int(w.Fd()))

	sink := &SBCSink{Transport: tr, Log: testutil.NewLogger(t)}
	done := make(chan error, 1)
	go func() { done <- sink.Run() }()

	cfg := sbc.Config{SampleRate: 44100, Channels: 2, Subbands: 8, Blocks: 16, Bitpool: 32}
	enc, err := sbc.NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	n := cfg.CodeSize()
	pcm := interleave(sineWave(n, 440, 44100, 8000), sineWave(n, 440, 44100, 8000))
	frame, err := enc.Encode(pcm)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	framer := rtp.NewFramer(44100)
	payload := append([]byte{1}, frame...)
	pkt := framer.Next(payload, false)

	if _, err := unix.Write(btRemote, pkt); err != nil {
		t.Fatalf("write packet: %v", err)
	}

	readBuf := make([]byte, len(pcm)*2)
	r.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := 0
	for got < len(readBuf) {
		m, err := r.Read(readBuf[got:])
		if err != nil {
			t.Fatalf("reading decoded pcm: %v", err)
		}
		got += m
	}

	unix.Close(btRemote) // Peer close; the sink worker's bt read should see EOF.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink worker did not exit after bt close")
	}
}
