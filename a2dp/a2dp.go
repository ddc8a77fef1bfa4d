/*
NAME
  a2dp.go

DESCRIPTION
  a2dp.go provides the shared plumbing the SBC and AAC source/sink
  workers build on (spec components C5/C6): poll-slot indices, the BT
  socket read/write helpers with the peer-closed disposition from spec
  section 7's error table, the event-counter drain, and the byte/int16
  sample conversions.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package a2dp implements the A2DP source and sink worker loops (spec
// sections 4.5 and 4.6): PCM-to-BT and BT-to-PCM pipelines around the SBC
// and AAC-LATM codec pipelines, RTP framing, the rate pacer and the volume
// scaler.
package a2dp

import (
	"encoding/binary"

	"github.com/ausocean/utils/logging"
	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/btsock"
)

// Poll slot indices shared by every worker in this package: event fd is
// always slot 0 (spec section 5's "multi-FD wait"). Each worker polls only
// two fds (event plus either the BT socket or the PCM pipe, per direction),
// so slotBT and slotPCM share index 1 rather than needing a 3-slot set.
const (
	slotEvent = 0
	slotBT    = 1
	slotPCM   = 1
)

// peerClosed reports whether err is one of the "peer closed" dispositions
// from spec section 7 (BT read returns 0 is handled by the caller directly;
// this covers write-side ECONNRESET/ENOTCONN).
func peerClosed(err error) bool {
	return err == unix.ECONNRESET || err == unix.ENOTCONN || err == unix.EPIPE
}

// btRead reads up to len(buf) bytes from the transport's BT socket,
// retrying on EINTR/EAGAIN.
func btRead(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		return n, err
	}
}

// btWrite writes buf in full to the transport's BT socket, retrying
// EINTR/EAGAIN, per spec section 5's blocking-write suspension point.
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

// drainEvent drains the transport's event fd, logging but not propagating
// a transient read error since the next poll cycle will simply re-observe
// readiness.
func drainEvent(fd int, log logging.Logger) {
	if _, err := btsock.DrainEvent(fd); err != nil {
		log.Warning("a2dp: drain event fd", "error", err)
	}
}

// bytesToInt16 reinterprets a little-endian PCM byte buffer as interleaved
// 16-bit samples.
func bytesToInt16(buf []byte) []int16 {
	out := make([]int16, len(buf)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out
}

// int16ToBytes is bytesToInt16's inverse, used when writing decoded PCM to
// the output pipe.
func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
