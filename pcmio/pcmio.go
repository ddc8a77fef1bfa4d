/*
NAME
  pcmio.go

DESCRIPTION
  pcmio.go implements the PCM pipe lifecycle (spec component C1): blocking
  open-for-read, retrying non-blocking open-for-write, and atomic
  read/write over a transport.Pcm's named pipe, including the EOF/EPIPE
  release semantics the A2DP and SCO worker loops depend on.

AUTHOR
  btaudio contributors, open/read/write retry idiom adapted from
  Daedaluz-goserial's raw-fd handling.

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package pcmio implements blocking, atomic PCM pipe I/O against a
// transport.Pcm endpoint (spec section 4.1).
package pcmio

import (
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/transport"
)

// ErrClosed is returned by ReadFrames on pipe EOF and by WriteFrames on
// EPIPE. Both cases already closed and cleared the Pcm's fd (so IsOpen
// reports false and a later OpenForRead/OpenForWrite/TryOpenFor* can
// reattach) and invoked the Pcm's release callback; the caller's worker
// loop should treat this as a clean end of this PCM endpoint's lifetime,
// not a fatal transport error.
var ErrClosed = errors.New("pcmio: pipe closed")

const writeOpenRetries = 5
const writeOpenRetryDelay = 10 * time.Millisecond

var ignoreSigpipeOnce sync.Once

// ignoreSigpipe installs a process-wide handler that ignores SIGPIPE, so a
// write to a broken pipe surfaces as EPIPE on the write call rather than
// terminating the process (spec section 4.1's open-for-write step).
func ignoreSigpipe() {
	ignoreSigpipeOnce.Do(func() {
		signal.Ignore(syscall.SIGPIPE)
	})
}

// OpenForRead opens pcm's pipe path read-only, blocking until a writer
// attaches. It is a no-op if pcm already has an open fd.
func OpenForRead(pcm *transport.Pcm) error {
	if pcm.IsOpen() {
		return nil
	}
	path := pcm.PathAdvisory()
	if path == "" {
		return errors.New("pcmio: path not set")
	}
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "pcmio: open %s for read", path)
	}
	pcm.SetFDFromWorker(fd)
	return nil
}

// OpenForWrite opens pcm's pipe path write-only. Per spec section 4.1 it
// opens non-blocking with up to 5 retries (10ms apart) to ride out a
// not-yet-attached reader, then clears the non-blocking flag once a
// connection is made.
func OpenForWrite(pcm *transport.Pcm) error {
	if pcm.IsOpen() {
		return nil
	}
	path := pcm.PathAdvisory()
	if path == "" {
		return errors.New("pcmio: endpoint not requested")
	}
	ignoreSigpipe()

	var fd int
	var err error
	for i := 0; i < writeOpenRetries; i++ {
		fd, err = unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			break
		}
		time.Sleep(writeOpenRetryDelay)
	}
	if err != nil {
		return errors.Wrapf(err, "pcmio: open %s for write", path)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return errors.Wrap(err, "pcmio: clear non-blocking")
	}
	pcm.SetFDFromWorker(fd)
	return nil
}

// TryOpenForRead attempts a single non-blocking open of pcm's pipe path for
// read, returning immediately (ok=false, err=nil) if no writer is currently
// attached rather than blocking. This is the SCO worker's "best-effort"
// speaker-PCM open (spec section 4.8), unlike A2DP's OpenForRead which may
// block indefinitely since PCM is that worker's only input.
func TryOpenForRead(pcm *transport.Pcm) (ok bool, err error) {
	if pcm.IsOpen() {
		return true, nil
	}
	path := pcm.PathAdvisory()
	if path == "" {
		return false, nil
	}
	fd, oerr := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if oerr != nil {
		if oerr == unix.ENXIO {
			return false, nil // No writer attached yet.
		}
		return false, errors.Wrapf(oerr, "pcmio: try-open %s for read", path)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return false, errors.Wrap(err, "pcmio: clear non-blocking")
	}
	pcm.SetFDFromWorker(fd)
	return true, nil
}

// TryOpenForWrite attempts a single non-blocking open of pcm's pipe path for
// write, returning (ok=false, err=nil) if no reader is attached. Used by the
// SCO worker's best-effort mic-PCM open, a lighter-weight sibling of
// OpenForWrite's multi-retry variant used where the worker must not block at
// all on this attempt.
func TryOpenForWrite(pcm *transport.Pcm) (ok bool, err error) {
	if pcm.IsOpen() {
		return true, nil
	}
	path := pcm.PathAdvisory()
	if path == "" {
		return false, nil
	}
	ignoreSigpipe()
	fd, oerr := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if oerr != nil {
		if oerr == unix.ENXIO {
			return false, nil
		}
		return false, errors.Wrapf(oerr, "pcmio: try-open %s for write", path)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return false, errors.Wrap(err, "pcmio: clear non-blocking")
	}
	pcm.SetFDFromWorker(fd)
	return true, nil
}

// Close closes pcm's fd if open and clears it.
func Close(pcm *transport.Pcm) error {
	fd := pcm.FDAdvisory()
	if fd < 0 {
		return nil
	}
	pcm.SetFDFromWorker(-1)
	return unix.Close(fd)
}

// ReadFrames fills buf completely (len(buf) must be a multiple of 2,
// one 16-bit sample per 2 bytes), retrying interrupted reads. On EOF it
// closes and clears pcm's fd, invokes pcm's release callback, and returns
// (0, ErrClosed); on any other error it returns (0, err). On success it
// returns len(buf)/2, matching spec section 4.1's atomic, all-or-nothing
// contract.
func ReadFrames(pcm *transport.Pcm, buf []byte) (int, error) {
	fd := pcm.FDAdvisory()
	total := 0
	for total < len(buf) {
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, errors.Wrap(err, "pcmio: read")
		}
		if n == 0 {
			Close(pcm)
			pcm.ReleaseOnce()
			return 0, ErrClosed
		}
		total += n
	}
	return total / 2, nil
}

// WriteFrames writes buf completely, retrying interrupted writes. On
// EPIPE it closes and clears pcm's fd, invokes pcm's release callback,
// and returns (0, ErrClosed); on any other error it returns (0, err). On
// success it returns len(buf)/2.
func WriteFrames(pcm *transport.Pcm, buf []byte) (int, error) {
	fd := pcm.FDAdvisory()
	total := 0
	for total < len(buf) {
		n, err := unix.Write(fd, buf[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EPIPE {
				Close(pcm)
				pcm.ReleaseOnce()
				return 0, ErrClosed
			}
			return 0, errors.Wrap(err, "pcmio: write")
		}
		total += n
	}
	return total / 2, nil
}
