/*
NAME
  btsock.go

DESCRIPTION
  btsock.go provides the raw AF_BLUETOOTH socket, eventfd, and poll
  primitives the A2DP/SCO/HFP workers multiplex over (spec section 5).
  golang.org/x/sys/unix has no Bluetooth address family support (its
  Sockaddr interface can't be implemented outside the package), so
  connect/bind go through raw syscalls against hand-packed sockaddr
  buffers, the same unsafe.Pointer-plus-raw-syscall idiom
  Daedaluz-goserial's ioctl_linux.go uses for termios/serial control that
  golang.org/x/sys/unix also doesn't wrap.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package btsock implements raw Bluetooth L2CAP/RFCOMM/SCO socket
// creation, the eventfd counting signal, and unix.Poll-based multiplexing
// the per-transport workers use (spec section 5). It targets Linux, and
// assumes a little-endian host, consistent with the embedded/SBC Linux
// targets this daemon runs on.
package btsock

import (
	"encoding/binary"
	"strconv"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	afBluetooth = 31 // AF_BLUETOOTH, not defined by golang.org/x/sys/unix.

	btprotoL2CAP  = 0
	btprotoSCO    = 2
	btprotoRFCOMM = 3
)

// Addr is a Bluetooth device address (bdaddr_t), stored in the reversed
// byte order the kernel's bdaddr_t uses on the wire.
type Addr [6]byte

// ParseAddr parses a colon-separated MAC-style address ("AA:BB:CC:DD:EE:FF")
// into an Addr.
func ParseAddr(s string) (Addr, error) {
	var a Addr
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return a, errors.Errorf("btsock: invalid address %q", s)
	}
	for i := 0; i < 6; i++ {
		b, err := strconv.ParseUint(parts[5-i], 16, 8)
		if err != nil {
			return a, errors.Errorf("btsock: invalid address %q", s)
		}
		a[i] = byte(b)
	}
	return a, nil
}

// OpenL2CAP creates a raw L2CAP socket (A2DP's transport protocol).
func OpenL2CAP() (int, error) {
	return unix.Socket(afBluetooth, unix.SOCK_SEQPACKET, btprotoL2CAP)
}

// OpenRFCOMM creates an RFCOMM socket (HFP/HSP's control channel).
func OpenRFCOMM() (int, error) {
	return unix.Socket(afBluetooth, unix.SOCK_STREAM, btprotoRFCOMM)
}

// OpenSCO creates a SCO socket (HFP/HSP's voice channel).
func OpenSCO() (int, error) {
	return unix.Socket(afBluetooth, unix.SOCK_SEQPACKET, btprotoSCO)
}

func l2capSockaddr(psm uint16, addr Addr, cid uint16) []byte {
	buf := make([]byte, 14)
	binary.LittleEndian.PutUint16(buf[0:2], afBluetooth)
	binary.LittleEndian.PutUint16(buf[2:4], psm)
	copy(buf[4:10], addr[:])
	binary.LittleEndian.PutUint16(buf[10:12], cid)
	return buf
}

func rfcommSockaddr(addr Addr, channel uint8) []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint16(buf[0:2], afBluetooth)
	copy(buf[2:8], addr[:])
	buf[8] = channel
	return buf
}

func scoSockaddr(addr Addr) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:2], afBluetooth)
	copy(buf[2:8], addr[:])
	return buf
}

func sysConnect(fd int, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if errno != 0 {
		return errno
	}
	return nil
}

func sysBind(fd int, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if errno != 0 {
		return errno
	}
	return nil
}

// ConnectL2CAP connects fd to addr on the given PSM.
func ConnectL2CAP(fd int, addr Addr, psm uint16) error {
	return sysConnect(fd, l2capSockaddr(psm, addr, 0))
}

// BindL2CAP binds fd for listening on the given PSM against BDADDR_ANY.
func BindL2CAP(fd int, psm uint16) error {
	return sysBind(fd, l2capSockaddr(psm, Addr{}, 0))
}

// ConnectRFCOMM connects fd to addr on the given RFCOMM channel.
func ConnectRFCOMM(fd int, addr Addr, channel uint8) error {
	return sysConnect(fd, rfcommSockaddr(addr, channel))
}

// BindRFCOMM binds fd for listening on the given RFCOMM channel against
// BDADDR_ANY.
func BindRFCOMM(fd int, channel uint8) error {
	return sysBind(fd, rfcommSockaddr(Addr{}, channel))
}

// ConnectSCO connects fd to addr's SCO endpoint.
func ConnectSCO(fd int, addr Addr) error {
	return sysConnect(fd, scoSockaddr(addr))
}

// NewEventFD creates the non-blocking counting-signal eventfd spec
// section 5 calls the "event descriptor".
func NewEventFD() (int, error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

// SignalEvent increments an eventfd's counter by one.
func SignalEvent(fd int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(fd, buf[:])
	return err
}

// DrainEvent reads and resets an eventfd's counter, returning its value.
func DrainEvent(fd int) (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	if err != nil {
		return 0, err
	}
	if n < 8 {
		return 0, errors.New("btsock: short eventfd read")
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// PollSet wraps unix.Poll over a fixed set of fds, giving workers the
// {event-fd, bt-fd, pcm-fd...} multiplexing spec section 5 describes.
type PollSet struct {
	fds []unix.PollFd
}

// NewPollSet builds a PollSet watching fds for readability. A negative fd
// is watched with no event flags, letting callers keep a stable slot
// index for an endpoint that is not currently open (spec section 4.8's
// "poll {event, bt}" where PCM slots come and go).
func NewPollSet(fds ...int) *PollSet {
	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i].Fd = int32(fd)
		if fd >= 0 {
			pfds[i].Events = unix.POLLIN
		}
	}
	return &PollSet{fds: pfds}
}

// Arm enables or disables the POLLIN watch on slot i without rebuilding
// the set, matching spec section 4.8's "disarm the PCM-in poll slot".
func (p *PollSet) Arm(i int, fd int, readable bool) {
	p.fds[i].Fd = int32(fd)
	if readable && fd >= 0 {
		p.fds[i].Events = unix.POLLIN
	} else {
		p.fds[i].Events = 0
	}
	p.fds[i].Revents = 0
}

// Wait blocks until an event, or timeoutMs elapses (-1 blocks forever).
func (p *PollSet) Wait(timeoutMs int) error {
	_, err := unix.Poll(p.fds, timeoutMs)
	return err
}

// Readable reports whether slot i was reported readable by the last Wait.
func (p *PollSet) Readable(i int) bool { return p.fds[i].Revents&unix.POLLIN != 0 }

// Err reports whether slot i was reported as errored, hung up, or invalid
// by the last Wait.
func (p *PollSet) Err(i int) bool {
	return p.fds[i].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0
}
