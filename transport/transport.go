/*
NAME
  transport.go

DESCRIPTION
  transport.go defines Transport and Pcm, the shared data model between
  the control plane (out of scope for this module) and the per-transport
  workers in a2dp, sco and hfp.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package transport provides the shared per-connection data model used by
// the A2DP, SCO and HFP workers: Transport and its embedded Pcm endpoints.
//
// Ownership follows the rule in the design notes: the control plane (an
// external collaborator, out of scope here) mutates fields under Transport's
// mutex and signals workers via the Event descriptor; a worker reads fields
// without locking and accepts eventual consistency, and writes back only the
// handful of fields the design notes call out (BT fd clearing, io-sync
// resets, paired SCO pcm fds).
package transport

import (
	"sync"

	"github.com/pkg/errors"
)

// Profile identifies the Bluetooth audio profile a Transport serves.
type Profile uint8

const (
	ProfileA2DPSource Profile = iota
	ProfileA2DPSink
	ProfileHFPAG
	ProfileHSPAG
)

func (p Profile) String() string {
	switch p {
	case ProfileA2DPSource:
		return "A2DP-source"
	case ProfileA2DPSink:
		return "A2DP-sink"
	case ProfileHFPAG:
		return "HFP-AG"
	case ProfileHSPAG:
		return "HSP-AG"
	default:
		return "unknown"
	}
}

// Codec identifies the codec negotiated for a Transport.
type Codec uint8

const (
	CodecSBC Codec = iota
	CodecAAC
	CodecCVSD
	CodecMSBC
)

func (c Codec) String() string {
	switch c {
	case CodecSBC:
		return "SBC"
	case CodecAAC:
		return "AAC"
	case CodecCVSD:
		return "CVSD"
	case CodecMSBC:
		return "mSBC"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a Transport.
type State uint8

const (
	StateIdle State = iota
	StatePending
	StateActive
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ReleaseFunc is invoked exactly once by a worker on fatal error or clean
// shutdown. Implementations close/clear the fds they own and transition
// transport state; it must be idempotent-safe to call from worker code but
// the worker itself guarantees single invocation via sync.Once.
type ReleaseFunc func()

// Pcm is a unidirectional named-pipe endpoint, as described in spec section
// 3. The Path and release callback are owned by the control plane; FD is
// opened/closed exclusively by the worker that owns this Pcm.
type Pcm struct {
	mu      sync.Mutex
	Path    string      // Pipe filesystem path. Empty means "not yet requested".
	FD      int         // Open file descriptor, -1 when closed.
	Release ReleaseFunc // Invoked by the control plane on external disconnect.
}

// NewPcm returns a Pcm with no path and a closed FD, matching the "created
// when a client attaches" lifecycle from spec section 3.
func NewPcm() *Pcm {
	return &Pcm{FD: -1}
}

// SetPath installs the pipe path and resets FD to closed. Called by the
// control plane when a client attaches the PCM.
func (p *Pcm) SetPath(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Path = path
	p.FD = -1
}

// IsOpen reports whether the worker currently holds an open FD for this Pcm.
func (p *Pcm) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.FD != -1
}

// getPath, fd and setFD are the narrow, lock-protected accessors behind
// PathAdvisory, FDAdvisory and SetFDFromWorker, which the pcmio package
// uses; everything else about Pcm's lifecycle lives in pcmio so that
// the blocking syscalls stay out of this struct-only package.
func (p *Pcm) getPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Path
}

func (p *Pcm) fd() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.FD
}

func (p *Pcm) setFD(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FD = fd
}

// PathAdvisory returns the pipe path under the worker's read-without-locking
// contract; it is advisory, matching the design note that worker reads of
// control-plane-owned fields need no lock.
func (p *Pcm) PathAdvisory() string { return p.getPath() }

// FDAdvisory returns the current pipe file descriptor, or -1 if closed.
func (p *Pcm) FDAdvisory() int { return p.fd() }

// SetFDFromWorker is called only by pcmio, from inside the worker that owns
// this Pcm, to update the FD field after open/close.
func (p *Pcm) SetFDFromWorker(fd int) { p.setFD(fd) }

// ReleaseOnce invokes Release, if set, once per call. Unlike
// Transport.ReleaseOnce it keeps no record of earlier calls, so each close
// of a reopened Pcm invokes Release again.
func (p *Pcm) ReleaseOnce() {
	p.mu.Lock()
	r := p.Release
	p.mu.Unlock()
	if r != nil {
		r()
	}
}

// A2DP holds the fields specific to an A2DP-source or A2DP-sink Transport:
// the PCM endpoint and the per-channel volume/mute state the control plane
// maintains (see spec section 3).
type A2DP struct {
	Pcm *Pcm

	mu       sync.Mutex
	Volume   [2]uint8 // 7-bit volumes, one per channel.
	Mute     [2]bool
}

func (a *A2DP) GetVolume(ch int) (vol uint8, muted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Volume[ch], a.Mute[ch]
}

func (a *A2DP) SetVolume(ch int, vol uint8, muted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Volume[ch] = vol
	a.Mute[ch] = muted
}

// Rfcomm holds the fields specific to an HFP-AG Transport's RFCOMM control
// channel: a back-reference to its paired SCO transport (resolved via a
// lookup rather than co-ownership, per the design notes) and the negotiated
// HF feature bitmask.
type Rfcomm struct {
	mu        sync.Mutex
	ScoLookup func() *Transport // Resolves the paired SCO transport; nil until paired.
	HFFeatures uint32
}

func (r *Rfcomm) Paired() *Transport {
	r.mu.Lock()
	lookup := r.ScoLookup
	r.mu.Unlock()
	if lookup == nil {
		return nil
	}
	return lookup()
}

func (r *Rfcomm) Features() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.HFFeatures
}

func (r *Rfcomm) SetFeatures(f uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.HFFeatures = f
}

// Sco holds the fields specific to an HFP/HSP Sco Transport: speaker and
// microphone PCM endpoints, gains, the selected SCO codec and a snapshot of
// the paired RFCOMM transport's HF features.
//
// AcquireLink/ReleaseLink are control-plane-provided hooks (out of scope for
// this module, like ReleaseFunc) for the actual Bluetooth SCO link
// connect/disconnect spec section 4.8 describes ("acquire the BT SCO
// connection" / "release the BT SCO connection, freeing radio bandwidth");
// either may be nil, in which case the worker treats the link as already
// established for the life of the Transport.
type Sco struct {
	Speaker *Pcm
	Mic     *Pcm

	AcquireLink func() error
	ReleaseLink func()

	mu         sync.Mutex
	MicGain    uint8
	SpkGain    uint8
	ScoCodec   Codec
	HFFeatures uint32
}

func (s *Sco) Gains() (mic, spk uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MicGain, s.SpkGain
}

func (s *Sco) SetGains(mic, spk uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MicGain, s.SpkGain = mic, spk
}

func (s *Sco) SelectedCodec() Codec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ScoCodec
}

func (s *Sco) SetCodec(c Codec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ScoCodec = c
}

// IOSync is implemented by iosync.Sync; it's declared here as an interface so
// that transport doesn't need to import iosync, avoiding a cycle since
// iosync has no need to know about Transport.
type IOSync interface {
	Reset()
}

// Transport is the per-connection context shared between a worker and the
// control plane. See spec section 3 and section 5 for the ownership rules:
// the control plane mutates Volume/Mute/State/Codec/Config/Pcm-path/FD
// fields under its mutex and signals the worker via EventFD; the worker reads these
// fields without locking, and writes back only BT FD clearing, io-sync
// resets and paired-SCO pcm fd updates.
type Transport struct {
	mu sync.Mutex

	Profile Profile
	Codec   Codec

	BTFD     int // Bluetooth socket fd, -1 once released.
	EventFD  int // eventfd used as the counting signal from the control plane.
	ReadMTU  int
	WriteMTU int

	state State

	// Config is the opaque, codec-pipeline-interpreted configuration blob
	// (A2DP codec configuration element, or nothing for HFP/SCO).
	Config []byte

	Release ReleaseFunc

	A2DP   *A2DP
	Rfcomm *Rfcomm
	Sco    *Sco

	releaseOnce sync.Once
}

// New returns a Transport with BTFD/EventFD marked closed and state Idle.
func New(p Profile) *Transport {
	return &Transport{Profile: p, BTFD: -1, EventFD: -1, state: StateIdle}
}

// State returns the transport's current lifecycle state. Workers read this
// without locking per the design note; the accessor still takes the mutex
// since the control plane writes it concurrently and Go's race detector
// otherwise flags the read.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState is called by the control plane to transition transport state.
func (t *Transport) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

// ClearBTFD is one of the few fields a worker may write directly: on BT
// socket EOF/error the worker clears the fd so the control plane observes
// the transport as released.
func (t *Transport) ClearBTFD() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.BTFD = -1
}

// Validate checks the invariant-state preconditions spec section 7 calls
// "invalid state": a transport must have a valid BT fd and positive MTUs
// before a worker may start.
func (t *Transport) Validate() error {
	if t.BTFD < 0 {
		return errors.New("transport: bt fd not set")
	}
	if t.ReadMTU <= 0 || t.WriteMTU <= 0 {
		return errors.Errorf("transport: invalid mtu (read=%d write=%d)", t.ReadMTU, t.WriteMTU)
	}
	return nil
}

// ReleaseOnce invokes the transport's release callback exactly once,
// satisfying the cancellation contract from spec section 5.
func (t *Transport) ReleaseOnce() {
	t.releaseOnce.Do(func() {
		if t.Release != nil {
			t.Release()
		}
	})
}
