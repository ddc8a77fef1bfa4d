/*
NAME
  engine.go

DESCRIPTION
  engine.go provides Plane, the thin orchestration layer that owns
  Transports and spawns their workers as goroutines, adapting revid.Revid's
  Start/Stop/wg lifecycle (revid/revid.go) to a registry of many concurrent
  per-transport workers instead of one pipeline.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package engine provides Plane, the minimal control-plane-adjacent
// lifecycle manager this module ships so the daemon is runnable
// end-to-end: a registry of running transport workers (a2dp/sco/hfp),
// spawned and stopped by id. The full control plane (BlueZ D-Bus
// registration, pairing, profile negotiation) is out of scope per
// spec.md section 1; Plane only does the part spec section 4.11 calls
// out as in-scope: constructing workers around Transports and managing
// their goroutine lifecycle.
package engine

import (
	"sync"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/kuikka/btaudio/engine/config"
	"github.com/kuikka/btaudio/transport"
)

// Worker is satisfied by a2dp.SBCSource/SBCSink/AACSource/AACSink,
// sco.Worker and hfp.Worker: anything whose Run blocks until the
// transport releases or a fatal error occurs.
type Worker interface {
	Run() error
}

type handle struct {
	t *transport.Transport
}

// Plane owns a set of running transport workers, keyed by caller-chosen id
// (e.g. a Bluetooth device address plus profile).
type Plane struct {
	cfg config.Config
	log logging.Logger

	mu      sync.Mutex
	handles map[string]*handle
	wg      sync.WaitGroup
}

// New returns a Plane with the given configuration and logger.
func New(cfg config.Config, log logging.Logger) *Plane {
	return &Plane{cfg: cfg, log: log, handles: make(map[string]*handle)}
}

// Config returns the Plane's configuration.
func (p *Plane) Config() config.Config { return p.cfg }

// Spawn starts w in its own goroutine under id, tracked by the Plane's
// WaitGroup. It is the caller's responsibility to construct w (an
// a2dp.SBCSource, sco.Worker, hfp.Worker, etc.) bound to t.
func (p *Plane) Spawn(id string, t *transport.Transport, w Worker) {
	p.mu.Lock()
	p.handles[id] = &handle{t: t}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.log.Debug("engine: worker starting", "id", id)
		err := w.Run()
		if err != nil {
			p.log.Error("engine: worker exited with error", "id", id, "error", err.Error())
		} else {
			p.log.Info("engine: worker exited", "id", id)
		}
		p.mu.Lock()
		delete(p.handles, id)
		p.mu.Unlock()
	}()
}

// Stop requests cancellation of the worker running under id. Per spec
// section 5's concurrency model, a worker only suspends at a multi-FD
// wait, a PCM read, a BT write or the rate pacer sleep; there is no
// separate cancellation channel, so Stop shuts the transport's BT socket
// down and closes it. A worker blocked in its multi-FD wait wakes with the
// socket reported as hung up and leaves through its peer-closed exit path;
// a worker in a PCM read or the pacer sleep finds the socket closed when
// it next reaches it.
func (p *Plane) Stop(id string) error {
	p.mu.Lock()
	h, ok := p.handles[id]
	p.mu.Unlock()
	if !ok {
		return errors.Errorf("engine: no worker running under id %q", id)
	}
	if h.t.BTFD >= 0 {
		// close alone does not wake a poll() already blocked on the fd;
		// shutting the socket down first makes it report hang-up.
		unix.Shutdown(h.t.BTFD, unix.SHUT_RDWR)
		return unix.Close(h.t.BTFD)
	}
	return nil
}

// StopAll stops every running worker and waits for them all to exit.
func (p *Plane) StopAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.handles))
	for id := range p.handles {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.Stop(id); err != nil {
			p.log.Warning("engine: stop", "id", id, "error", err.Error())
		}
	}
	p.wg.Wait()
}

// Running reports the number of workers currently running.
func (p *Plane) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}
