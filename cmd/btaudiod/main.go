/*
NAME
  btaudiod - Bluetooth audio I/O daemon.

AUTHORS
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package main is btaudiod, the Bluetooth audio engine daemon: it wires
// together logging, configuration and the engine.Plane worker registry.
// BlueZ D-Bus registration, pairing and profile negotiation are handled by
// an external collaborator and are out of scope for this binary; main
// demonstrates the in-scope wiring spec.md section 1 calls for so the
// module is runnable end-to-end.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ausocean/utils/logging"
	"github.com/coreos/go-systemd/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kuikka/btaudio/engine"
	"github.com/kuikka/btaudio/engine/config"
)

const progName = "btaudiod"

var errInvalidLevel = errors.New(progName + ": log level out of range")

func main() {
	var (
		logLevel    int
		logFile     string
		configFile  string
		vbr         bool
		afterburner bool
		passthrough bool
	)
	flag.IntVar(&logLevel, "LogLevel", int(logging.Debug), "Specifies log level")
	flag.StringVar(&logFile, "log-file", "/var/log/btaudiod/btaudiod.log", "Log file path")
	flag.StringVar(&configFile, "config", "", "Optional config file to watch for live LogLevel changes")
	flag.BoolVar(&vbr, "aac-vbr", true, "Enable AAC variable bitrate mode")
	flag.BoolVar(&afterburner, "aac-afterburner", false, "Enable AAC afterburner mode")
	flag.BoolVar(&passthrough, "a2dp-volume-passthrough", false, "Let the Bluetooth peer own A2DP volume instead of scaling PCM locally")
	flag.Parse()

	validLogLevel := true
	if logLevel < int(logging.Debug) || logLevel > int(logging.Fatal) {
		logLevel = int(logging.Info)
		validLogLevel = false
	}

	roller := &lumberjack.Logger{Filename: logFile, MaxSize: 10, MaxBackups: 3, MaxAge: 28}
	log := logging.New(int8(logLevel), roller, true)
	log.Info(progName + ": logger initialized")
	if !validLogLevel {
		log.Error("invalid log level was defaulted to Info")
	}

	cfg := config.Default()
	cfg.LogLevel = int8(logLevel)
	cfg.AACVBR = vbr
	cfg.AACAfterburner = afterburner
	cfg.A2DPVolumePassthrough = passthrough
	if err := cfg.Validate(); err != nil {
		log.Fatal(progName+": invalid config", "error", err.Error())
	}

	plane := engine.New(cfg, log)

	if configFile != "" {
		watchConfig(log, configFile)
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warning(progName+": sd_notify failed", "error", err.Error())
	} else if ok {
		log.Debug(progName + ": sd_notify delivered")
	}

	// Device pairing, profile negotiation and per-Transport worker
	// construction are driven by the external BlueZ D-Bus collaborator
	// (spec.md section 1's Non-goals); once it hands this process a
	// Transport it calls plane.Spawn with the appropriate a2dp/sco/hfp
	// worker. This binary's job ends at providing a running Plane.

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info(progName + ": shutting down")
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	plane.StopAll()
}

// watchConfig starts a background fsnotify watch on configFile itself so
// an operator can bump the log level without restarting the daemon; any
// write event triggers a reread attempt (best-effort, errors are logged
// and the previous level is kept).
func watchConfig(log logging.Logger, configFile string) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warning(progName+": fsnotify.NewWatcher", "error", err.Error())
		return
	}
	if err := w.Add(configFile); err != nil {
		log.Warning(progName+": watch config file", "path", configFile, "error", err.Error())
		w.Close()
		return
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					log.Debug(progName+": config file changed, rereading", "path", ev.Name)
					if lvl, err := readLogLevel(configFile); err == nil {
						log.SetLevel(lvl)
					} else {
						log.Warning(progName+": reread config", "error", err.Error())
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warning(progName+": fsnotify watch error", "error", err.Error())
			}
		}
	}()
}

// readLogLevel reads a single integer log level from configFile. The
// config format is deliberately minimal: this binary's Non-goals exclude
// a full reload of codec/volume settings at runtime, per spec.md section 1.
func readLogLevel(path string) (int8, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(string(b), "%d", &n); err != nil {
		return 0, err
	}
	if n < int(logging.Debug) || n > int(logging.Fatal) {
		return 0, errInvalidLevel
	}
	return int8(n), nil
}
