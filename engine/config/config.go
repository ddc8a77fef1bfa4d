/*
NAME
  config.go

DESCRIPTION
  config.go defines the global, read-only configuration record the A2DP
  and SCO workers are constructed with: the A2DP-volume-passthrough flag
  and the AAC VBR/afterburner toggles (spec section 3's "global
  configuration record").

AUTHOR
  btaudio contributors, struct/Validate idiom adapted from
  revid/config/config.go.

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package config holds the process-wide, read-only settings the core is
// constructed with. Per spec section 9's design note, this is injected
// configuration, not mutable global state: nothing in a2dp, sco or hfp
// writes back to a Config after construction.
package config

import (
	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
)

// Config is the global configuration record spec.md section 1 lists as an
// external collaborator input: loaded, parsed and validated by the daemon
// entry point (cmd/btaudiod), then shared read-only across all workers.
type Config struct {
	// A2DPVolumePassthrough disables the per-channel volume scaler (spec
	// section 4.3) entirely when true, leaving PCM samples untouched.
	A2DPVolumePassthrough bool

	// AACVBR selects variable bitrate when the A2DP codec configuration
	// blob's VBR bit is also set (spec section 4.6).
	AACVBR bool

	// AACAfterburner enables the AAC encoder's higher-quality, higher-cost
	// search mode (spec section 4.6).
	AACAfterburner bool

	// LogLevel is the ausocean/utils/logging level the daemon configures
	// its logger with; an ambient concern spec.md explicitly places out of
	// the core's scope but which cmd/btaudiod still needs to read from
	// somewhere.
	LogLevel int8
}

// Default returns a Config with the conservative defaults: volume scaling
// enabled, CBR AAC, afterburner off.
func Default() Config {
	return Config{}
}

// Validate reports whether c is internally consistent. There are presently
// no cross-field constraints; this exists so callers have a single place
// to extend validation as the daemon grows configuration surface, matching
// the teacher's Config.Validate entry point.
func (c Config) Validate() error {
	if c.LogLevel < logging.Debug || c.LogLevel > logging.Fatal {
		return errors.Errorf("config: invalid log level %d", c.LogLevel)
	}
	return nil
}
