/*
NAME
  logger.go

DESCRIPTION
  logger.go adapts *testing.T to logging.Logger, the way revid/utils.go
  does in the teacher repository, so package tests can construct the
  engine/workers with a real logger instead of a throwaway no-op.

AUTHOR
  btaudio contributors, adapted from revid/utils.go (ausocean/av).

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package testutil provides a shared test helper: a logging.Logger backed
// by *testing.T.
package testutil

import (
	"testing"

	"github.com/ausocean/utils/logging"
)

// Logger adapts *testing.T to logging.Logger.
type Logger testing.T

// NewLogger returns a logging.Logger that writes through t.
func NewLogger(t *testing.T) *Logger { return (*Logger)(t) }

func (l *Logger) Debug(msg string, args ...interface{})   { l.Log(logging.Debug, msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})    { l.Log(logging.Info, msg, args...) }
func (l *Logger) Warning(msg string, args ...interface{}) { l.Log(logging.Warning, msg, args...) }
func (l *Logger) Error(msg string, args ...interface{})   { l.Log(logging.Error, msg, args...) }
func (l *Logger) Fatal(msg string, args ...interface{})   { l.Log(logging.Fatal, msg, args...) }
func (l *Logger) SetLevel(lvl int8)                        {}

func (l *Logger) Log(lvl int8, msg string, args ...interface{}) {
	var level string
	switch lvl {
	case logging.Debug:
		level = "debug"
	case logging.Info:
		level = "info"
	case logging.Warning:
		level = "warning"
	case logging.Error:
		level = "error"
	case logging.Fatal:
		level = "fatal"
	}
	msg = level + ": " + msg

	t := (*testing.T)(l)
	if len(args) == 0 {
		t.Log(msg)
		return
	}

	msg += " ("
	for i := 0; i < len(args); i += 2 {
		msg += " %v:\"%v\""
	}
	msg += " )"

	if lvl == logging.Fatal {
		t.Fatalf(msg+"\n", args...)
		return
	}
	t.Logf(msg+"\n", args...)
}
