/*
NAME
  at.go

DESCRIPTION
  at.go implements the AT command parser the RFCOMM/HFP state machine
  dispatches on (spec component C9, section 4.9.1): command name, type
  (SET/GET/TEST) and value extraction from a raw line received over
  RFCOMM, plus the response framing conventions for AG replies.

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Package at implements Hands-Free Profile's AT command text protocol:
// parsing an HF-originated command line and framing AG responses (spec
// section 4.9.1).
package at

import (
	"strings"

	"github.com/pkg/errors"
)

// Type is the syntactic form of a parsed AT command.
type Type uint8

const (
	SET Type = iota
	GET
	TEST
)

func (t Type) String() string {
	switch t {
	case SET:
		return "SET"
	case GET:
		return "GET"
	case TEST:
		return "TEST"
	default:
		return "unknown"
	}
}

// maxValueLen bounds a SET command's value per spec section 4.9.1.
const maxValueLen = 63

// Command is a parsed AT command line.
type Command struct {
	Name  string // Command name, e.g. "+BRSF", without the "AT" prefix.
	Type  Type
	Value string // SET value, bounded to maxValueLen bytes; empty otherwise.
}

// Parse implements spec section 4.9.1's grammar: trim whitespace, require
// a case-insensitive "AT" prefix, then locate '=' or '?' to determine type
// and extract the command name and value.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 || !strings.EqualFold(line[:2], "AT") {
		return Command{}, errors.Errorf("at: missing AT prefix: %q", line)
	}
	rest := line[2:]

	if eq := strings.IndexByte(rest, '='); eq >= 0 {
		name := rest[:eq]
		tail := rest[eq+1:]
		if strings.HasPrefix(tail, "?") {
			return Command{Name: name, Type: TEST}, nil
		}
		if len(tail) > maxValueLen {
			tail = tail[:maxValueLen]
		}
		return Command{Name: name, Type: SET, Value: tail}, nil
	}

	if q := strings.IndexByte(rest, '?'); q >= 0 {
		return Command{Name: rest[:q], Type: GET}, nil
	}

	return Command{}, errors.Errorf("at: no '=' or '?' in command: %q", line)
}

// FrameResponse wraps an AG response per spec section 6/4.9: "\r\n<text>\r\n".
func FrameResponse(text string) string {
	return "\r\n" + text + "\r\n"
}

// FrameSolicited wraps an AG-originated (unsolicited or commanding) AT line
// per spec section 4.9: "<text>\r".
func FrameSolicited(text string) string {
	return text + "\r"
}

// SplitCodecs parses a +BAC SET value's comma-separated codec ID list
// (spec section 4.9's "Parse comma-separated codec IDs").
func SplitCodecs(value string) []int {
	parts := strings.Split(value, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		n := 0
		valid := p != ""
		for _, r := range p {
			if r < '0' || r > '9' {
				valid = false
				break
			}
			n = n*10 + int(r-'0')
		}
		if valid {
			out = append(out, n)
		}
	}
	return out
}
