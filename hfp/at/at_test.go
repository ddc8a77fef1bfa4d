/*
NAME
  at_test.go

AUTHOR
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

package at

import "testing"

// TestParseSET covers spec section 8 scenario 1: a BRSF SET command.
func TestParseSET(t *testing.T) {
	cmd, err := Parse("AT+BRSF=1000\r")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Name != "+BRSF" || cmd.Type != SET || cmd.Value != "1000" {
		t.Errorf("got %+v", cmd)
	}
}

// TestParseTEST covers spec section 8 scenario 2: a CIND TEST command.
func TestParseTEST(t *testing.T) {
	cmd, err := Parse("AT+CIND=?")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Name != "+CIND" || cmd.Type != TEST {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseGET(t *testing.T) {
	cmd, err := Parse("at+cind?")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Name != "+cind" || cmd.Type != GET {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseRejectsMissingPrefix(t *testing.T) {
	if _, err := Parse("+BRSF=1000"); err == nil {
		t.Error("expected error for missing AT prefix")
	}
}

func TestParseRejectsNoOperator(t *testing.T) {
	if _, err := Parse("ATZ"); err == nil {
		t.Error("expected error when neither '=' nor '?' present")
	}
}

func TestParseTruncatesLongValue(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "9"
	}
	cmd, err := Parse("AT+XAPL=" + long)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cmd.Value) != maxValueLen {
		t.Errorf("value len = %d, want %d", len(cmd.Value), maxValueLen)
	}
}

func TestFrameResponse(t *testing.T) {
	if got := FrameResponse("OK"); got != "\r\nOK\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestFrameSolicited(t *testing.T) {
	if got := FrameSolicited("AT+VGS=10"); got != "AT+VGS=10\r" {
		t.Errorf("got %q", got)
	}
}

func TestSplitCodecs(t *testing.T) {
	got := SplitCodecs("1,2, 3")
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}
