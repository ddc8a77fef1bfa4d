/*
NAME
  btaudio-dump - capture a raw PCM stream to a WAV file.

AUTHORS
  btaudio contributors

LICENSE
  Copyright (C) 2026 the btaudio contributors. All Rights Reserved.
*/

// Command btaudio-dump reads raw S16_LE PCM frames from stdin - the same
// bytes a btaudiod transport's speaker or mic pipe carries - and writes
// them to a WAV file via diag.Recorder. It is the operator-facing
// troubleshooting companion to btaudiod, the role bluez-alsa's own
// recording utilities play alongside its daemon.
package main

import (
	"flag"
	"io"
	"log"
	"os"

	"github.com/kuikka/btaudio/codec/pcm"
	"github.com/kuikka/btaudio/diag"
)

const progName = "btaudio-dump"

func main() {
	var (
		rate     uint
		channels uint
		out      string
		highpass float64
	)
	flag.UintVar(&rate, "rate", 44100, "Sample rate of the incoming PCM stream")
	flag.UintVar(&channels, "channels", 2, "Channel count of the incoming PCM stream")
	flag.StringVar(&out, "out", "capture.wav", "WAV file to write")
	flag.Float64Var(&highpass, "highpass", 0, "Optional high-pass cutoff in Hz to strip DC rumble before capture")
	flag.Parse()

	f, err := os.Create(out)
	if err != nil {
		log.Fatalf("%s: create %s: %v", progName, out, err)
	}
	defer f.Close()

	format := pcm.BufferFormat{Rate: rate, Channels: channels}

	var filter pcm.AudioFilter
	if highpass > 0 {
		hp, err := pcm.NewHighPass(highpass, format, 128)
		if err != nil {
			log.Fatalf("%s: high-pass filter: %v", progName, err)
		}
		filter = hp
	}

	rec, err := diag.NewRecorder(f, format, filter)
	if err != nil {
		log.Fatalf("%s: %v", progName, err)
	}

	frameBytes := 2 * int(channels)
	buf := make([]byte, frameBytes*1024)
	for {
		n, err := io.ReadFull(os.Stdin, buf)
		whole := n - n%frameBytes
		if whole > 0 {
			if werr := rec.Write(buf[:whole]); werr != nil {
				log.Fatalf("%s: write: %v", progName, werr)
			}
		}
		if err != nil {
			break
		}
	}

	if err := rec.Close(); err != nil {
		log.Fatalf("%s: close: %v", progName, err)
	}
}
