//go:build cgo

package main

// Registers the RtMidi driver for live MIDI input.
import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
