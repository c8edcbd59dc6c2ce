// Package midiin turns MIDI messages from devices and Standard MIDI Files into
// sequencer events.
package midiin

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/sfzplay-go/internal/sequencer"
)

const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

// Convert decodes a channel message. Channels in the result are 1-based.
// Controllers 120 and 123 become AllNotesOff.
func Convert(msg midi.Message) (sequencer.Event, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return sequencer.Event{Type: sequencer.NoteOn, Channel: int(ch) + 1, Key: int(key), Value: int(vel)}, true
	case msg.GetNoteOff(&ch, &key, &vel):
		return sequencer.Event{Type: sequencer.NoteOff, Channel: int(ch) + 1, Key: int(key), Value: int(vel)}, true
	case msg.GetNoteEnd(&ch, &key):
		return sequencer.Event{Type: sequencer.NoteOff, Channel: int(ch) + 1, Key: int(key)}, true
	case msg.GetControlChange(&ch, &key, &vel):
		if key == ccAllSoundOff || key == ccAllNotesOff {
			return sequencer.Event{Type: sequencer.AllNotesOff, Channel: int(ch) + 1}, true
		}
		return sequencer.Event{Type: sequencer.ControlChange, Channel: int(ch) + 1, Key: int(key), Value: int(vel)}, true
	}
	return sequencer.Event{}, false
}

// InputNames lists the MIDI inputs of the registered driver.
func InputNames() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// Listen opens the named input and forwards every decodable message to push
// until stop is called. push runs on the driver's goroutine.
func Listen(name string, push func(sequencer.Event), log *slog.Logger) (stop func(), err error) {
	if log == nil {
		log = slog.Default()
	}
	in, err := midi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("MIDI input %q: %w", name, err)
	}
	return listen(in, push, log)
}

func listen(in drivers.In, push func(sequencer.Event), log *slog.Logger) (func(), error) {
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		ev, ok := Convert(msg)
		if !ok {
			log.Debug("unhandled MIDI message", "msg", msg.String())
			return
		}
		push(ev)
	}, midi.HandleError(func(listenErr error) {
		log.Warn("MIDI listener error", "device", in.String(), "error", listenErr)
	}))
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", in.String(), err)
	}
	log.Info("MIDI input connected", "device", in.String())
	return stop, nil
}

// ReadFile reads every track of a Standard MIDI File and schedules its
// channel messages at sampleRate.
func ReadFile(path string, sampleRate int) ([]sequencer.Event, error) {
	return collect(smf.ReadTracks(path), sampleRate)
}

// Read is ReadFile for an already open stream.
func Read(r io.Reader, sampleRate int) ([]sequencer.Event, error) {
	return collect(smf.ReadTracksFrom(r), sampleRate)
}

func collect(tracks *smf.TracksReader, sampleRate int) ([]sequencer.Event, error) {
	var events []sequencer.Event
	tracks.Do(func(te smf.TrackEvent) {
		ev, ok := Convert(midi.Message(te.Message))
		if !ok {
			return
		}
		ev.Frame = (te.AbsMicroSeconds*int64(sampleRate) + 500_000) / 1_000_000
		events = append(events, ev)
	})
	if err := tracks.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Frame < events[j].Frame })
	return events, nil
}
