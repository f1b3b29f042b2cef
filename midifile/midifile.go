// Package midifile exports the note list as a standard MIDI file
// (format 0, single track).
package midifile

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/vocal"
)

const (
	// PPQ is the tick resolution written into the header.
	PPQ = 480
	// DefaultVelocity is used for every exported note.
	DefaultVelocity = 100
)

// Options control the export.
type Options struct {
	TempoBPM float64
	Channel  uint8 // 0-15
	PPQ      int   // ticks per quarter note
}

// DefaultOptions exports at 120 BPM on channel 0.
func DefaultOptions() Options {
	return Options{TempoBPM: 120, PPQ: PPQ}
}

// Export writes the project's non-rest notes to path.
func Export(p *vocal.Project, path string, opts Options) error {
	if opts.TempoBPM <= 0 {
		return fmt.Errorf("midifile: tempo %.2f invalid", opts.TempoBPM)
	}
	if opts.Channel > 15 {
		return fmt.Errorf("midifile: channel %d out of range", opts.Channel)
	}
	if opts.PPQ <= 0 || opts.PPQ > 0x7FFF {
		return fmt.Errorf("midifile: ppq %d out of range", opts.PPQ)
	}
	track := buildTrack(p, opts)

	var buf []byte
	buf = append(buf, 'M', 'T', 'h', 'd')
	buf = appendUint32(buf, 6)
	buf = appendUint16(buf, 0) // format 0
	buf = appendUint16(buf, 1) // single track
	buf = appendUint16(buf, uint16(opts.PPQ))

	buf = append(buf, 'M', 'T', 'r', 'k')
	buf = appendUint32(buf, uint32(len(track)))
	buf = append(buf, track...)

	return os.WriteFile(path, buf, 0o644)
}

type midiEvent struct {
	tick  int
	onOff byte // 0x90 or 0x80
	note  uint8
}

func buildTrack(p *vocal.Project, opts Options) []byte {
	var events []midiEvent
	for _, n := range p.Notes {
		if n.Rest {
			continue
		}
		key := clampKey(math.Round(n.MidiNote + n.PitchOffset))
		events = append(events,
			midiEvent{tick: frameToTick(n.StartFrame, opts), onOff: 0x90, note: key},
			midiEvent{tick: frameToTick(n.EndFrame, opts), onOff: 0x80, note: key},
		)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		// Note-off first on equal ticks so adjacent notes do not overlap.
		return events[i].onOff > events[j].onOff
	})

	var track []byte
	// Tempo meta: microseconds per quarter note.
	usPerQuarter := uint32(math.Round(60e6 / opts.TempoBPM))
	track = appendVarint(track, 0)
	track = append(track, 0xFF, 0x51, 0x03,
		byte(usPerQuarter>>16), byte(usPerQuarter>>8), byte(usPerQuarter))

	prevTick := 0
	for _, ev := range events {
		track = appendVarint(track, uint32(ev.tick-prevTick))
		prevTick = ev.tick
		velocity := byte(DefaultVelocity)
		if ev.onOff == 0x80 {
			velocity = 0
		}
		track = append(track, ev.onOff|opts.Channel, ev.note, velocity)
	}

	// End of track.
	track = appendVarint(track, 0)
	track = append(track, 0xFF, 0x2F, 0x00)
	return track
}

func frameToTick(frame int, opts Options) int {
	seconds := mel.FramesToSeconds(frame)
	return int(math.Round(seconds * (opts.TempoBPM / 60.0) * float64(opts.PPQ)))
}

func clampKey(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return uint8(v)
}

// appendVarint writes a MIDI variable-length quantity.
func appendVarint(b []byte, v uint32) []byte {
	var tmp [5]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7F)
	v >>= 7
	for v > 0 {
		i--
		tmp[i] = byte(v&0x7F) | 0x80
		v >>= 7
	}
	return append(b, tmp[i:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(b, v)
}

func appendUint16(b []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(b, v)
}
