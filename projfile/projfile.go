// Package projfile saves and loads editing sessions. The native format is
// JSON (.htpx); the older XML variant (.peproj) is accepted on load only.
package projfile

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-vocal/dsp"
	"github.com/cwbudde/algo-vocal/vocal"
)

// FormatVersion is written into every saved file.
const FormatVersion = 1

// File is the JSON schema for project files.
type File struct {
	FormatVersion     int       `json:"formatVersion"`
	ID                string    `json:"id,omitempty"`
	Name              string    `json:"name"`
	AudioPath         string    `json:"audioPath"`
	SampleRate        int       `json:"sampleRate"`
	GlobalPitchOffset float64   `json:"globalPitchOffset"`
	FormantShift      float64   `json:"formantShift"`
	Volume            float64   `json:"volume"`
	Loop              LoopEntry `json:"loop"`
	Notes             []Note    `json:"notes"`
	PitchData         PitchData `json:"pitchData"`
}

type LoopEntry struct {
	Enabled bool    `json:"enabled"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

type Note struct {
	StartFrame  int     `json:"startFrame"`
	EndFrame    int     `json:"endFrame"`
	MidiNote    float64 `json:"midiNote"`
	PitchOffset float64 `json:"pitchOffset"`
	Rest        bool    `json:"rest"`
	Vibrato     Vibrato `json:"vibrato"`
	Lyric       string  `json:"lyric,omitempty"`
	Phoneme     string  `json:"phoneme,omitempty"`
}

type Vibrato struct {
	Enabled        bool    `json:"enabled"`
	RateHz         float64 `json:"rateHz"`
	DepthSemitones float64 `json:"depthSemitones"`
	PhaseRadians   float64 `json:"phaseRadians"`
}

// PitchData stores the per-frame curves as space-separated text. Base and
// delta keep 4 decimal digits, f0 keeps 2; the voiced mask is a string of
// '0'/'1' characters.
type PitchData struct {
	F0         string `json:"f0"`
	BasePitch  string `json:"basePitch"`
	DeltaPitch string `json:"deltaPitch"`
	VoicedMask string `json:"voicedMask"`
}

// Save writes the project as JSON.
func Save(p *vocal.Project, path string) error {
	f := fromProject(p)
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Load reads a project file, accepting both the JSON and the XML variant.
// The caller re-attaches waveform and mel data by re-analyzing or loading
// the referenced audio.
func Load(path string) (*vocal.Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if looksLikeXML(b) {
		var x xmlFile
		if err := xml.Unmarshal(b, &x); err != nil {
			return nil, fmt.Errorf("projfile: parse xml: %w", err)
		}
		f = x.toFile()
	} else {
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("projfile: parse json: %w", err)
		}
	}
	if f.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("projfile: unsupported format version %d", f.FormatVersion)
	}
	return toProject(&f)
}

func looksLikeXML(b []byte) bool {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '<':
			return true
		default:
			return false
		}
	}
	return false
}

func fromProject(p *vocal.Project) *File {
	f := &File{
		FormatVersion:     FormatVersion,
		ID:                p.ID,
		Name:              p.Name,
		AudioPath:         p.AudioPath,
		SampleRate:        p.Audio.SampleRate,
		GlobalPitchOffset: p.GlobalPitchOffset,
		FormantShift:      p.FormantShift,
		Volume:            p.VolumeDB,
		Loop: LoopEntry{
			Enabled: p.Loop.Enabled,
			Start:   p.Loop.StartSec,
			End:     p.Loop.EndSec,
		},
		PitchData: PitchData{
			F0:         formatFloats(p.Audio.F0, 2),
			BasePitch:  formatFloats(p.Audio.BasePitch, 4),
			DeltaPitch: formatFloats(p.Audio.DeltaPitch, 4),
			VoicedMask: formatMask(p.Audio.VoicedMask),
		},
	}
	for _, n := range p.Notes {
		f.Notes = append(f.Notes, Note{
			StartFrame:  n.StartFrame,
			EndFrame:    n.EndFrame,
			MidiNote:    n.MidiNote,
			PitchOffset: n.PitchOffset,
			Rest:        n.Rest,
			Vibrato: Vibrato{
				Enabled:        n.Vibrato.Enabled,
				RateHz:         n.Vibrato.RateHz,
				DepthSemitones: n.Vibrato.DepthSemitones,
				PhaseRadians:   n.Vibrato.PhaseRadians,
			},
			Lyric:   n.Lyric,
			Phoneme: n.Phoneme,
		})
	}
	return f
}

func toProject(f *File) (*vocal.Project, error) {
	f0, err := parseFloats(f.PitchData.F0)
	if err != nil {
		return nil, fmt.Errorf("projfile: f0: %w", err)
	}
	base, err := parseFloats(f.PitchData.BasePitch)
	if err != nil {
		return nil, fmt.Errorf("projfile: basePitch: %w", err)
	}
	delta, err := parseFloats(f.PitchData.DeltaPitch)
	if err != nil {
		return nil, fmt.Errorf("projfile: deltaPitch: %w", err)
	}
	mask := parseMask(f.PitchData.VoicedMask)
	t := len(f0)
	if len(base) != t || len(delta) != t || len(mask) != t {
		return nil, fmt.Errorf("projfile: curve lengths differ: f0=%d base=%d delta=%d voiced=%d",
			t, len(base), len(delta), len(mask))
	}
	for i, v := range mask {
		if v && f0[i] <= 0 {
			return nil, fmt.Errorf("projfile: voiced frame %d has non-positive f0", i)
		}
	}

	p := vocal.NewProject(f.Name)
	if f.ID != "" {
		if _, err := uuid.Parse(f.ID); err == nil {
			p.ID = f.ID
		}
	}
	p.AudioPath = f.AudioPath
	p.Audio.SampleRate = f.SampleRate
	p.GlobalPitchOffset = f.GlobalPitchOffset
	p.FormantShift = f.FormantShift
	p.VolumeDB = f.Volume
	p.Loop = vocal.LoopRange{
		Enabled:  f.Loop.Enabled,
		StartSec: f.Loop.Start,
		EndSec:   f.Loop.End,
	}
	p.Audio.F0 = f0
	p.Audio.BasePitch = base
	p.Audio.DeltaPitch = delta
	p.Audio.VoicedMask = mask
	p.Audio.BaseF0 = make([]float64, t)
	for i := range base {
		if base[i] != 0 {
			p.Audio.BaseF0[i] = dsp.MidiToFreq(base[i])
		}
	}

	for i, n := range f.Notes {
		if n.StartFrame >= n.EndFrame {
			return nil, fmt.Errorf("projfile: note span [%d, %d) invalid", n.StartFrame, n.EndFrame)
		}
		if t > 0 && (n.StartFrame < 0 || n.EndFrame > t) {
			return nil, fmt.Errorf("projfile: note span [%d, %d) outside %d frames",
				n.StartFrame, n.EndFrame, t)
		}
		if i > 0 && n.StartFrame < f.Notes[i-1].EndFrame {
			return nil, fmt.Errorf("projfile: note %d overlaps its predecessor", i)
		}
		p.Notes = append(p.Notes, &vocal.Note{
			StartFrame:  n.StartFrame,
			EndFrame:    n.EndFrame,
			MidiNote:    n.MidiNote,
			PitchOffset: n.PitchOffset,
			Rest:        n.Rest,
			Vibrato: vocal.Vibrato{
				Enabled:        n.Vibrato.Enabled,
				RateHz:         n.Vibrato.RateHz,
				DepthSemitones: n.Vibrato.DepthSemitones,
				PhaseRadians:   n.Vibrato.PhaseRadians,
			},
			Lyric:   n.Lyric,
			Phoneme: n.Phoneme,
		})
	}
	return p, nil
}

func formatFloats(vals []float64, digits int) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', digits, 64))
	}
	return b.String()
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, fld := range fields {
		v, err := strconv.ParseFloat(fld, 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func formatMask(mask []bool) string {
	var b strings.Builder
	for _, v := range mask {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func parseMask(s string) []bool {
	out := make([]bool, len(s))
	for i := range s {
		out[i] = s[i] == '1'
	}
	return out
}
