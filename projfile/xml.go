package projfile

import "encoding/xml"

// xmlFile mirrors the File schema for the legacy XML project variant.
// Only loading is supported; saves always use JSON.
type xmlFile struct {
	XMLName           xml.Name     `xml:"project"`
	FormatVersion     int          `xml:"formatVersion"`
	ID                string       `xml:"id"`
	Name              string       `xml:"name"`
	AudioPath         string       `xml:"audioPath"`
	SampleRate        int          `xml:"sampleRate"`
	GlobalPitchOffset float64      `xml:"globalPitchOffset"`
	FormantShift      float64      `xml:"formantShift"`
	Volume            float64      `xml:"volume"`
	Loop              xmlLoop      `xml:"loop"`
	Notes             []xmlNote    `xml:"notes>note"`
	PitchData         xmlPitchData `xml:"pitchData"`
}

type xmlLoop struct {
	Enabled bool    `xml:"enabled"`
	Start   float64 `xml:"start"`
	End     float64 `xml:"end"`
}

type xmlNote struct {
	StartFrame  int        `xml:"startFrame"`
	EndFrame    int        `xml:"endFrame"`
	MidiNote    float64    `xml:"midiNote"`
	PitchOffset float64    `xml:"pitchOffset"`
	Rest        bool       `xml:"rest"`
	Vibrato     xmlVibrato `xml:"vibrato"`
	Lyric       string     `xml:"lyric"`
	Phoneme     string     `xml:"phoneme"`
}

type xmlVibrato struct {
	Enabled        bool    `xml:"enabled"`
	RateHz         float64 `xml:"rateHz"`
	DepthSemitones float64 `xml:"depthSemitones"`
	PhaseRadians   float64 `xml:"phaseRadians"`
}

type xmlPitchData struct {
	F0         string `xml:"f0"`
	BasePitch  string `xml:"basePitch"`
	DeltaPitch string `xml:"deltaPitch"`
	VoicedMask string `xml:"voicedMask"`
}

func (x *xmlFile) toFile() File {
	f := File{
		FormatVersion:     x.FormatVersion,
		ID:                x.ID,
		Name:              x.Name,
		AudioPath:         x.AudioPath,
		SampleRate:        x.SampleRate,
		GlobalPitchOffset: x.GlobalPitchOffset,
		FormantShift:      x.FormantShift,
		Volume:            x.Volume,
		Loop: LoopEntry{
			Enabled: x.Loop.Enabled,
			Start:   x.Loop.Start,
			End:     x.Loop.End,
		},
		PitchData: PitchData{
			F0:         x.PitchData.F0,
			BasePitch:  x.PitchData.BasePitch,
			DeltaPitch: x.PitchData.DeltaPitch,
			VoicedMask: x.PitchData.VoicedMask,
		},
	}
	for _, n := range x.Notes {
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
