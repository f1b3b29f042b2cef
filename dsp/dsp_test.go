package dsp

import (
	"math"
	"testing"
)

func TestMidiFreqRoundTrip(t *testing.T) {
	if f := MidiToFreq(69); math.Abs(f-440.0) > 1e-9 {
		t.Fatalf("A4 frequency mismatch: got=%f want=440", f)
	}
	if f := MidiToFreq(81); math.Abs(f-880.0) > 1e-9 {
		t.Fatalf("A5 frequency mismatch: got=%f want=880", f)
	}
	for _, note := range []float64{12.5, 48, 60.25, 69, 100} {
		back := FreqToMidi(MidiToFreq(note))
		if math.Abs(back-note) > 1e-9 {
			t.Fatalf("round trip mismatch for note %f: got=%f", note, back)
		}
	}
	if m := FreqToMidi(0); m != 0 {
		t.Fatalf("expected unvoiced frequency to map to 0, got %f", m)
	}
	if m := FreqToMidi(-10); m != 0 {
		t.Fatalf("expected negative frequency to map to 0, got %f", m)
	}
}

func TestRMS(t *testing.T) {
	if r := RMS(nil); r != 0 {
		t.Fatalf("expected empty RMS = 0, got %f", r)
	}
	x := []float64{1, -1, 1, -1}
	if r := RMS(x); math.Abs(r-1.0) > 1e-12 {
		t.Fatalf("square wave RMS mismatch: got=%f want=1", r)
	}
}

func TestResampleLinearIdentity(t *testing.T) {
	in := []float64{0, 1, 2, 3}
	out := ResampleLinear(in, 44100, 44100)
	if len(out) != len(in) {
		t.Fatalf("identity resample length mismatch: got=%d want=%d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("identity resample value mismatch at %d", i)
		}
	}
}

func TestResampleLinearHalvesLength(t *testing.T) {
	in := make([]float64, 1000)
	for i := range in {
		in[i] = float64(i)
	}
	out := ResampleLinear(in, 44100, 22050)
	want := 500
	if len(out) != want {
		t.Fatalf("downsample length mismatch: got=%d want=%d", len(out), want)
	}
	// A linear ramp survives linear resampling exactly.
	for i := 1; i < len(out); i++ {
		d := out[i] - out[i-1]
		if math.Abs(d-2.0) > 1e-9 {
			t.Fatalf("ramp slope mismatch at %d: got=%f want=2", i, d)
		}
	}
}
