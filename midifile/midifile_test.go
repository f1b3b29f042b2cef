package midifile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-vocal/vocal"
)

func TestAppendVarint(t *testing.T) {
	cases := []struct {
		in   uint32
		want []byte
	}{
		{0x00, []byte{0x00}},
		{0x40, []byte{0x40}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x81, 0x00}},
		{0x2000, []byte{0xC0, 0x00}},
		{0x3FFF, []byte{0xFF, 0x7F}},
		{0x4000, []byte{0x81, 0x80, 0x00}},
	}
	for _, c := range cases {
		got := appendVarint(nil, c.in)
		if !bytes.Equal(got, c.want) {
			t.Fatalf("varint(%#x) = % x, want % x", c.in, got, c.want)
		}
	}
}

func TestClampKey(t *testing.T) {
	if clampKey(-3) != 0 || clampKey(130) != 127 || clampKey(69) != 69 {
		t.Fatalf("key clamping wrong")
	}
}

func TestExportStructure(t *testing.T) {
	p := vocal.NewProject("export")
	p.Notes = []*vocal.Note{
		{StartFrame: 0, EndFrame: 86, MidiNote: 68.6, PitchOffset: 0.3},
		{StartFrame: 86, EndFrame: 172, MidiNote: 72},
		{StartFrame: 200, EndFrame: 210, Rest: true},
	}

	path := filepath.Join(t.TempDir(), "out.mid")
	if err := Export(p, path, DefaultOptions()); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.HasPrefix(b, []byte{'M', 'T', 'h', 'd', 0, 0, 0, 6, 0, 0, 0, 1}) {
		t.Fatalf("bad header: % x", b[:12])
	}
	if b[12] != byte(PPQ>>8) || b[13] != byte(PPQ&0xFF) {
		t.Fatalf("ppq bytes % x, want %d", b[12:14], PPQ)
	}
	if !bytes.Equal(b[14:18], []byte{'M', 'T', 'r', 'k'}) {
		t.Fatalf("missing track chunk")
	}

	// 68.6 + 0.3 rounds to 69.
	if !bytes.Contains(b, []byte{0x90, 69, DefaultVelocity}) {
		t.Fatalf("note-on for key 69 missing")
	}
	if !bytes.Contains(b, []byte{0x90, 72, DefaultVelocity}) {
		t.Fatalf("note-on for key 72 missing")
	}
	// Rest notes are skipped entirely.
	if bytes.Contains(b, []byte{0x90, 0, DefaultVelocity}) {
		t.Fatalf("rest note exported")
	}
	if !bytes.HasSuffix(b, []byte{0xFF, 0x2F, 0x00}) {
		t.Fatalf("missing end-of-track meta")
	}
}

func TestExportRejectsBadOptions(t *testing.T) {
	p := vocal.NewProject("x")
	path := filepath.Join(t.TempDir(), "out.mid")
	if err := Export(p, path, Options{TempoBPM: 0}); err == nil {
		t.Fatalf("zero tempo accepted")
	}
	if err := Export(p, path, Options{TempoBPM: 120, Channel: 16, PPQ: PPQ}); err == nil {
		t.Fatalf("channel 16 accepted")
	}
	if err := Export(p, path, Options{TempoBPM: 120}); err == nil {
		t.Fatalf("zero ppq accepted")
	}
}
