package main

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/projfile"

	"github.com/spf13/cobra"
)

var infoFlags struct {
	notes bool
}

var infoCmd = &cobra.Command{
	Use:   "info <project.htpx>",
	Short: "Print a summary of a project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInfo(args[0])
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoFlags.notes, "notes", false, "list every note")
	rootCmd.AddCommand(infoCmd)
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func noteName(midi float64) string {
	n := int(math.Round(midi))
	if n < 0 || n > 127 {
		return fmt.Sprintf("%.1f", midi)
	}
	return fmt.Sprintf("%s%d", noteNames[n%12], n/12-1)
}

func runInfo(projectPath string) error {
	p, err := projfile.Load(projectPath)
	if err != nil {
		return failf(exitLoad, "load %s: %v", projectPath, err)
	}

	t := p.Audio.NumFrames()
	voiced := 0
	for _, v := range p.Audio.VoicedMask {
		if v {
			voiced++
		}
	}
	fmt.Printf("name:          %s\n", p.Name)
	fmt.Printf("audio:         %s\n", p.AudioPath)
	fmt.Printf("sample rate:   %d Hz\n", p.Audio.SampleRate)
	fmt.Printf("frames:        %d (%.2f s)\n", t, mel.FramesToSeconds(t))
	if t > 0 {
		fmt.Printf("voiced:        %d (%.0f%%)\n", voiced, 100*float64(voiced)/float64(t))
	}
	fmt.Printf("notes:         %d\n", len(p.Notes))
	fmt.Printf("pitch offset:  %+.2f st\n", p.GlobalPitchOffset)
	if p.Loop.Enabled {
		fmt.Printf("loop:          %.2f s - %.2f s\n", p.Loop.StartSec, p.Loop.EndSec)
	}

	if !infoFlags.notes {
		return nil
	}
	for i, n := range p.Notes {
		if n.Rest {
			fmt.Printf("%3d  %7.2fs %7.2fs  rest\n", i,
				mel.FramesToSeconds(n.StartFrame), mel.FramesToSeconds(n.EndFrame))
			continue
		}
		vib := ""
		if n.Vibrato.Enabled {
			vib = fmt.Sprintf("  vib %.1fHz %.2fst", n.Vibrato.RateHz, n.Vibrato.DepthSemitones)
		}
		fmt.Printf("%3d  %7.2fs %7.2fs  %-4s (%.2f)%s\n", i,
			mel.FramesToSeconds(n.StartFrame), mel.FramesToSeconds(n.EndFrame),
			noteName(n.MidiNote), n.MidiNote, vib)
	}
	return nil
}
