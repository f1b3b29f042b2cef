package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-vocal/midifile"
	"github.com/cwbudde/algo-vocal/projfile"

	"github.com/spf13/cobra"
)

var exportMidiFlags struct {
	output string
	bpm    float64
}

var exportMidiCmd = &cobra.Command{
	Use:   "export-midi <project.htpx>",
	Short: "Write the project's note track as a standard MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExportMidi(args[0])
	},
}

func init() {
	exportMidiCmd.Flags().StringVarP(&exportMidiFlags.output, "output", "o", "", "midi file to write (default: project with .mid extension)")
	exportMidiCmd.Flags().Float64Var(&exportMidiFlags.bpm, "bpm", 120, "tempo written to the tempo meta event")
	rootCmd.AddCommand(exportMidiCmd)
}

func runExportMidi(projectPath string) error {
	if exportMidiFlags.bpm <= 0 {
		return failf(exitUsage, "bpm must be positive, got %g", exportMidiFlags.bpm)
	}

	p, err := projfile.Load(projectPath)
	if err != nil {
		return failf(exitLoad, "load %s: %v", projectPath, err)
	}
	if len(p.Notes) == 0 {
		return failf(exitLoad, "%s has no notes to export", projectPath)
	}

	out := exportMidiFlags.output
	if out == "" {
		out = strings.TrimSuffix(projectPath, filepath.Ext(projectPath)) + ".mid"
	}
	opts := midifile.DefaultOptions()
	opts.TempoBPM = exportMidiFlags.bpm
	if err := midifile.Export(p, out, opts); err != nil {
		return failf(exitLoad, "export %s: %v", out, err)
	}
	fmt.Printf("%s: %d notes -> %s\n", p.Name, len(p.Notes), out)
	return nil
}
