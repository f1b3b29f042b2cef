package main

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-vocal/internal/audioio"
	"github.com/cwbudde/algo-vocal/internal/logging"
	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/projfile"
	"github.com/cwbudde/algo-vocal/vocoder"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var renderFlags struct {
	output string
}

var renderCmd = &cobra.Command{
	Use:   "render <project.htpx>",
	Short: "Re-synthesize a project's edited pitch to a wav file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRender(args[0])
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderFlags.output, "output", "o", "", "wav file to write (default: project with _render.wav suffix)")
	rootCmd.AddCommand(renderCmd)
}

func runRender(projectPath string) error {
	p, err := projfile.Load(projectPath)
	if err != nil {
		return failf(exitLoad, "load %s: %v", projectPath, err)
	}

	audioPath := p.AudioPath
	if audioPath != "" && !filepath.IsAbs(audioPath) {
		audioPath = filepath.Join(filepath.Dir(projectPath), audioPath)
	}
	samples, _, err := audioio.LoadMono(audioPath, mel.SampleRate)
	if err != nil {
		return failf(exitLoad, "load audio %s: %v", audioPath, err)
	}
	p.Audio.Waveform = samples
	p.Audio.SampleRate = mel.SampleRate

	ext, err := mel.NewExtractor()
	if err != nil {
		return failf(exitSynthesis, "mel extractor: %v", err)
	}
	melSpec, err := ext.Compute(samples)
	if err != nil {
		return failf(exitSynthesis, "mel: %v", err)
	}
	t := p.Audio.NumFrames()
	if len(melSpec) > t {
		melSpec = melSpec[:t]
	}

	f0 := p.ComposeF0(true, p.GlobalPitchOffset)
	if len(f0) > len(melSpec) {
		f0 = f0[:len(melSpec)]
	}

	runner := vocoder.NewRunner(vocoder.NewHarmonic())
	defer runner.Close()
	pcm, err := runner.Infer(melSpec, f0)
	if err != nil {
		return failf(exitSynthesis, "synthesis: %v", err)
	}
	logging.Info("track rendered",
		zap.Int("frames", len(melSpec)),
		zap.Int("samples", len(pcm)))

	if p.VolumeDB != 0 {
		gain := math.Pow(10, p.VolumeDB/20)
		for i := range pcm {
			pcm[i] *= gain
		}
	}

	out := renderFlags.output
	if out == "" {
		out = strings.TrimSuffix(projectPath, filepath.Ext(projectPath)) + "_render.wav"
	}
	if err := audioio.SaveMono(out, pcm, mel.SampleRate); err != nil {
		return failf(exitSynthesis, "save %s: %v", out, err)
	}
	fmt.Printf("%s: %d samples (%.2f s) -> %s\n",
		p.Name, len(pcm), float64(len(pcm))/mel.SampleRate, out)
	return nil
}
