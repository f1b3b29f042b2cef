package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cwbudde/algo-vocal/analysis"
	"github.com/cwbudde/algo-vocal/internal/audioio"
	"github.com/cwbudde/algo-vocal/internal/logging"
	"github.com/cwbudde/algo-vocal/mel"
	"github.com/cwbudde/algo-vocal/models"
	"github.com/cwbudde/algo-vocal/pitch"
	"github.com/cwbudde/algo-vocal/projfile"
	"github.com/cwbudde/algo-vocal/vocal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeFlags struct {
	output   string
	detector string
	modelDir string
	name     string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <audio.wav>",
	Short: "Detect pitch and notes in a recording and write a project file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(args[0])
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFlags.output, "output", "o", "", "project file to write (default: input with .htpx extension)")
	analyzeCmd.Flags().StringVar(&analyzeFlags.detector, "detector", "", "pitch detector: yin, fcpe or rmvpe (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeFlags.modelDir, "model-dir", "", "directory holding the .onnx model files")
	analyzeCmd.Flags().StringVar(&analyzeFlags.name, "name", "", "project name (default: audio file base name)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(audioPath string) error {
	detector := analyzeFlags.detector
	if detector == "" {
		detector = cfg.Detector
	}
	method, err := pitch.ParseMethod(detector)
	if err != nil {
		return failf(exitUsage, "%v", err)
	}

	modelDir := analyzeFlags.modelDir
	if modelDir == "" {
		modelDir = cfg.ModelDir
	}
	if reg, err := models.NewRegistry(modelDir); err == nil {
		defer reg.Close()
		for _, m := range []string{models.FileFCPE, models.FileRMVPE, models.FileVocoder, models.FileSegmenter} {
			logging.Debug("model file",
				zap.String("name", m),
				zap.Bool("available", reg.Available(m)))
		}
	} else {
		logging.Warn("model directory unavailable", zap.String("dir", modelDir), zap.Error(err))
	}

	samples, nativeRate, err := audioio.LoadMono(audioPath, mel.SampleRate)
	if err != nil {
		return failf(exitLoad, "load %s: %v", audioPath, err)
	}
	logging.Info("audio loaded",
		zap.String("path", audioPath),
		zap.Int("nativeRate", nativeRate),
		zap.Int("samples", len(samples)))

	res, err := analysis.Run(samples, analysis.Options{
		Method: method,
		OnProgress: func(pr analysis.Progress) {
			fmt.Printf("\r%-22s %3.0f%%", pr.Stage, pr.Fraction*100)
		},
	})
	fmt.Println()
	if err != nil {
		return failf(exitAnalysis, "analysis: %v", err)
	}
	if res.MethodUsed != method {
		fmt.Printf("detector %s unavailable, used %s\n", method, res.MethodUsed)
	}

	name := analyzeFlags.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	}
	p := vocal.NewProject(name)
	p.AudioPath = audioPath
	p.Audio.Waveform = samples
	p.Audio.SampleRate = mel.SampleRate
	analysis.Publish(p, res)

	out := analyzeFlags.output
	if out == "" {
		out = strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".htpx"
	}
	if err := projfile.Save(p, out); err != nil {
		return failf(exitLoad, "save %s: %v", out, err)
	}

	voiced := 0
	for _, v := range p.Audio.VoicedMask {
		if v {
			voiced++
		}
	}
	fmt.Printf("%s: %d frames, %d voiced, %d notes -> %s\n",
		name, p.Audio.NumFrames(), voiced, len(p.Notes), out)
	return nil
}
