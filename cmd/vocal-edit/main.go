// Command vocal-edit is the command line companion to the pitch editor
// core: it analyzes recordings into project files, renders edited
// projects back to audio and exports note tracks as MIDI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cwbudde/algo-vocal/config"
	"github.com/cwbudde/algo-vocal/internal/logging"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK = iota
	exitUsage
	exitLoad
	exitAnalysis
	exitSynthesis
)

// exitError carries a process exit code through cobra's RunE chain.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func failf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "vocal-edit",
	Short:         "Monophonic vocal pitch analysis and re-synthesis",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logging.Init(logging.Config{
			Level:      cfg.LogLevel,
			OutputPath: cfg.LogPath,
		})
	},
}

func main() {
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vocal-edit:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitUsage)
	}
}
