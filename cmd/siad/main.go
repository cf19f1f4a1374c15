// Command siad is the Social Image Archiver daemon. The command tree
// follows the teacher's cmd/aleutian package-level cobra.Command
// variables, reduced to the three subcommands this daemon needs:
// serve, repair, and init-config.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "siad",
	Short: "Social Image Archiver daemon",
	Long:  "siad authenticates browser-side save requests, downloads and deduplicates images, and keeps a JSON gallery index in sync with an on-disk folder tree.",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default ~/.sia/config.yaml)")
	rootCmd.AddCommand(serveCmd, repairCmd, initConfigCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to the exit codes spec.md §6 assigns to any
// CLI wrapper: 0 success, 2 configuration error, 3 runtime error.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *configError
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 3
}

// configError marks an error as a configuration-load/validation failure
// rather than a runtime failure, for exitCodeFor.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func wrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configError{err: err}
}

// newLogger builds the process-wide structured logger: JSON when stderr
// is not a TTY (piped to a log collector), text when it is (a developer
// at a terminal).
func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
