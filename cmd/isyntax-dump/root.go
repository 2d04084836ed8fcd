// Command isyntax-dump is a small diagnostic CLI over the decoder API
// (spec.md §6): it opens a file, prints its header metadata, and dumps a
// single tile or thumbnail to a PNG file. Structured after the teacher's
// cmd/ctl cobra wiring (persistent --log-level flag parsed in
// PersistentPreRunE, one subcommand per operation).
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "isyntax-dump",
		Short: "inspect and decode tiles from an iSyntax whole-slide image",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			levelFlag, _ := cmd.Flags().GetString("log-level")
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(levelFlag))); err != nil {
				level = slog.LevelInfo
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	cmd.PersistentFlags().String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	cmd.AddCommand(newInfoCmd(), newTileCmd(), newThumbnailCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
