package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scribe",
		Short:         "Fetch video transcripts from native captions or speech recognition",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	root.PersistentFlags().String("log-level", "", "Log level (overrides LOG_LEVEL)")

	root.AddCommand(
		newGetCmd(),
		newServeCmd(),
		newSweepCmd(),
		newLanguagesCmd(),
		newModelsCmd(),
	)
	return root
}
