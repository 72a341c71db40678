package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/forPelevin/scribe/internal/config"
	"github.com/forPelevin/scribe/internal/domain/languages"
	"github.com/forPelevin/scribe/internal/logging"
	"github.com/forPelevin/scribe/internal/pipeline"
	"github.com/forPelevin/scribe/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/scribe/internal/server"
	"github.com/forPelevin/scribe/internal/usecase"
)

// setup loads configuration and builds a logger. CLI commands log as text
// unless LOG_FORMAT says otherwise.
func setup(cmd *cobra.Command, defaultFormat string) (config.Config, *logrus.Logger, error) {
	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", defaultFormat)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	return cfg, log, nil
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Print the transcript of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0])
		},
	}
	cmd.Flags().String("lang", "", "Preferred language (code or English name)")
	cmd.Flags().Bool("timestamps", false, "Include segment timestamps")
	cmd.Flags().String("format", "text", "Output format: "+strings.Join(pipeline.Formats, "|"))
	cmd.Flags().String("out", "", "Write the result into this directory instead of stdout")
	cmd.Flags().Duration("timeout", 3*time.Hour, "Overall time limit")
	_ = cmd.Flags().MarkHidden("timeout")
	return cmd
}

func runGet(cmd *cobra.Command, rawURL string) error {
	lang, _ := cmd.Flags().GetString("lang")
	timestamps, _ := cmd.Flags().GetBool("timestamps")
	format, _ := cmd.Flags().GetString("format")
	outDir, _ := cmd.Flags().GetString("out")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if !pipeline.ValidFormat(format) {
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(pipeline.Formats, ", "))
	}
	// subtitle formats need segments
	if format == "srt" || format == "vtt" {
		timestamps = true
	}

	cfg, log, err := setup(cmd, "text")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	app, err := pipeline.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Engine.Unload(); err != nil {
			log.WithError(err).Warn("unload model")
		}
		if app.Redis != nil {
			_ = app.Redis.Close()
		}
	}()

	res, err := app.Usecase.Acquire(ctx, usecase.Input{
		URL:               rawURL,
		Language:          lang,
		IncludeTimestamps: timestamps,
	})
	if err != nil {
		return err
	}

	if outDir != "" {
		p, err := pipeline.WriteResult(outDir, res, format)
		if err != nil {
			return err
		}
		log.WithField("path", p).Info("transcript written")
		return nil
	}
	b, err := pipeline.Render(res, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, "json")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := pipeline.Build(ctx, cfg, log)
			if err != nil {
				return err
			}
			if cfg.WhisperPreload {
				h, err := app.Usecase.Preload(ctx, cfg.WhisperModel)
				if err != nil {
					log.WithError(err).Warn("preload failed, model will load on first use")
				} else {
					log.WithField("model", h.ModelName).Info("model preloaded")
				}
			}

			srv := server.New(app.Usecase, server.Options{
				Addr:          cfg.Addr(),
				Redis:         app.Redis,
				Versions:      app.FFmpeg.Versions,
				SweepInterval: cfg.SweepInterval,
				SweepMaxAge:   cfg.SweepMaxAge(),
			}, log)
			return srv.Run(ctx, app.Close)
		},
	}
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete downloaded audio older than the given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, _ := cmd.Flags().GetInt("max-age-hours")
			if hours < 0 {
				return fmt.Errorf("--max-age-hours must be >= 0")
			}
			cfg, log, err := setup(cmd, "text")
			if err != nil {
				return err
			}
			app, err := pipeline.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			n, err := app.Usecase.Sweep(time.Duration(hours) * time.Hour)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s) from %s\n", n, app.Audio.Dir())
			return nil
		},
	}
	cmd.Flags().Int("max-age-hours", 24, "Age threshold in hours; 0 deletes everything")
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List recognition languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "preferred: %s\n", strings.Join(languages.DefaultPreferred, ", "))
			fmt.Fprintf(w, "supported: %s\n", strings.Join(languages.Supported, ", "))
			return nil
		},
	}
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List recognition model presets, smallest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, p := range whispercpp.Presets {
				mark := " "
				if p == whispercpp.DefaultPreset {
					mark = "*"
				}
				fmt.Fprintf(w, "%s %s\n", mark, p)
			}
			return nil
		},
	}
}
