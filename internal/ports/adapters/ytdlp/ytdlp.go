package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/domain/videoid"
	"github.com/forPelevin/scribe/internal/netx"
)

type Config struct {
	Bin          string
	CookieFile   string
	AudioFormat  string
	AudioQuality string
}

// Adapter drives the yt-dlp binary for subtitle discovery, metadata and
// audio download.
type Adapter struct {
	cfg  Config
	http *netx.Client
	log  logrus.FieldLogger
}

func New(cfg Config, client *netx.Client, log logrus.FieldLogger) *Adapter {
	if cfg.Bin == "" {
		cfg.Bin = "yt-dlp"
	}
	if cfg.AudioFormat == "" {
		cfg.AudioFormat = "mp3"
	}
	if cfg.AudioQuality == "" {
		cfg.AudioQuality = "128K"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Adapter{cfg: cfg, http: client, log: log}
}

func (a *Adapter) baseArgs() []string {
	args := []string{
		"--no-warnings",
		"--no-playlist",
		"--no-check-certificates",
		"--no-cache-dir",
		"--user-agent", netx.BrowserUA,
	}
	if a.cfg.CookieFile != "" {
		if _, err := os.Stat(a.cfg.CookieFile); err == nil {
			args = append(args, "--cookies", a.cfg.CookieFile)
		} else {
			a.log.WithField("path", a.cfg.CookieFile).Debug("cookie file not found, continuing without it")
		}
	}
	return args
}

// run executes yt-dlp in dir and returns stdout and stderr separately.
func (a *Adapter) run(ctx context.Context, dir string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, a.cfg.Bin, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("yt-dlp: %w\n%s", err, netx.Truncate(stderr.String(), 2000))
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func watchURL(id string) string { return videoid.WatchURL(id) }
