package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/scribe/internal/audio"
	"github.com/forPelevin/scribe/internal/config"
	"github.com/forPelevin/scribe/internal/domain/subtitles"
	"github.com/forPelevin/scribe/internal/drivers/rdb"
	"github.com/forPelevin/scribe/internal/metadata"
	"github.com/forPelevin/scribe/internal/netx"
	"github.com/forPelevin/scribe/internal/ports"
	"github.com/forPelevin/scribe/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/scribe/internal/ports/adapters/innertube"
	"github.com/forPelevin/scribe/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/scribe/internal/ports/adapters/youtube"
	"github.com/forPelevin/scribe/internal/ports/adapters/ytdlp"
	"github.com/forPelevin/scribe/internal/usecase"
)

// App is the wired engine plus the resources the process must release.
type App struct {
	Usecase usecase.Usecase
	Engine  *whispercpp.Engine
	Audio   *audio.Manager
	FFmpeg  *ffmpeg.Adapter
	// Redis is nil when REDIS_ADDR is unset.
	Redis *rdb.Service
}

// Build wires adapters from cfg. It starts no processes; the recognition
// model loads lazily unless the caller preloads it.
func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	client := netx.NewClient(cfg.SubtitleTimeout, cfg.RequestsPerSec)

	yt := ytdlp.New(ytdlp.Config{
		Bin:          cfg.YtDlpPath,
		CookieFile:   cfg.CookieFile,
		AudioFormat:  cfg.AudioFormat,
		AudioQuality: cfg.AudioQuality,
	}, client, log.WithField("component", "yt-dlp"))

	v := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)

	engine := whispercpp.New(whispercpp.Config{
		ServerBin:    cfg.WhisperServerBin,
		ModelsDir:    cfg.WhisperModelsDir,
		Model:        cfg.WhisperModel,
		Device:       cfg.WhisperDevice,
		Threads:      cfg.WhisperThreads,
		BeamSize:     cfg.WhisperBeamSize,
		BestOf:       cfg.WhisperBestOf,
		VADModel:     cfg.WhisperVADModel,
		StartTimeout: cfg.WhisperStartTimeout,
	}, v, log)

	am, err := audio.New(cfg.WorkDir, yt, cfg.MaxAudioBytes(), log.WithField("component", "audio"))
	if err != nil {
		return nil, err
	}

	var rs *rdb.Service
	if cfg.RedisAddr != "" {
		rs, err = rdb.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}
		if _, err := rs.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unreachable, metadata cache degrades to pass-through")
		}
	}

	var sources metadata.Chain
	if cfg.YouTubeAPIKey != "" {
		api, err := youtube.New(ctx, cfg.YouTubeAPIKey)
		if err != nil {
			return nil, err
		}
		sources = append(sources, api)
	}
	sources = append(sources, yt)
	meta := metadata.NewCached(sources, rs, cfg.MetadataCacheTTL, log.WithField("component", "metadata"))

	uc := usecase.New(usecase.Deps{
		Tiers: []ports.CaptionTier{
			innertube.New(cfg.InnertubeBaseURL, client, log.WithField("component", "innertube")),
			yt.SubtitleTier(),
		},
		Audio:           am,
		ASR:             engine,
		Models:          engine,
		Metadata:        meta,
		MetadataTimeout: cfg.MetadataTimeout,
		Languages:       cfg.Languages,
		Log:             log,
	})

	return &App{Usecase: uc, Engine: engine, Audio: am, FFmpeg: v, Redis: rs}, nil
}

// Close unloads the model and flushes every downloaded file.
func (a *App) Close() error {
	var errs []error
	if err := a.Engine.Unload(); err != nil {
		errs = append(errs, fmt.Errorf("unload: %w", err))
	}
	if _, err := a.Audio.Sweep(0); err != nil {
		errs = append(errs, fmt.Errorf("sweep: %w", err))
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Formats accepted by Render.
var Formats = []string{"text", "json", "srt", "vtt"}

func ValidFormat(format string) bool {
	return slices.Contains(Formats, format)
}

// Render encodes an acquisition result in one of Formats.
func Render(res usecase.Result, format string) ([]byte, error) {
	switch format {
	case "", "text":
		return []byte(res.Transcript.Text + "\n"), nil
	case "json":
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		return append(b, '\n'), nil
	case "srt":
		s, err := subtitles.RenderSRT(res.Transcript)
		return []byte(s), err
	case "vtt":
		s, err := subtitles.RenderVTT(res.Transcript)
		return []byte(s), err
	}
	return nil, fmt.Errorf("unknown format %q (want one of %v)", format, Formats)
}

// WriteResult renders res into outDir under a name derived from the video
// title and returns the written path.
func WriteResult(outDir string, res usecase.Result, format string) (string, error) {
	b, err := Render(res, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(outDir, outputName(res.Video.ID, res.Video.Title, format))
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func outputName(id, title, format string) string {
	ext := format
	if ext == "" || ext == "text" {
		ext = "txt"
	}
	name := normalizePathSegment(title)
	if len(name) > 60 {
		name = strings.Trim(name[:60], "-")
	}
	if name == "" {
		name = "video"
	}
	if id == "" {
		id = hash(title)[:11]
	}
	return fmt.Sprintf("%s-%s.%s", name, id, ext)
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Engine)(nil)
var _ ports.ModelManager = (*whispercpp.Engine)(nil)
var _ ports.AudioSource = (*ytdlp.Adapter)(nil)
var _ ports.Metadata = (*ytdlp.Adapter)(nil)
var _ ports.Metadata = (*youtube.Service)(nil)
var _ ports.Metadata = (*metadata.Cached)(nil)
var _ ports.CaptionTier = (*innertube.Tier)(nil)
var _ ports.CaptionTier = (*ytdlp.SubtitleTier)(nil)
var _ ports.AudioStore = (*audio.Manager)(nil)
