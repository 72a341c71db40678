package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/forPelevin/scribe/internal/netx"
	"github.com/forPelevin/scribe/internal/ports/adapters/innertube"
	"github.com/forPelevin/scribe/internal/ports/adapters/whispercpp"
)

type Config struct {
	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8000"`

	// Audio downloads
	WorkDir        string `env:"WORK_DIR" envDefault:".cache/audio"`
	MaxAudioSizeMB int64  `env:"MAX_AUDIO_SIZE_MB" envDefault:"500"`
	AudioFormat    string `env:"AUDIO_FORMAT" envDefault:"mp3"`
	AudioQuality   string `env:"AUDIO_QUALITY" envDefault:"128K"`

	// External tools
	YtDlpPath   string `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	FFprobePath string `env:"FFPROBE_PATH" envDefault:"ffprobe"`
	CookieFile  string `env:"COOKIE_FILE"`

	// Native captions
	InnertubeBaseURL string        `env:"INNERTUBE_BASE_URL" envDefault:"https://www.youtube.com"`
	SubtitleTimeout  time.Duration `env:"SUBTITLE_TIMEOUT" envDefault:"30s"`
	RequestsPerSec   float64       `env:"REQUESTS_PER_SECOND" envDefault:"4"`
	Languages        []string      `env:"DEFAULT_LANGUAGES" envDefault:"es,en,es-419,en-US"`

	// Recognition engine
	WhisperServerBin    string        `env:"WHISPER_SERVER_BIN" envDefault:"whisper-server"`
	WhisperModelsDir    string        `env:"WHISPER_MODELS_DIR" envDefault:".cache/models"`
	WhisperModel        string        `env:"WHISPER_MODEL" envDefault:"small"`
	WhisperDevice       string        `env:"WHISPER_DEVICE" envDefault:"auto"`
	WhisperThreads      int           `env:"WHISPER_THREADS" envDefault:"0"`
	WhisperBeamSize     int           `env:"WHISPER_BEAM_SIZE" envDefault:"5"`
	WhisperBestOf       int           `env:"WHISPER_BEST_OF" envDefault:"5"`
	WhisperVADModel     string        `env:"WHISPER_VAD_MODEL"`
	WhisperStartTimeout time.Duration `env:"WHISPER_START_TIMEOUT" envDefault:"2m"`
	WhisperPreload      bool          `env:"WHISPER_PRELOAD" envDefault:"false"`

	// Metadata
	YouTubeAPIKey    string        `env:"YOUTUBE_API_KEY"`
	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	MetadataCacheTTL time.Duration `env:"METADATA_CACHE_TTL" envDefault:"24h"`
	MetadataTimeout  time.Duration `env:"METADATA_TIMEOUT" envDefault:"5s"`

	// Maintenance
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	SweepMaxAgeHours int           `env:"SWEEP_MAX_AGE_HOURS" envDefault:"24"`
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.WorkDir == "" {
		return errors.New("WORK_DIR is empty")
	}
	if c.MaxAudioSizeMB <= 0 {
		return fmt.Errorf("MAX_AUDIO_SIZE_MB must be > 0")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.SubtitleTimeout <= 0 {
		return fmt.Errorf("SUBTITLE_TIMEOUT must be > 0")
	}
	if c.MetadataTimeout <= 0 {
		return fmt.Errorf("METADATA_TIMEOUT must be > 0")
	}
	if c.SweepMaxAgeHours < 0 {
		return fmt.Errorf("SWEEP_MAX_AGE_HOURS must be >= 0")
	}
	if !whispercpp.ValidPreset(c.WhisperModel) {
		return fmt.Errorf("WHISPER_MODEL %q is not one of %v", c.WhisperModel, whispercpp.Presets)
	}
	switch c.WhisperDevice {
	case "", "auto", "cpu", "accelerator", "gpu", "cuda", "metal":
	default:
		return fmt.Errorf("WHISPER_DEVICE %q is not supported", c.WhisperDevice)
	}
	return netx.ValidateBaseURL("INNERTUBE_BASE_URL", c.InnertubeBaseURL, innertube.AllowedHosts)
}

func (c Config) MaxAudioBytes() int64 { return c.MaxAudioSizeMB << 20 }

func (c Config) SweepMaxAge() time.Duration {
	return time.Duration(c.SweepMaxAgeHours) * time.Hour
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
