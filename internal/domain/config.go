package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Search       SearchConfig       `mapstructure:"search"`
	Download     DownloadConfig     `mapstructure:"download"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Compile      CompileConfig      `mapstructure:"compile"`
	Script       ScriptConfig       `mapstructure:"script"`
	Narration    NarrationConfig    `mapstructure:"narration"`
	Publish      PublishConfig      `mapstructure:"publish"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	MaxConcurrentRuns int    `mapstructure:"max_concurrent_runs"`
}

// SearchConfig contains stock footage search configuration
type SearchConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxResults     int           `mapstructure:"max_results"`
	MinDuration    float64       `mapstructure:"min_duration"` // seconds
	MaxDuration    float64       `mapstructure:"max_duration"` // seconds
	DurationWeight float64       `mapstructure:"duration_weight"`
	MinCandidates  int           `mapstructure:"min_candidates"`
	MaxClips       int           `mapstructure:"max_clips"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DownloadConfig contains clip download configuration
type DownloadConfig struct {
	TempDir        string        `mapstructure:"temp_dir"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxRetries     int           `mapstructure:"max_retries"` // transport attempts per download
	RetryDelay     time.Duration `mapstructure:"retry_delay"` // linear backoff base
	AttemptRetries int           `mapstructure:"attempt_retries"`
	AttemptBackoff time.Duration `mapstructure:"attempt_backoff"` // exponential backoff base
	Timeout        time.Duration `mapstructure:"timeout"`         // per attempt
}

// CacheConfig contains result cache configuration
type CacheConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// CompileConfig contains ffmpeg compilation configuration
type CompileConfig struct {
	FFmpegBinary       string        `mapstructure:"ffmpeg_binary"`
	FFprobeBinary      string        `mapstructure:"ffprobe_binary"`
	AspectRatio        string        `mapstructure:"aspect_ratio"`
	Bitrate            string        `mapstructure:"bitrate"`
	AudioBitrate       string        `mapstructure:"audio_bitrate"`
	CRF                int           `mapstructure:"crf"`
	Preset             string        `mapstructure:"preset"`
	FPS                int           `mapstructure:"fps"`
	Workers            int           `mapstructure:"workers"` // 0 means runtime.NumCPU()
	TransitionDuration time.Duration `mapstructure:"transition_duration"`
	StageTimeout       time.Duration `mapstructure:"stage_timeout"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
}

// ScriptConfig contains script generation configuration
type ScriptConfig struct {
	Provider string        `mapstructure:"provider"` // template, chat
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NarrationConfig contains text-to-speech configuration
type NarrationConfig struct {
	Binary  string        `mapstructure:"binary"`
	Voice   string        `mapstructure:"voice"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PublishConfig contains object storage upload configuration
type PublishConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// DatabaseConfig contains run history configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "localhost",
			Port:              8080,
			MaxConcurrentRuns: 1,
		},
		Search: SearchConfig{
			BaseURL:        "https://api.pexels.com",
			MaxResults:     15,
			MinDuration:    3,
			MaxDuration:    60,
			DurationWeight: DefaultDurationWeight,
			MinCandidates:  8,
			MaxClips:       6,
			CacheTTL:       10 * time.Minute,
			RequestTimeout: 15 * time.Second,
		},
		Download: DownloadConfig{
			TempDir:        "$HOME/.shortforge/tmp",
			BatchSize:      5,
			MaxRetries:     3,
			RetryDelay:     time.Second,
			AttemptRetries: 3,
			AttemptBackoff: time.Second,
			Timeout:        60 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries: 256,
		},
		Compile: CompileConfig{
			FFmpegBinary:       "ffmpeg",
			FFprobeBinary:      "ffprobe",
			AspectRatio:        "9:16",
			Bitrate:            "4M",
			AudioBitrate:       "192k",
			CRF:                23,
			Preset:             "medium",
			FPS:                30,
			Workers:            0,
			TransitionDuration: time.Second,
			StageTimeout:       10 * time.Minute,
			ProbeTimeout:       30 * time.Second,
		},
		Script: ScriptConfig{
			Provider: "template",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
		},
		Narration: NarrationConfig{
			Binary:  "espeak-ng",
			Voice:   "en-us",
			Timeout: 2 * time.Minute,
		},
		Publish: PublishConfig{
			Enabled:   false,
			KeyPrefix: "shorts/",
		},
		Database: DatabaseConfig{
			Path: "$HOME/.shortforge/runs.db",
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
		},
	}
}
