package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/yourusername/shortforge-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.shortforge")
		v.AddConfigPath("/etc/shortforge")
	}

	// SHORTFORGE_SEARCH_API_KEY overrides search.api_key
	v.SetEnvPrefix("SHORTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// bindEnvKeys registers the keys that are commonly supplied only through the
// environment. AutomaticEnv alone does not reach keys absent from the file.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"search.api_key",
		"script.provider",
		"script.api_key",
		"script.model",
		"publish.enabled",
		"publish.access_key",
		"publish.secret_key",
		"publish.bucket",
		"publish.endpoint",
		"compile.aspect_ratio",
		"download.temp_dir",
		"logging.level",
	} {
		v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.TempDir = expandPath(config.Download.TempDir)
	config.Database.Path = expandPath(config.Database.Path)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	if strings.Contains(path, "$HOME") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.ReplaceAll(path, "$HOME", home)
		}
	}

	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return &domain.ValidationError{Field: "server.port", Reason: fmt.Sprintf("out of range: %d", config.Server.Port)}
	}

	if config.Server.MaxConcurrentRuns < 1 {
		return &domain.ValidationError{Field: "server.max_concurrent_runs", Reason: "must be at least 1"}
	}

	if config.Download.TempDir == "" {
		return &domain.ValidationError{Field: "download.temp_dir", Reason: "not configured"}
	}

	if config.Download.BatchSize < 1 {
		return &domain.ValidationError{Field: "download.batch_size", Reason: "must be at least 1"}
	}

	if config.Download.MaxRetries < 1 || config.Download.AttemptRetries < 1 {
		return &domain.ValidationError{Field: "download.max_retries", Reason: "retry counts must be at least 1"}
	}

	if config.Search.MinDuration < 0 || config.Search.MaxDuration < config.Search.MinDuration {
		return &domain.ValidationError{
			Field:  "search.max_duration",
			Reason: fmt.Sprintf("duration range [%g, %g] is empty", config.Search.MinDuration, config.Search.MaxDuration),
		}
	}

	if config.Search.MaxClips < 2 {
		return &domain.ValidationError{Field: "search.max_clips", Reason: "must be at least 2"}
	}

	if _, ok := domain.AspectRatio(config.Compile.AspectRatio).Resolution(); !ok {
		return &domain.ValidationError{Field: "compile.aspect_ratio", Reason: fmt.Sprintf("unsupported value %q", config.Compile.AspectRatio)}
	}

	if config.Compile.Workers < 0 {
		return &domain.ValidationError{Field: "compile.workers", Reason: "cannot be negative"}
	}

	if config.Database.Path == "" {
		return &domain.ValidationError{Field: "database.path", Reason: "not configured"}
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	sections := map[string]interface{}{
		"server":       config.Server,
		"search":       config.Search,
		"download":     config.Download,
		"cache":        config.Cache,
		"compile":      config.Compile,
		"script":       config.Script,
		"narration":    config.Narration,
		"publish":      config.Publish,
		"database":     config.Database,
		"notification": config.Notification,
		"logging":      config.Logging,
	}
	for name, section := range sections {
		// Keys must use the mapstructure names so LoadConfig can read them back
		values := map[string]interface{}{}
		if err := mapstructure.Decode(section, &values); err != nil {
			return fmt.Errorf("failed to encode %s config: %w", name, err)
		}
		for key, value := range values {
			if d, ok := value.(time.Duration); ok {
				value = d.String()
			}
			v.Set(name+"."+key, value)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
