package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultFPS        = 30
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultPixFmt     = "yuv420p"

	// DefaultStageTimeout bounds an ffmpeg stage run without its own timeout
	DefaultStageTimeout = 10 * time.Minute
)

// CommandOutput holds the captured streams of a finished command
type CommandOutput struct {
	Stdout []byte
	Stderr []byte
}

// CommandRunner runs an external binary to completion
type CommandRunner interface {
	Run(ctx context.Context, binary string, args ...string) (CommandOutput, error)
}

// ExecRunner runs commands with os/exec. The process is killed when ctx ends.
type ExecRunner struct{}

// Run implements CommandRunner
func (ExecRunner) Run(ctx context.Context, binary string, args ...string) (CommandOutput, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return CommandOutput{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, err
}

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	Duration   time.Duration
	Width      int
	Height     int
	VideoCodec string
	PixFmt     string
	HasAudio   bool
}

// FFmpeg wraps the ffmpeg and ffprobe binaries
type FFmpeg struct {
	ffmpegPath   string
	ffprobePath  string
	probeTimeout time.Duration
	stageTimeout time.Duration
	runner       CommandRunner
	logger       *zap.Logger

	filtersOnce sync.Once
	filters     map[string]bool
}

// NewFFmpeg creates a new ffmpeg wrapper. A nil runner uses ExecRunner.
func NewFFmpeg(config *domain.CompileConfig, runner CommandRunner, log *zap.Logger) *FFmpeg {
	if runner == nil {
		runner = ExecRunner{}
	}
	ffmpegPath := config.FFmpegBinary
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobePath := config.FFprobeBinary
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	probeTimeout := config.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	stageTimeout := config.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = DefaultStageTimeout
	}
	return &FFmpeg{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		probeTimeout: probeTimeout,
		stageTimeout: stageTimeout,
		runner:       runner,
		logger:       logger.OrNop(log).With(zap.String("component", "ffmpeg")),
	}
}

// CheckBinaries verifies ffmpeg and ffprobe are installed
func (f *FFmpeg) CheckBinaries() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return nil
}

// Run executes ffmpeg for one pipeline stage. A timeout of zero or less uses
// compile.stage_timeout. Any failure, including the timeout, is reported as a
// CompilationError naming the stage.
func (f *FFmpeg) Run(ctx context.Context, stage string, timeout time.Duration, args ...string) error {
	fullArgs := append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)
	command := ShellEscapeCommand(f.ffmpegPath, fullArgs...)

	if timeout <= 0 {
		timeout = f.stageTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f.logger.Debug("Executing ffmpeg",
		zap.String("stage", stage),
		zap.String("command", command))

	start := time.Now()
	out, err := f.runner.Run(runCtx, f.ffmpegPath, fullArgs...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)
		} else if ctx.Err() != nil {
			err = ctx.Err()
		}
		compErr := &domain.CompilationError{
			Stage:   stage,
			Command: command,
			Output:  tail(string(out.Stderr), 1024),
			Err:     err,
		}
		f.logger.Error("ffmpeg failed",
			zap.String("stage", stage),
			zap.String("command", command),
			zap.Error(err))
		return compErr
	}

	f.logger.Debug("ffmpeg completed",
		zap.String("stage", stage),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// ProbeDuration returns the container duration of a media file
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	out, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w: %s", path, err, tail(string(out.Stderr), 256))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out.Stdout)), 64)
	if err != nil || seconds <= 0 {
		return 0, fmt.Errorf("failed to parse duration of %s: %q", path, strings.TrimSpace(string(out.Stdout)))
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Probe extracts stream metadata from a media file
func (f *FFmpeg) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	out, err := f.runner.Run(ctx, f.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var probe probeResult
	if err := json.Unmarshal(out.Stdout, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(dur * float64(time.Second))
	}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = stream.Width
				info.Height = stream.Height
				info.VideoCodec = stream.CodecName
				info.PixFmt = stream.PixFmt
			}
		case "audio":
			info.HasAudio = true
		}
	}
	return info, nil
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		PixFmt    string `json:"pix_fmt"`
	} `json:"streams"`
}

// HasFilter reports whether the ffmpeg build provides the named filter. If
// the filter list cannot be read every filter is assumed present.
func (f *FFmpeg) HasFilter(ctx context.Context, name string) bool {
	f.filtersOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
		defer cancel()

		out, err := f.runner.Run(ctx, f.ffmpegPath, "-hide_banner", "-filters")
		if err != nil {
			f.logger.Warn("Could not list ffmpeg filters", zap.Error(err))
			return
		}
		f.filters = parseFilterList(string(out.Stdout))
	})
	if f.filters == nil {
		return true
	}
	return f.filters[name]
}

// parseFilterList reads the table printed by `ffmpeg -filters`, where each
// row is "<flags> <name> <io> <description>".
func parseFilterList(output string) map[string]bool {
	filters := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		filters[fields[1]] = true
	}
	return filters
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// formatSeconds renders a duration as ffmpeg seconds
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
