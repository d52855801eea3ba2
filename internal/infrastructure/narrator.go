package infrastructure

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// CommandNarrator synthesizes speech with a local TTS binary such as espeak-ng
type CommandNarrator struct {
	binary  string
	voice   string
	timeout time.Duration
	runner  CommandRunner
	logger  *zap.Logger
}

// NewCommandNarrator creates a new narrator. A nil runner uses ExecRunner.
func NewCommandNarrator(config *domain.NarrationConfig, runner CommandRunner, log *zap.Logger) *CommandNarrator {
	if runner == nil {
		runner = ExecRunner{}
	}
	binary := config.Binary
	if binary == "" {
		binary = "espeak-ng"
	}
	return &CommandNarrator{
		binary:  binary,
		voice:   config.Voice,
		timeout: config.Timeout,
		runner:  runner,
		logger:  logger.OrNop(log),
	}
}

// Narrate implements domain.Narrator
func (n *CommandNarrator) Narrate(ctx context.Context, text, dir string) (domain.LocalAsset, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.LocalAsset{}, domain.NewConfigurationError("narration text is empty")
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	output := filepath.Join(dir, "narration.wav")
	args := []string{}
	if n.voice != "" {
		args = append(args, "-v", n.voice)
	}
	args = append(args, "-w", output, text)

	n.logger.Info("Synthesizing narration",
		zap.String("binary", n.binary),
		zap.Int("chars", len(text)))

	out, err := n.runner.Run(ctx, n.binary, args...)
	if err != nil {
		return domain.LocalAsset{}, fmt.Errorf("narration failed: %w: %s", err, tail(string(out.Stderr), 256))
	}

	asset, err := domain.NewLocalAsset(output, domain.AssetAudio)
	if err != nil {
		return domain.LocalAsset{}, fmt.Errorf("narration produced no audio: %w", err)
	}
	return asset, nil
}
