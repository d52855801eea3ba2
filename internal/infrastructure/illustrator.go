package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// TitleCardIllustrator renders a plain title card image with ffmpeg
type TitleCardIllustrator struct {
	ff         *FFmpeg
	resolution domain.Resolution
	logger     *zap.Logger
}

// NewTitleCardIllustrator creates a new illustrator
func NewTitleCardIllustrator(ff *FFmpeg, resolution domain.Resolution, log *zap.Logger) *TitleCardIllustrator {
	return &TitleCardIllustrator{
		ff:         ff,
		resolution: resolution,
		logger:     logger.OrNop(log),
	}
}

// Illustrate implements domain.Illustrator
func (i *TitleCardIllustrator) Illustrate(ctx context.Context, title, dir string) (domain.LocalAsset, error) {
	// drawtext reads the title from a file so it needs no filtergraph escaping
	textFile := filepath.Join(dir, "title.txt")
	if err := os.WriteFile(textFile, []byte(title), 0644); err != nil {
		return domain.LocalAsset{}, fmt.Errorf("failed to write title: %w", err)
	}
	defer os.Remove(textFile)

	output := filepath.Join(dir, "title.png")
	filter := fmt.Sprintf(
		"drawtext=textfile='%s':fontcolor=white:fontsize=h/18:x=(w-text_w)/2:y=(h-text_h)/2",
		quoteFilterValue(textFile))

	// zero falls back to compile.stage_timeout
	err := i.ff.Run(ctx, "illustrate", 0,
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%s", i.resolution),
		"-vf", filter,
		"-frames:v", "1",
		output,
	)
	if err != nil {
		return domain.LocalAsset{}, err
	}

	i.logger.Debug("Title card rendered", zap.String("path", output))
	return domain.NewLocalAsset(output, domain.AssetImage)
}

// quoteFilterValue prepares s for use inside a single quoted filter option
func quoteFilterValue(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}
