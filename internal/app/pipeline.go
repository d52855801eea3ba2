package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ClipSource searches for and downloads stock clips
type ClipSource interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]domain.Candidate, error)
	AcquireTo(ctx context.Context, candidates []domain.Candidate, destDir string) ([]domain.LocalAsset, error)
}

// VideoCompiler renders a compilation job into a single video file
type VideoCompiler interface {
	Compile(ctx context.Context, job domain.CompilationJob, output string) (string, error)
}

// PipelineDeps are the collaborators of a pipeline. Illustrator and
// Publisher are optional.
type PipelineDeps struct {
	Writer      domain.ScriptWriter
	Clips       ClipSource
	Narrator    domain.Narrator
	Illustrator domain.Illustrator
	Compiler    VideoCompiler
	Publisher   domain.Publisher
}

// PipelineConfig configures a pipeline
type PipelineConfig struct {
	APIKey      string // stock footage search key
	Model       string
	AspectRatio domain.AspectRatio
	TempDir     string
	MaxClips    int
	Bitrate     string
	Transition  domain.TransitionSpec
	// DurationWeight ranks candidates merged across queries
	DurationWeight float64
}

// Pipeline produces one short video per topic
type Pipeline struct {
	deps       PipelineDeps
	config     PipelineConfig
	resolution domain.Resolution
	logger     *zap.Logger
	newID      func() string
}

// NewPipeline validates config and creates a pipeline
func NewPipeline(deps PipelineDeps, config PipelineConfig, log *zap.Logger) (*Pipeline, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, &domain.ValidationError{Field: "api_key", Reason: "is required"}
	}
	if config.AspectRatio == "" {
		config.AspectRatio = domain.AspectPortrait
	}
	resolution, ok := config.AspectRatio.Resolution()
	if !ok {
		return nil, &domain.ValidationError{Field: "aspect_ratio", Reason: fmt.Sprintf("unsupported value %q", config.AspectRatio)}
	}
	if config.TempDir == "" {
		return nil, &domain.ValidationError{Field: "temp_dir", Reason: "is required"}
	}
	if config.MaxClips == 0 {
		config.MaxClips = domain.DefaultConfig().Search.MaxClips
	}
	if config.DurationWeight <= 0 {
		config.DurationWeight = domain.DefaultDurationWeight
	}
	if config.MaxClips < 2 {
		return nil, &domain.ValidationError{Field: "max_clips", Reason: "must be at least 2"}
	}
	if config.Transition.Kind != "" && !domain.ValidateTransition(config.Transition.Kind) {
		return nil, &domain.ValidationError{Field: "transition", Reason: fmt.Sprintf("unsupported value %q", config.Transition.Kind)}
	}
	if deps.Writer == nil || deps.Clips == nil || deps.Narrator == nil || deps.Compiler == nil {
		return nil, &domain.ValidationError{Field: "dependencies", Reason: "script writer, clip source, narrator and compiler are required"}
	}

	return &Pipeline{
		deps:       deps,
		config:     config,
		resolution: resolution,
		logger:     logger.OrNop(log),
		newID:      uuid.NewString,
	}, nil
}

// runState owns the assets produced by one run
type runState struct {
	id      string
	workDir string
	assets  []domain.LocalAsset
	logger  *zap.Logger
}

func (r *runState) add(assets ...domain.LocalAsset) {
	r.assets = append(r.assets, assets...)
}

// abort removes everything the run produced. Failures are logged.
func (r *runState) abort() {
	if err := CleanupAssets(r.assets); err != nil {
		r.logger.Warn("Failed to remove run assets", zap.Error(err))
	}
	if err := os.RemoveAll(r.workDir); err != nil {
		r.logger.Warn("Failed to remove run directory",
			zap.String("dir", r.workDir),
			zap.Error(err))
	}
}

// Run writes a script for topic, gathers clips and narration and compiles
// them into <temp dir>/<run id>/final.mp4. On a fatal error every asset
// produced so far is removed and the first cause is returned.
func (p *Pipeline) Run(ctx context.Context, topic string) (*domain.Result, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, domain.NewConfigurationError("topic is empty")
	}

	id := p.newID()
	run := &runState{
		id:      id,
		workDir: filepath.Join(p.config.TempDir, id),
		logger:  p.logger.With(zap.String("run_id", id)),
	}
	if err := os.MkdirAll(run.workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	result, err := p.run(ctx, run, topic)
	if err != nil {
		run.logger.Error("Run failed", zap.String("topic", topic), zap.Error(err))
		run.abort()
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, run *runState, topic string) (*domain.Result, error) {
	run.logger.Info("Starting run",
		zap.String("topic", topic),
		zap.String("aspect_ratio", string(p.config.AspectRatio)),
		zap.String("model", p.config.Model))

	script, err := p.deps.Writer.WriteScript(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("failed to write script: %w", err)
	}

	selected, err := p.selectCandidates(ctx, run, script.Queries, topic)
	if err != nil {
		return nil, err
	}

	videos, err := p.deps.Clips.AcquireTo(ctx, selected, filepath.Join(run.workDir, "clips"))
	run.add(videos...)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire clips: %w", err)
	}
	if len(videos) < 2 {
		return nil, domain.NewConfigurationError("only %d of %d clips downloaded, need at least 2", len(videos), len(selected))
	}

	narration, err := p.deps.Narrator.Narrate(ctx, script.Text, run.workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to narrate script: %w", err)
	}
	run.add(narration)

	if p.deps.Illustrator != nil {
		image, err := p.deps.Illustrator.Illustrate(ctx, script.Title, run.workDir)
		if err != nil {
			run.logger.Warn("Title card failed, continuing without it", zap.Error(err))
		} else {
			run.add(image)
		}
	}

	clips := make([]domain.Clip, len(videos))
	for i, v := range videos {
		clips[i] = domain.Clip{Path: v.Path}
	}
	job := domain.CompilationJob{
		Clips:      clips,
		Audio:      domain.Clip{Path: narration.Path},
		Resolution: p.resolution,
		Bitrate:    p.config.Bitrate,
		Transition: p.config.Transition,
	}

	output, err := p.deps.Compiler.Compile(ctx, job, filepath.Join(run.workDir, "final.mp4"))
	if err != nil {
		return nil, err
	}

	result := &domain.Result{
		RunID:       run.id,
		Title:       script.Title,
		Description: script.Description,
		Script:      script.Text,
		Status:      fmt.Sprintf("used %d of %d clips", len(videos), len(selected)),
		AspectRatio: p.config.AspectRatio,
		Assets:      run.assets,
		OutputPath:  output,
	}

	if p.deps.Publisher != nil {
		key, err := p.deps.Publisher.Publish(ctx, output)
		if err != nil {
			run.logger.Warn("Publish failed, video kept locally", zap.Error(err))
		} else {
			result.PublishedKey = key
		}
	}

	run.logger.Info("Run completed",
		zap.String("output", output),
		zap.String("status", result.Status))
	return result, nil
}

// selectCandidates searches every query concurrently and keeps the best
// distinct candidates across all of them.
func (p *Pipeline) selectCandidates(ctx context.Context, run *runState, queries []string, topic string) ([]domain.Candidate, error) {
	if len(queries) == 0 {
		queries = []string{topic}
	}
	opts := SearchOptions{Orientation: p.config.AspectRatio.Orientation()}

	lists := make([][]domain.Candidate, len(queries))
	var mu sync.Mutex
	var searchErrs []error

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			found, err := p.deps.Clips.Search(gctx, query, opts)
			if err != nil {
				run.logger.Warn("Query failed", zap.String("query", query), zap.Error(err))
				mu.Lock()
				searchErrs = append(searchErrs, err)
				mu.Unlock()
				return nil
			}
			lists[i] = found
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := RankCandidates(MergeCandidates(lists...), p.config.DurationWeight)
	if len(ranked) > p.config.MaxClips {
		ranked = ranked[:p.config.MaxClips]
	}
	if len(ranked) < 2 {
		return nil, &domain.ConfigurationError{
			Reason: fmt.Sprintf("found %d usable candidates for %q, need at least 2", len(ranked), topic),
			Err:    errors.Join(searchErrs...),
		}
	}

	run.logger.Info("Candidates selected",
		zap.Int("queries", len(queries)),
		zap.Int("selected", len(ranked)))
	return ranked, nil
}

// CleanupAssets removes the files behind assets. Missing files are ignored.
func CleanupAssets(assets []domain.LocalAsset) error {
	var errs []error
	for _, a := range assets {
		if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
