package app

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/internal/infrastructure"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CompileStage is a step of the compilation state machine
type CompileStage string

const (
	StageInitialized        CompileStage = "initialized"
	StageSegmentsRendered   CompileStage = "segments_rendered"
	StageTransitionsApplied CompileStage = "transitions_applied"
	StageAudioMuxed         CompileStage = "audio_muxed"
	StageFinalized          CompileStage = "finalized"
	StageError              CompileStage = "error"
)

// ffmpeg stage names reported in CompilationError
const (
	stageProbeAudio     = "probe_audio"
	stageRenderSegments = "render_segments"
	stageMux            = "mux"
)

// TransitionApplier joins clips with a transition effect
type TransitionApplier interface {
	ApplyTransition(ctx context.Context, clips []domain.Clip, spec domain.TransitionSpec, output string) (string, error)
}

// Compiler turns downloaded clips and narration into the final video
type Compiler struct {
	ff      *infrastructure.FFmpeg
	effects TransitionApplier
	config  *domain.CompileConfig
	logger  *zap.Logger
	pick    func(n int) int
}

// NewCompiler creates a new compiler
func NewCompiler(ff *infrastructure.FFmpeg, effects TransitionApplier, config *domain.CompileConfig, log *zap.Logger) *Compiler {
	return &Compiler{
		ff:      ff,
		effects: effects,
		config:  config,
		logger:  logger.OrNop(log).With(zap.String("component", "compiler")),
		pick:    rand.Intn,
	}
}

// compileRun tracks the stage of one Compile call
type compileRun struct {
	logger *zap.Logger
	stage  CompileStage
	start  time.Time
}

func (r *compileRun) advance(stage CompileStage) {
	r.logger.Info("Compilation stage",
		zap.String("from", string(r.stage)),
		zap.String("to", string(stage)),
		zap.Duration("elapsed", time.Since(r.start)))
	r.stage = stage
}

// Compile renders one segment per clip sized to an equal share of the
// narration, joins the segments with the job's transition and muxes the
// narration on top. Intermediates are removed on every path; on failure the
// output is removed too.
func (c *Compiler) Compile(ctx context.Context, job domain.CompilationJob, output string) (string, error) {
	run := &compileRun{logger: c.logger.With(zap.String("output", output)), start: time.Now()}
	run.advance(StageInitialized)

	path, err := c.compile(ctx, run, job, output)
	if err != nil {
		run.advance(StageError)
		run.logger.Error("Compilation failed", zap.Error(err))
		os.Remove(output)
		return "", err
	}

	run.advance(StageFinalized)
	return path, nil
}

func (c *Compiler) compile(ctx context.Context, run *compileRun, job domain.CompilationJob, output string) (string, error) {
	if len(job.Clips) < 2 {
		return "", domain.NewConfigurationError("compilation needs at least 2 clips, got %d", len(job.Clips))
	}
	if job.Audio.Path == "" {
		return "", domain.NewConfigurationError("compilation needs a narration track")
	}

	resolution := job.Resolution
	if resolution.Width <= 0 || resolution.Height <= 0 {
		r, ok := domain.AspectRatio(c.config.AspectRatio).Resolution()
		if !ok {
			return "", domain.NewConfigurationError("unsupported aspect ratio %q", c.config.AspectRatio)
		}
		resolution = r
	}
	bitrate := job.Bitrate
	if bitrate == "" {
		bitrate = c.config.Bitrate
	}

	audioDuration := job.Audio.Duration
	if audioDuration <= 0 {
		d, err := c.ff.ProbeDuration(ctx, job.Audio.Path)
		if err != nil {
			return "", &domain.CompilationError{Stage: stageProbeAudio, Err: err}
		}
		audioDuration = d
	}
	if audioDuration <= 0 {
		return "", domain.NewConfigurationError("narration has no duration")
	}
	segment := audioDuration / time.Duration(len(job.Clips))

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	workDir, err := os.MkdirTemp(filepath.Dir(output), ".compile-*")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			run.logger.Warn("Failed to remove compilation intermediates",
				zap.String("dir", workDir),
				zap.Error(err))
		}
	}()

	run.logger.Info("Compiling video",
		zap.Int("clips", len(job.Clips)),
		zap.Duration("audio", audioDuration),
		zap.Duration("segment", segment),
		zap.String("resolution", resolution.String()),
		zap.String("bitrate", bitrate))

	segments, err := c.renderSegments(ctx, job.Clips, segment, resolution, bitrate, workDir)
	if err != nil {
		return "", err
	}
	run.advance(StageSegmentsRendered)

	spec := job.Transition
	if spec.Kind == "" {
		spec.Kind = domain.AllTransitionKinds[c.pick(len(domain.AllTransitionKinds))]
	}
	if spec.Duration <= 0 {
		spec.Duration = c.config.TransitionDuration
	}
	clips := make([]domain.Clip, len(segments))
	for i, s := range segments {
		clips[i] = domain.Clip{Path: s, Duration: segment}
	}
	transitioned, err := c.effects.ApplyTransition(ctx, clips, spec, filepath.Join(workDir, "transitioned.mp4"))
	if err != nil {
		return "", err
	}
	run.advance(StageTransitionsApplied)

	if err := c.mux(ctx, transitioned, job.Audio.Path, bitrate, output); err != nil {
		return "", err
	}
	run.advance(StageAudioMuxed)

	if !infrastructure.IsNonEmptyFile(output) {
		return "", &domain.CompilationError{Stage: stageMux, Err: fmt.Errorf("output %s is missing or empty", output)}
	}
	return output, nil
}

// renderSegments encodes every clip to the target size and segment length.
// Clips shorter than a segment are looped so every segment fills its share
// of the narration. Segment i is always written to position i.
func (c *Compiler) renderSegments(ctx context.Context, clips []domain.Clip, segment time.Duration, res domain.Resolution, bitrate, workDir string) ([]string, error) {
	workers := c.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	fps := c.config.FPS
	if fps <= 0 {
		fps = infrastructure.DefaultFPS
	}
	filter := SegmentFilter(res, fps)
	encode := c.videoEncodeArgs(bitrate)

	paths := make([]string, len(clips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, clip := range clips {
		i, clip := i, clip
		paths[i] = filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i))
		g.Go(func() error {
			args := []string{
				"-stream_loop", "-1",
				"-i", clip.Path,
				"-t", strconv.FormatFloat(segment.Seconds(), 'f', 3, 64),
				"-an",
				"-vf", filter,
			}
			args = append(args, encode...)
			args = append(args, paths[i])
			return c.ff.Run(gctx, stageRenderSegments, c.config.StageTimeout, args...)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// videoEncodeArgs holds the encoder settings shared by every re-encoding
// stage: codec, preset, crf and a rate cap of bitrate.
func (c *Compiler) videoEncodeArgs(bitrate string) []string {
	crf := c.config.CRF
	if crf <= 0 {
		crf = infrastructure.DefaultCRF
	}
	preset := c.config.Preset
	if preset == "" {
		preset = infrastructure.DefaultPreset
	}
	return []string{
		"-c:v", infrastructure.DefaultVideoCodec,
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-maxrate", bitrate,
		"-bufsize", doubleRate(bitrate),
	}
}

func (c *Compiler) mux(ctx context.Context, video, audio, bitrate, output string) error {
	audioBitrate := c.config.AudioBitrate
	if audioBitrate == "" {
		audioBitrate = "192k"
	}
	args := []string{
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
	}
	args = append(args, c.videoEncodeArgs(bitrate)...)
	args = append(args,
		"-c:a", infrastructure.DefaultAudioCodec,
		"-b:a", audioBitrate,
		"-shortest",
		"-movflags", "+faststart",
		"-pix_fmt", infrastructure.DefaultPixFmt,
		output,
	)
	return c.ff.Run(ctx, stageMux, c.config.StageTimeout, args...)
}

// SegmentFilter scales and crops a clip to fill res, then applies a light
// sharpen and color grade.
func SegmentFilter(res domain.Resolution, fps int) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,unsharp=5:5:1.0,eq=contrast=1.1:brightness=0.03:saturation=1.15,fps=%d,format=%s",
		res.Width, res.Height, res.Width, res.Height, fps, infrastructure.DefaultPixFmt)
}

// doubleRate returns twice an ffmpeg rate such as "4M" or "2500k". Values
// that do not parse are returned unchanged.
func doubleRate(rate string) string {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return rate
	}
	unit := ""
	number := rate
	if last := rate[len(rate)-1]; last < '0' || last > '9' {
		unit = rate[len(rate)-1:]
		number = rate[:len(rate)-1]
	}
	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return rate
	}
	return strconv.FormatFloat(n*2, 'f', -1, 64) + unit
}
