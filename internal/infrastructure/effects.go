package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// Stage names reported in CompilationError
const (
	StageTransition = "transition"
	StageCopy       = "copy"
	StageConcat     = "concat"
)

const (
	defaultTransitionDuration = time.Second
	maxZoom                   = 0.2
)

// EffectEngine applies transitions and joins clips with the concat demuxer
type EffectEngine struct {
	ff      *FFmpeg
	crf     int
	preset  string
	fps     int
	timeout time.Duration
	logger  *zap.Logger
}

// NewEffectEngine creates a new effect engine
func NewEffectEngine(ff *FFmpeg, config *domain.CompileConfig, log *zap.Logger) *EffectEngine {
	e := &EffectEngine{
		ff:      ff,
		crf:     config.CRF,
		preset:  config.Preset,
		fps:     config.FPS,
		timeout: config.StageTimeout,
		logger:  logger.OrNop(log),
	}
	if e.crf <= 0 {
		e.crf = DefaultCRF
	}
	if e.preset == "" {
		e.preset = DefaultPreset
	}
	if e.fps <= 0 {
		e.fps = DefaultFPS
	}
	return e
}

// requiredFilters lists the ffmpeg filters each transition depends on
var requiredFilters = map[domain.TransitionKind][]string{
	domain.TransitionFadeIn:    {"fade"},
	domain.TransitionFadeOut:   {"fade"},
	domain.TransitionSwipeUp:   {"pad", "crop"},
	domain.TransitionSwipeDown: {"pad", "crop"},
	domain.TransitionZoomIn:    {"zoompan"},
	domain.TransitionZoomOut:   {"zoompan"},
}

// ApplyTransition renders every clip but the last with the transition
// filter, stream copies the last clip and concatenates them in order into
// output. Intermediate files are removed whether or not it succeeds.
func (e *EffectEngine) ApplyTransition(ctx context.Context, clips []domain.Clip, spec domain.TransitionSpec, output string) (string, error) {
	if len(clips) < 2 {
		return "", domain.NewConfigurationError("transition needs at least 2 clips, got %d", len(clips))
	}
	if !domain.ValidateTransition(spec.Kind) {
		return "", domain.NewConfigurationError("unsupported transition %q", spec.Kind)
	}
	if spec.Duration <= 0 {
		spec.Duration = defaultTransitionDuration
	}
	spec.Kind = e.resolveKind(ctx, spec.Kind)

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	workDir, err := os.MkdirTemp(filepath.Dir(output), ".transition-*")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			e.logger.Warn("Failed to remove transition intermediates",
				zap.String("dir", workDir),
				zap.Error(err))
		}
	}()

	e.logger.Info("Applying transition",
		zap.String("kind", string(spec.Kind)),
		zap.Duration("duration", spec.Duration),
		zap.Int("clips", len(clips)))

	parts := make([]string, 0, len(clips))
	for i, clip := range clips[:len(clips)-1] {
		part := filepath.Join(workDir, fmt.Sprintf("part_%03d.mp4", i))
		if err := e.renderTransition(ctx, clip, spec, part); err != nil {
			return "", err
		}
		parts = append(parts, part)
	}

	last := filepath.Join(workDir, fmt.Sprintf("part_%03d.mp4", len(clips)-1))
	if err := e.ff.Run(ctx, StageCopy, e.timeout,
		"-i", clips[len(clips)-1].Path,
		"-c", "copy",
		last,
	); err != nil {
		return "", err
	}
	parts = append(parts, last)

	if err := e.Concat(ctx, parts, workDir, output); err != nil {
		return "", err
	}

	e.logger.Info("Transition applied",
		zap.String("kind", string(spec.Kind)),
		zap.String("output", output))
	return output, nil
}

// Concat joins inputs with the concat demuxer without re-encoding. Every
// input must share the first input's codec, size and pixel format. The list
// file is written to workDir. A failed concat removes output.
func (e *EffectEngine) Concat(ctx context.Context, inputs []string, workDir, output string) error {
	if err := e.checkConcatInputs(ctx, inputs); err != nil {
		return &domain.CompilationError{Stage: StageConcat, Err: err}
	}

	listFile, err := writeConcatList(workDir, inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(listFile)

	if err := e.ff.Run(ctx, StageConcat, e.timeout,
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	); err != nil {
		os.Remove(output)
		return err
	}
	return nil
}

// checkConcatInputs rejects inputs the demuxer would join into a corrupt
// stream when copying
func (e *EffectEngine) checkConcatInputs(ctx context.Context, inputs []string) error {
	var first *MediaInfo
	for _, input := range inputs {
		info, err := e.ff.Probe(ctx, input)
		if err != nil {
			return err
		}
		if first == nil {
			first = info
			continue
		}
		if info.VideoCodec != first.VideoCodec || info.Width != first.Width ||
			info.Height != first.Height || info.PixFmt != first.PixFmt {
			return fmt.Errorf("%s is %s %dx%d %s, expected %s %dx%d %s",
				filepath.Base(input),
				info.VideoCodec, info.Width, info.Height, info.PixFmt,
				first.VideoCodec, first.Width, first.Height, first.PixFmt)
		}
	}
	return nil
}

func (e *EffectEngine) resolveKind(ctx context.Context, kind domain.TransitionKind) domain.TransitionKind {
	for _, name := range requiredFilters[kind] {
		if !e.ff.HasFilter(ctx, name) {
			e.logger.Warn("Filter unavailable, falling back to fade-in",
				zap.String("kind", string(kind)),
				zap.String("filter", name))
			return domain.TransitionFadeIn
		}
	}
	return kind
}

func (e *EffectEngine) renderTransition(ctx context.Context, clip domain.Clip, spec domain.TransitionSpec, output string) error {
	length := clip.Duration
	var width, height int

	needsSize := spec.Kind == domain.TransitionZoomIn || spec.Kind == domain.TransitionZoomOut
	if length <= 0 || needsSize {
		info, err := e.ff.Probe(ctx, clip.Path)
		if err != nil {
			return &domain.CompilationError{Stage: StageTransition, Err: err}
		}
		if length <= 0 {
			length = info.Duration
		}
		width, height = info.Width, info.Height
	}

	filter := TransitionFilter(spec, length, width, height, e.fps)
	return e.ff.Run(ctx, StageTransition, e.timeout,
		"-i", clip.Path,
		"-vf", filter,
		"-c:v", DefaultVideoCodec,
		"-preset", e.preset,
		"-crf", strconv.Itoa(e.crf),
		"-pix_fmt", DefaultPixFmt,
		"-r", strconv.Itoa(e.fps),
		"-c:a", "copy",
		output,
	)
}

// TransitionFilter builds the video filter for one transition applied to a
// clip of the given length. Width and height are only used by the zoom
// kinds, which need an explicit output size.
func TransitionFilter(spec domain.TransitionSpec, length time.Duration, width, height, fps int) string {
	d := spec.Duration
	if length > 0 && d > length {
		d = length
	}
	ds := formatSeconds(d)

	switch spec.Kind {
	case domain.TransitionFadeOut:
		start := length - d
		if start < 0 {
			start = 0
		}
		return fmt.Sprintf("fade=t=out:st=%s:d=%s", formatSeconds(start), ds)

	case domain.TransitionSwipeUp:
		// Content sits on top of a black band and scrolls up into view
		return fmt.Sprintf("pad=iw:2*ih:0:0:black,crop=iw:ih/2:0:'if(lt(t,%s),(ih/2)*(1-t/%s),0)'", ds, ds)

	case domain.TransitionSwipeDown:
		return fmt.Sprintf("pad=iw:2*ih:0:ih:black,crop=iw:ih/2:0:'if(lt(t,%s),(ih/2)*(t/%s),ih/2)'", ds, ds)

	case domain.TransitionZoomIn, domain.TransitionZoomOut:
		if fps <= 0 {
			fps = DefaultFPS
		}
		frames := d.Seconds() * float64(fps)
		if frames < 1 {
			frames = 1
		}
		step := strconv.FormatFloat(maxZoom/frames, 'f', 6, 64)
		top := strconv.FormatFloat(1+maxZoom, 'f', 2, 64)

		var zoom string
		if spec.Kind == domain.TransitionZoomIn {
			zoom = fmt.Sprintf("min(zoom+%s,%s)", step, top)
		} else {
			zoom = fmt.Sprintf("if(eq(on,0),%s,max(zoom-%s,1))", top, step)
		}
		size := ""
		if width > 0 && height > 0 {
			size = fmt.Sprintf(":s=%dx%d", width, height)
		}
		return fmt.Sprintf("zoompan=z='%s':d=1:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)'%s:fps=%d", zoom, size, fps)

	default:
		return fmt.Sprintf("fade=t=in:st=0:d=%s", ds)
	}
}

func writeConcatList(dir string, inputs []string) (string, error) {
	file, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", err
	}
	defer file.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		escaped := strings.ReplaceAll(absPath, "'", `'\''`)
		if _, err := fmt.Fprintf(file, "file '%s'\n", escaped); err != nil {
			return "", err
		}
	}
	return file.Name(), nil
}
