package infrastructure

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/shortforge-go/internal/domain"
)

const filterTable = `Filters:
  T.. = Timeline support
  .S. = Slice threading
 ... crop              V->V       Crop the input video.
 T.. fade              V->V       Fade in/out input video.
 ... pad               V->V       Pad the input video.
 ... zoompan           V->V       Apply Zoom & Pan effect.
`

const uniformProbe = `{"format":{"duration":"10.0"},"streams":[{"codec_type":"video","codec_name":"h264","width":1080,"height":1920,"pix_fmt":"yuv420p"}]}`

// fakeRunner records invocations and writes a placeholder for the output
// file of every ffmpeg call.
type fakeRunner struct {
	mu       sync.Mutex
	calls    [][]string
	filters  string
	probe    map[string]string // ffprobe stdout by file path or base name
	failWhen func(args []string) bool
	block    bool
}

func (f *fakeRunner) Run(ctx context.Context, binary string, args ...string) (CommandOutput, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{binary}, args...))
	f.mu.Unlock()

	if contains(args, "-filters") {
		return CommandOutput{Stdout: []byte(f.filters)}, nil
	}
	if strings.Contains(binary, "ffprobe") {
		path := args[len(args)-1]
		if out, ok := f.probe[path]; ok {
			return CommandOutput{Stdout: []byte(out)}, nil
		}
		if out, ok := f.probe[filepath.Base(path)]; ok {
			return CommandOutput{Stdout: []byte(out)}, nil
		}
		if _, err := os.Stat(path); err != nil {
			return CommandOutput{Stderr: []byte("no such file")}, errors.New("exit status 1")
		}
		// files written by earlier calls share the encoder's parameters
		if contains(args, "format=duration") {
			return CommandOutput{Stdout: []byte("10.000000\n")}, nil
		}
		return CommandOutput{Stdout: []byte(uniformProbe)}, nil
	}

	if f.block {
		<-ctx.Done()
		return CommandOutput{}, errors.New("signal: killed")
	}

	output := argAfter(args, "-w")
	if output == "" {
		output = args[len(args)-1]
	}
	if f.failWhen != nil && f.failWhen(args) {
		// ffmpeg leaves a truncated output behind on failure
		os.WriteFile(output, []byte("partial"), 0644)
		return CommandOutput{Stderr: []byte("Non-monotonous DTS; codec parameters mismatch")}, errors.New("exit status 1")
	}
	if err := os.WriteFile(output, []byte("encoded:"+strings.Join(args, " ")), 0644); err != nil {
		return CommandOutput{}, err
	}
	return CommandOutput{}, nil
}

func (f *fakeRunner) ffmpegCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if !strings.Contains(c[0], "ffprobe") && !contains(c, "-filters") {
			out = append(out, c)
		}
	}
	return out
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func testCompileConfig() *domain.CompileConfig {
	cfg := domain.DefaultConfig().Compile
	cfg.StageTimeout = 5 * time.Second
	return &cfg
}

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}
}

func TestFFmpeg_RunWrapsFailureWithStage(t *testing.T) {
	runner := &fakeRunner{failWhen: func([]string) bool { return true }}
	ff := NewFFmpeg(testCompileConfig(), runner, nil)

	out := filepath.Join(t.TempDir(), "out.mp4")
	err := ff.Run(context.Background(), "mux", time.Second, "-i", "in.mp4", out)

	var compErr *domain.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "mux", compErr.Stage)
	assert.Contains(t, compErr.Command, "ffmpeg -y -hide_banner")
	assert.Contains(t, compErr.Output, "codec parameters mismatch")
	assert.False(t, domain.IsRetryable(err))
}

func TestFFmpeg_RunTimeoutIsCompilationError(t *testing.T) {
	runner := &fakeRunner{block: true}
	ff := NewFFmpeg(testCompileConfig(), runner, nil)

	err := ff.Run(context.Background(), "render_segments", 20*time.Millisecond, "-i", "in.mp4", "out.mp4")

	var compErr *domain.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "render_segments", compErr.Stage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFFmpeg_RunDefaultsToStageTimeout(t *testing.T) {
	runner := &fakeRunner{block: true}
	config := testCompileConfig()
	config.StageTimeout = 30 * time.Millisecond
	ff := NewFFmpeg(config, runner, nil)

	start := time.Now()
	err := ff.Run(context.Background(), "illustrate", 0, "-f", "lavfi", "-i", "color=c=black", "out.png")

	var compErr *domain.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, "illustrate", compErr.Stage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFFmpeg_ProbeDuration(t *testing.T) {
	runner := &fakeRunner{probe: map[string]string{"narration.wav": "30.000000\n"}}
	ff := NewFFmpeg(testCompileConfig(), runner, nil)

	d, err := ff.ProbeDuration(context.Background(), "narration.wav")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	_, err = ff.ProbeDuration(context.Background(), "missing.wav")
	assert.Error(t, err)
}

func TestFFmpeg_Probe(t *testing.T) {
	runner := &fakeRunner{probe: map[string]string{
		"clip.mp4": `{"format":{"duration":"12.5"},"streams":[{"codec_type":"video","codec_name":"h264","width":1080,"height":1920,"pix_fmt":"yuv420p"},{"codec_type":"audio","codec_name":"aac"}]}`,
	}}
	ff := NewFFmpeg(testCompileConfig(), runner, nil)

	info, err := ff.Probe(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, info.Duration)
	assert.Equal(t, 1080, info.Width)
	assert.Equal(t, 1920, info.Height)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.Equal(t, "yuv420p", info.PixFmt)
	assert.True(t, info.HasAudio)
}

func TestParseFilterList(t *testing.T) {
	filters := parseFilterList(filterTable)

	assert.True(t, filters["fade"])
	assert.True(t, filters["zoompan"])
	assert.True(t, filters["crop"])
	assert.False(t, filters["xfade"])
	assert.False(t, filters["="])
}

func TestFFmpeg_HasFilterAssumesPresentWhenListFails(t *testing.T) {
	runner := &erroringRunner{}
	ff := NewFFmpeg(testCompileConfig(), runner, nil)

	assert.True(t, ff.HasFilter(context.Background(), "zoompan"))
}

type erroringRunner struct{}

func (erroringRunner) Run(context.Context, string, ...string) (CommandOutput, error) {
	return CommandOutput{}, errors.New("exec: not found")
}

func TestFFmpeg_RealBinaryProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	clip := filepath.Join(dir, "src.mp4")
	ff := NewFFmpeg(testCompileConfig(), nil, nil)

	require.NoError(t, ff.Run(context.Background(), "fixture", 30*time.Second,
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=30",
		"-t", "2", "-c:v", "libx264", "-pix_fmt", "yuv420p", clip))

	d, err := ff.ProbeDuration(context.Background(), clip)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, d.Seconds(), 0.2)
	assert.True(t, ff.HasFilter(context.Background(), "fade"))
}
