package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/shortforge-go/internal/domain"
)

func makeClips(t *testing.T, dir string, n int) []domain.Clip {
	t.Helper()
	clips := make([]domain.Clip, n)
	for i := range clips {
		path := filepath.Join(dir, fmt.Sprintf("segment_%d.mp4", i))
		require.NoError(t, os.WriteFile(path, []byte("segment"), 0644))
		clips[i] = domain.Clip{Path: path, Duration: 10 * time.Second}
	}
	return clips
}

// dirEntries lists names in dir, ignoring the given inputs
func dirEntries(t *testing.T, dir string, ignore ...string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		skip := false
		for _, ig := range ignore {
			if e.Name() == ig {
				skip = true
			}
		}
		if !skip {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestApplyTransition_RequiresTwoClips(t *testing.T) {
	engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), &fakeRunner{filters: filterTable}, nil), testCompileConfig(), nil)
	dir := t.TempDir()

	_, err := engine.ApplyTransition(context.Background(), makeClips(t, dir, 1), domain.TransitionSpec{Kind: domain.TransitionFadeIn}, filepath.Join(dir, "out.mp4"))

	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestApplyTransition_RejectsUnknownKind(t *testing.T) {
	engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), &fakeRunner{filters: filterTable}, nil), testCompileConfig(), nil)
	dir := t.TempDir()

	_, err := engine.ApplyTransition(context.Background(), makeClips(t, dir, 2), domain.TransitionSpec{Kind: "spin"}, filepath.Join(dir, "out.mp4"))

	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestApplyTransition_Success(t *testing.T) {
	runner := &fakeRunner{filters: filterTable}
	engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), runner, nil), testCompileConfig(), nil)
	inputDir := t.TempDir()
	outDir := t.TempDir()
	clips := makeClips(t, inputDir, 3)
	output := filepath.Join(outDir, "transitioned.mp4")

	path, err := engine.ApplyTransition(context.Background(), clips, domain.TransitionSpec{
		Kind:     domain.TransitionFadeOut,
		Duration: time.Second,
	}, output)
	require.NoError(t, err)
	assert.Equal(t, output, path)
	assert.FileExists(t, output)

	// Only the output remains next to it
	assert.Equal(t, []string{"transitioned.mp4"}, dirEntries(t, outDir))

	calls := runner.ffmpegCalls()
	require.Len(t, calls, 4)

	// Clips 0 and 1 are re-encoded with the fade-out filter
	for i := 0; i < 2; i++ {
		assert.Equal(t, clips[i].Path, argAfter(calls[i], "-i"))
		assert.Equal(t, "fade=t=out:st=9.000:d=1.000", argAfter(calls[i], "-vf"))
		assert.Equal(t, "libx264", argAfter(calls[i], "-c:v"))
	}
	// The last clip is stream copied
	assert.Equal(t, clips[2].Path, argAfter(calls[2], "-i"))
	assert.Equal(t, "copy", argAfter(calls[2], "-c"))
	assert.Empty(t, argAfter(calls[2], "-vf"))

	// Concat uses the demuxer without re-encoding
	concat := calls[3]
	assert.Equal(t, "concat", argAfter(concat, "-f"))
	assert.Equal(t, "0", argAfter(concat, "-safe"))
	assert.Equal(t, "copy", argAfter(concat, "-c"))
	assert.Equal(t, output, concat[len(concat)-1])
}

func TestApplyTransition_ConcatFailureCleansUp(t *testing.T) {
	runner := &fakeRunner{
		filters: filterTable,
		failWhen: func(args []string) bool {
			return argAfter(args, "-f") == "concat"
		},
	}
	engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), runner, nil), testCompileConfig(), nil)
	inputDir := t.TempDir()
	outDir := t.TempDir()
	output := filepath.Join(outDir, "transitioned.mp4")

	_, err := engine.ApplyTransition(context.Background(), makeClips(t, inputDir, 3), domain.TransitionSpec{
		Kind:     domain.TransitionSwipeUp,
		Duration: time.Second,
	}, output)

	var compErr *domain.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, StageConcat, compErr.Stage)
	assert.Contains(t, compErr.Command, "concat")

	// No intermediates, no list file and no truncated output survive
	assert.Empty(t, dirEntries(t, outDir))
}

func TestApplyTransition_ConcatRejectsMismatchedParts(t *testing.T) {
	runner := &fakeRunner{
		filters: filterTable,
		probe: map[string]string{
			"part_002.mp4": `{"format":{"duration":"10.0"},"streams":[{"codec_type":"video","codec_name":"hevc","width":1080,"height":1920,"pix_fmt":"yuv420p10le"}]}`,
		},
	}
	engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), runner, nil), testCompileConfig(), nil)
	outDir := t.TempDir()
	output := filepath.Join(outDir, "transitioned.mp4")

	_, err := engine.ApplyTransition(context.Background(), makeClips(t, t.TempDir(), 3), domain.TransitionSpec{
		Kind:     domain.TransitionFadeIn,
		Duration: time.Second,
	}, output)

	var compErr *domain.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, StageConcat, compErr.Stage)
	assert.Contains(t, err.Error(), "part_002.mp4 is hevc")

	// the demuxer never ran
	for _, call := range runner.ffmpegCalls() {
		assert.NotEqual(t, "concat", argAfter(call, "-f"))
	}
	assert.Empty(t, dirEntries(t, outDir))
}

func TestEffectEngine_ConcatChecksEveryInput(t *testing.T) {
	dir := t.TempDir()
	inputs := make([]string, 3)
	for i := range inputs {
		inputs[i] = filepath.Join(dir, fmt.Sprintf("segment_%d.mp4", i))
		require.NoError(t, os.WriteFile(inputs[i], []byte("segment"), 0644))
	}

	tests := []struct {
		name   string
		stream string
		ok     bool
	}{
		{name: "matching", stream: `"codec_name":"h264","width":1080,"height":1920,"pix_fmt":"yuv420p"`, ok: true},
		{name: "different size", stream: `"codec_name":"h264","width":1920,"height":1080,"pix_fmt":"yuv420p"`},
		{name: "different pixel format", stream: `"codec_name":"h264","width":1080,"height":1920,"pix_fmt":"yuv444p"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{probe: map[string]string{
				"segment_1.mp4": `{"format":{"duration":"10.0"},"streams":[{"codec_type":"video",` + tt.stream + `}]}`,
			}}
			engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), runner, nil), testCompileConfig(), nil)
			output := filepath.Join(t.TempDir(), "joined.mp4")

			err := engine.Concat(context.Background(), inputs, dir, output)
			if tt.ok {
				require.NoError(t, err)
				assert.FileExists(t, output)
				return
			}
			var compErr *domain.CompilationError
			require.ErrorAs(t, err, &compErr)
			assert.Equal(t, StageConcat, compErr.Stage)
			assert.NoFileExists(t, output)
			assert.Empty(t, runner.ffmpegCalls())
		})
	}
}

func TestApplyTransition_RenderFailureCleansUp(t *testing.T) {
	runner := &fakeRunner{
		filters: filterTable,
		failWhen: func(args []string) bool {
			return strings.HasSuffix(args[len(args)-1], "part_001.mp4")
		},
	}
	engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), runner, nil), testCompileConfig(), nil)
	outDir := t.TempDir()

	_, err := engine.ApplyTransition(context.Background(), makeClips(t, t.TempDir(), 3), domain.TransitionSpec{
		Kind: domain.TransitionFadeIn,
	}, filepath.Join(outDir, "out.mp4"))

	var compErr *domain.CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, StageTransition, compErr.Stage)
	assert.Empty(t, dirEntries(t, outDir))
}

func TestApplyTransition_FallsBackWhenFilterMissing(t *testing.T) {
	runner := &fakeRunner{filters: " T.. fade              V->V       Fade in/out input video.\n"}
	engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), runner, nil), testCompileConfig(), nil)
	dir := t.TempDir()

	_, err := engine.ApplyTransition(context.Background(), makeClips(t, dir, 2), domain.TransitionSpec{
		Kind:     domain.TransitionZoomIn,
		Duration: 2 * time.Second,
	}, filepath.Join(dir, "out", "final.mp4"))
	require.NoError(t, err)

	calls := runner.ffmpegCalls()
	assert.Equal(t, "fade=t=in:st=0:d=2.000", argAfter(calls[0], "-vf"))
}

func TestApplyTransition_ProbesUnknownDuration(t *testing.T) {
	dir := t.TempDir()
	clips := makeClips(t, dir, 2)
	clips[0].Duration = 0

	runner := &fakeRunner{
		filters: filterTable,
		probe: map[string]string{
			clips[0].Path: `{"format":{"duration":"6.0"},"streams":[{"codec_type":"video","width":1080,"height":1920}]}`,
		},
	}
	engine := NewEffectEngine(NewFFmpeg(testCompileConfig(), runner, nil), testCompileConfig(), nil)

	_, err := engine.ApplyTransition(context.Background(), clips, domain.TransitionSpec{
		Kind:     domain.TransitionFadeOut,
		Duration: time.Second,
	}, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)

	calls := runner.ffmpegCalls()
	assert.Equal(t, "fade=t=out:st=5.000:d=1.000", argAfter(calls[0], "-vf"))
}

func TestTransitionFilter(t *testing.T) {
	spec := func(kind domain.TransitionKind) domain.TransitionSpec {
		return domain.TransitionSpec{Kind: kind, Duration: time.Second}
	}

	tests := []struct {
		name     string
		spec     domain.TransitionSpec
		length   time.Duration
		expected string
	}{
		{"fade-in", spec(domain.TransitionFadeIn), 10 * time.Second, "fade=t=in:st=0:d=1.000"},
		{"fade-out", spec(domain.TransitionFadeOut), 10 * time.Second, "fade=t=out:st=9.000:d=1.000"},
		{"fade-out clamps to clip", spec(domain.TransitionFadeOut), 500 * time.Millisecond, "fade=t=out:st=0.000:d=0.500"},
		{"swipe-up", spec(domain.TransitionSwipeUp), 10 * time.Second,
			"pad=iw:2*ih:0:0:black,crop=iw:ih/2:0:'if(lt(t,1.000),(ih/2)*(1-t/1.000),0)'"},
		{"swipe-down", spec(domain.TransitionSwipeDown), 10 * time.Second,
			"pad=iw:2*ih:0:ih:black,crop=iw:ih/2:0:'if(lt(t,1.000),(ih/2)*(t/1.000),ih/2)'"},
		{"zoom-in", spec(domain.TransitionZoomIn), 10 * time.Second,
			"zoompan=z='min(zoom+0.006667,1.20)':d=1:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=1080x1920:fps=30"},
		{"zoom-out", spec(domain.TransitionZoomOut), 10 * time.Second,
			"zoompan=z='if(eq(on,0),1.20,max(zoom-0.006667,1))':d=1:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=1080x1920:fps=30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TransitionFilter(tt.spec, tt.length, 1080, 1920, 30))
		})
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	list, err := writeConcatList(dir, []string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	require.NoError(t, err)

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, "file '/tmp/a.mp4'\nfile '/tmp/it'\\''s.mp4'\n", string(data))
}

func TestApplyTransition_RealFFmpeg(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	ff := NewFFmpeg(testCompileConfig(), nil, nil)
	cfg := testCompileConfig()
	cfg.Preset = "ultrafast"
	engine := NewEffectEngine(ff, cfg, nil)

	var clips []domain.Clip
	for i := 0; i < 2; i++ {
		path := filepath.Join(dir, fmt.Sprintf("src_%d.mp4", i))
		require.NoError(t, ff.Run(context.Background(), "fixture", 30*time.Second,
			"-f", "lavfi", "-i", "testsrc=size=320x240:rate=30",
			"-t", "2", "-c:v", "libx264", "-preset", "ultrafast", "-crf", "23",
			"-pix_fmt", "yuv420p", "-r", "30", path))
		clips = append(clips, domain.Clip{Path: path})
	}

	outDir := t.TempDir()
	output := filepath.Join(outDir, "joined.mp4")
	_, err := engine.ApplyTransition(context.Background(), clips, domain.TransitionSpec{
		Kind:     domain.TransitionFadeIn,
		Duration: 500 * time.Millisecond,
	}, output)
	require.NoError(t, err)

	assert.Equal(t, []string{"joined.mp4"}, dirEntries(t, outDir))
	d, err := ff.ProbeDuration(context.Background(), output)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, d.Seconds(), 0.5)
}
