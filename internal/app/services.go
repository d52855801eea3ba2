package app

import (
	"fmt"
	"path/filepath"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/internal/infrastructure"
	"github.com/yourusername/shortforge-go/pkg/cache"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// Services holds the stateless collaborators shared by every run. Anything
// holding run state, such as the result cache, is built per pipeline.
type Services struct {
	config    *domain.Config
	FFmpeg    *infrastructure.FFmpeg
	Compiler  *Compiler
	Writer    domain.ScriptWriter
	Narrator  domain.Narrator
	searcher  VideoSearcher
	fetcher   FileFetcher
	publisher *infrastructure.OBSPublisher
	logger    *zap.Logger
}

// NewServices builds the search, download, compile and publish stack
// described by config. External binaries are not checked here; see
// FFmpeg.CheckBinaries.
func NewServices(config *domain.Config, log *zap.Logger) (*Services, error) {
	log = logger.OrNop(log)

	writer, err := infrastructure.NewScriptWriter(&config.Script, log)
	if err != nil {
		return nil, domain.NewConfigurationError("%v", err)
	}

	ff := infrastructure.NewFFmpeg(&config.Compile, nil, log)
	effects := infrastructure.NewEffectEngine(ff, &config.Compile, log)

	s := &Services{
		config:   config,
		FFmpeg:   ff,
		Compiler: NewCompiler(ff, effects, &config.Compile, log),
		Writer:   writer,
		Narrator: infrastructure.NewCommandNarrator(&config.Narration, nil, log),
		searcher: infrastructure.NewPexelsClient(&config.Search, log),
		fetcher:  infrastructure.NewHTTPFetcher(nil, log),
		logger:   log,
	}

	if config.Publish.Enabled {
		publisher, err := infrastructure.NewOBSPublisher(&config.Publish, log)
		if err != nil {
			return nil, domain.NewConfigurationError("%v", err)
		}
		s.publisher = publisher
	}

	return s, nil
}

// NewProvider creates a candidate provider with its own result cache
func (s *Services) NewProvider() (*CandidateProvider, error) {
	resultCache, err := cache.New(s.config.Cache.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return NewCandidateProvider(
		s.searcher,
		s.fetcher,
		resultCache,
		&s.config.Search,
		&s.config.Download,
		filepath.Join(s.config.Download.TempDir, "clips"),
		s.logger,
	), nil
}

// NewPipeline builds a pipeline rendering at aspect. An empty aspect uses
// compile.aspect_ratio.
func (s *Services) NewPipeline(aspect domain.AspectRatio) (*Pipeline, error) {
	if aspect == "" {
		aspect = domain.AspectRatio(s.config.Compile.AspectRatio)
	}
	resolution, ok := aspect.Resolution()
	if !ok {
		return nil, &domain.ValidationError{Field: "aspect_ratio", Reason: fmt.Sprintf("unsupported value %q", aspect)}
	}

	provider, err := s.NewProvider()
	if err != nil {
		return nil, err
	}

	deps := PipelineDeps{
		Writer:      s.Writer,
		Clips:       provider,
		Narrator:    s.Narrator,
		Illustrator: infrastructure.NewTitleCardIllustrator(s.FFmpeg, resolution, s.logger),
		Compiler:    s.Compiler,
	}
	if s.publisher != nil {
		deps.Publisher = s.publisher
	}

	return NewPipeline(deps, PipelineConfig{
		APIKey:         s.config.Search.APIKey,
		Model:          s.config.Script.Model,
		AspectRatio:    aspect,
		TempDir:        s.config.Download.TempDir,
		MaxClips:       s.config.Search.MaxClips,
		Bitrate:        s.config.Compile.Bitrate,
		DurationWeight: s.config.Search.DurationWeight,
	}, s.logger)
}

// PipelineFactory adapts NewPipeline for the run manager
func (s *Services) PipelineFactory() PipelineFactory {
	return func(aspect domain.AspectRatio) (RunPipeline, error) {
		return s.NewPipeline(aspect)
	}
}

// Close releases the object storage client
func (s *Services) Close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}
