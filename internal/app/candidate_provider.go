package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/internal/infrastructure"
	"github.com/yourusername/shortforge-go/pkg/cache"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// VideoSearcher queries a remote stock footage API
type VideoSearcher interface {
	SearchVideos(ctx context.Context, req infrastructure.SearchRequest) ([]domain.Candidate, error)
}

// FileFetcher streams a remote resource into a local file
type FileFetcher interface {
	FetchToFile(ctx context.Context, url, dest string, opts infrastructure.FetchOptions) (string, error)
}

// SearchOptions narrows a candidate search
type SearchOptions struct {
	Orientation domain.Orientation
	MaxResults  int
}

// CandidateProvider finds, ranks and downloads stock clips
type CandidateProvider struct {
	searcher VideoSearcher
	fetcher  FileFetcher
	cache    *cache.Cache
	search   *domain.SearchConfig
	download *domain.DownloadConfig
	destDir  string
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewCandidateProvider creates a provider that downloads into destDir
func NewCandidateProvider(
	searcher VideoSearcher,
	fetcher FileFetcher,
	resultCache *cache.Cache,
	searchConfig *domain.SearchConfig,
	downloadConfig *domain.DownloadConfig,
	destDir string,
	log *zap.Logger,
) *CandidateProvider {
	return &CandidateProvider{
		searcher: searcher,
		fetcher:  fetcher,
		cache:    resultCache,
		search:   searchConfig,
		download: downloadConfig,
		destDir:  destDir,
		logger:   logger.OrNop(log),
		sleep:    sleepContext,
	}
}

// Search returns ranked candidates for query. Results are memoized per
// query, orientation and result count.
func (p *CandidateProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]domain.Candidate, error) {
	query = NormalizeQuery(query)
	if query == "" {
		return nil, domain.NewConfigurationError("empty search query")
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = p.search.MaxResults
	}

	if p.cache == nil {
		return p.searchUncached(ctx, query, opts)
	}

	key := cache.Key("search", query, string(opts.Orientation), opts.MaxResults)
	return cache.GetOrCompute(ctx, p.cache, key, p.search.CacheTTL, func(ctx context.Context) ([]domain.Candidate, error) {
		return p.searchUncached(ctx, query, opts)
	})
}

func (p *CandidateProvider) searchUncached(ctx context.Context, query string, opts SearchOptions) ([]domain.Candidate, error) {
	variants := QueryVariants(query)
	results := make([][]domain.Candidate, len(variants))
	errs := make([]error, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			found, err := p.searcher.SearchVideos(gctx, infrastructure.SearchRequest{
				Query:       variant,
				Orientation: opts.Orientation,
				PerPage:     opts.MaxResults,
				Page:        1,
			})
			if err != nil {
				// A failed variant only narrows the result set
				p.logger.Warn("Search variant failed",
					zap.String("query", variant),
					zap.Error(err))
				errs[i] = err
				return nil
			}
			results[i] = found
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lastErr := allFailed(errs); lastErr != nil {
		var searchErr *domain.SearchError
		if errors.As(lastErr, &searchErr) {
			return nil, searchErr
		}
		return nil, &domain.SearchError{Query: query, Err: lastErr}
	}

	merged := FilterByDuration(MergeCandidates(results...), p.search.MinDuration, p.search.MaxDuration)

	if len(merged) < p.search.MinCandidates {
		p.logger.Info("Too few candidates, running supplemental search",
			zap.String("query", query),
			zap.Int("found", len(merged)),
			zap.Int("floor", p.search.MinCandidates))

		extra, err := p.searcher.SearchVideos(ctx, infrastructure.SearchRequest{
			Query:       query,
			Orientation: opts.Orientation,
			PerPage:     opts.MaxResults,
			Page:        2,
		})
		if err != nil {
			p.logger.Warn("Supplemental search failed", zap.String("query", query), zap.Error(err))
		} else {
			extra = FilterByDuration(extra, p.search.MinDuration, p.search.MaxDuration)
			merged = TopUp(merged, extra, opts.MaxResults)
		}
	}

	ranked := RankCandidates(merged, p.search.DurationWeight)
	if len(ranked) > opts.MaxResults {
		ranked = ranked[:opts.MaxResults]
	}

	p.logger.Debug("Search completed",
		zap.String("query", query),
		zap.Int("variants", len(variants)),
		zap.Int("candidates", len(ranked)))
	return ranked, nil
}

// allFailed returns the last error when every entry is non-nil
func allFailed(errs []error) error {
	var last error
	for _, err := range errs {
		if err == nil {
			return nil
		}
		last = err
	}
	return last
}

// Acquire downloads candidates into the provider's directory
func (p *CandidateProvider) Acquire(ctx context.Context, candidates []domain.Candidate) ([]domain.LocalAsset, error) {
	return p.AcquireTo(ctx, candidates, p.destDir)
}

// AcquireTo downloads candidates into destDir in sequential batches.
// Downloads inside a batch run concurrently. Failed candidates are logged and
// skipped; the successful assets are returned in candidate order.
func (p *CandidateProvider) AcquireTo(ctx context.Context, candidates []domain.Candidate, destDir string) ([]domain.LocalAsset, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	batchSize := p.download.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	assets := make([]*domain.LocalAsset, len(candidates))
	var failedMu sync.Mutex
	failed := 0

	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				asset, err := p.downloadVideoWithRetry(ctx, candidates[i], i, destDir)
				if err != nil {
					p.logger.Warn("Candidate download failed",
						zap.Int64("candidate_id", candidates[i].ID),
						zap.Error(err))
					failedMu.Lock()
					failed++
					failedMu.Unlock()
					return nil
				}
				assets[i] = &asset
				return nil
			})
		}
		g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]domain.LocalAsset, 0, len(candidates))
	for _, a := range assets {
		if a != nil {
			out = append(out, *a)
		}
	}

	p.logger.Info("Acquisition finished",
		zap.Int("requested", len(candidates)),
		zap.Int("acquired", len(out)),
		zap.Int("failed", failed))
	return out, nil
}

// downloadVideoWithRetry retries the whole download, including the non-empty
// check, with exponential backoff between attempts.
func (p *CandidateProvider) downloadVideoWithRetry(ctx context.Context, candidate domain.Candidate, index int, destDir string) (domain.LocalAsset, error) {
	file, ok := candidate.BestFile()
	if !ok {
		return domain.LocalAsset{}, fmt.Errorf("candidate %d has no progressive download link", candidate.ID)
	}

	dest := filepath.Join(destDir, fmt.Sprintf("clip_%02d_%d.mp4", index, candidate.ID))
	attempts := p.download.AttemptRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := ExponentialBackoff(attempt, p.download.AttemptBackoff)
			p.logger.Info("Retrying clip download",
				zap.Int64("candidate_id", candidate.ID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if err := p.sleep(ctx, delay); err != nil {
				return domain.LocalAsset{}, err
			}
		}

		asset, err := p.downloadOnce(ctx, file.Link, dest)
		if err == nil {
			return asset, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return domain.LocalAsset{}, ctx.Err()
		}
	}

	return domain.LocalAsset{}, fmt.Errorf("failed to download candidate %d after %d attempt(s): %w", candidate.ID, attempts, lastErr)
}

func (p *CandidateProvider) downloadOnce(ctx context.Context, url, dest string) (domain.LocalAsset, error) {
	name := filepath.Base(dest)
	lastQuarter := 0
	path, err := p.fetcher.FetchToFile(ctx, url, dest, infrastructure.FetchOptions{
		Timeout:    p.download.Timeout,
		MaxRetries: p.download.MaxRetries,
		BaseDelay:  p.download.RetryDelay,
		OnProgress: func(progress domain.DownloadProgress) {
			quarter := int(progress.Percent / 25)
			if quarter <= lastQuarter {
				return
			}
			lastQuarter = quarter
			p.logger.Debug("Download progress",
				zap.String("file", name),
				zap.Float64("percent", progress.Percent),
				zap.Float64("bytes_per_second", progress.BytesPerSecond))
		},
		OnRetry: func(attempt int, err error) {
			lastQuarter = 0
			p.logger.Warn("Transport retry",
				zap.String("file", name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		},
	})
	if err != nil {
		return domain.LocalAsset{}, err
	}
	if !infrastructure.IsNonEmptyFile(path) {
		os.Remove(path)
		return domain.LocalAsset{}, fmt.Errorf("%s: %w", name, infrastructure.ErrEmptyDownload)
	}

	asset, err := domain.NewLocalAsset(path, domain.AssetVideo)
	if err != nil {
		os.Remove(path)
		return domain.LocalAsset{}, err
	}
	return asset, nil
}

// ExponentialBackoff returns base * 2^(attempt-2) for attempt >= 2, the wait
// before that attempt.
func ExponentialBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 2 {
		return 0
	}
	return base << uint(attempt-2)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
