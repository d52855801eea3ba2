package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

// InterruptedReason is recorded on runs left unfinished by a restart
const InterruptedReason = "interrupted: service restarted before the run finished"

// ErrManagerClosed is returned by Submit after Shutdown
var ErrManagerClosed = errors.New("run manager is shut down")

// RunPipeline executes one run
type RunPipeline interface {
	Run(ctx context.Context, topic string) (*domain.Result, error)
}

// PipelineFactory builds a fresh pipeline for every run
type PipelineFactory func(aspect domain.AspectRatio) (RunPipeline, error)

// RunNotifier is told about run lifecycle events
type RunNotifier interface {
	NotifyRunStarted(topic string)
	NotifyRunCompleted(topic, status string)
	NotifyRunFailed(topic string, err error)
}

// RunManager executes pipeline runs and records their history
type RunManager struct {
	repo      domain.RunRepository
	factory   PipelineFactory
	notifier  RunNotifier
	logger    *zap.Logger
	semaphore chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRunManager creates a new run manager. At most maxConcurrent runs
// execute at once; a nil notifier disables notifications.
func NewRunManager(
	repo domain.RunRepository,
	factory PipelineFactory,
	notifier RunNotifier,
	maxConcurrent int,
	log *zap.Logger,
) *RunManager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		repo:      repo,
		factory:   factory,
		notifier:  notifier,
		logger:    logger.OrNop(log),
		semaphore: make(chan struct{}, maxConcurrent),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Recover fails every run a previous process left queued or processing.
// Runs are never resumed.
func (m *RunManager) Recover() (int64, error) {
	n, err := m.repo.MarkInterrupted(InterruptedReason)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	if n > 0 {
		m.logger.Warn("Marked interrupted runs as failed", zap.Int64("count", n))
	}
	return n, nil
}

// NewRecord validates the request and persists a queued run
func (m *RunManager) NewRecord(topic string, aspect domain.AspectRatio) (*domain.RunRecord, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, &domain.ValidationError{Field: "topic", Reason: "is required"}
	}
	if aspect == "" {
		aspect = domain.AspectPortrait
	}
	if _, ok := aspect.Resolution(); !ok {
		return nil, &domain.ValidationError{Field: "aspect_ratio", Reason: fmt.Sprintf("unsupported value %q", aspect)}
	}

	record := domain.NewRunRecord(topic, aspect)
	if err := m.repo.Create(record); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	m.logger.Info("Run queued",
		zap.String("id", record.ID),
		zap.String("topic", topic),
		zap.String("aspect_ratio", string(aspect)))
	return record, nil
}

// Submit queues a run and executes it in the background
func (m *RunManager) Submit(topic string, aspect domain.AspectRatio) (*domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	record, err := m.NewRecord(topic, aspect)
	if err != nil {
		return nil, err
	}

	// the goroutine owns its own copy of the record
	bg := *record
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Execute(m.ctx, &bg)
	}()
	return record, nil
}

// Execute runs the pipeline for record and stores the outcome
func (m *RunManager) Execute(ctx context.Context, record *domain.RunRecord) (*domain.Result, error) {
	select {
	case m.semaphore <- struct{}{}:
		defer func() { <-m.semaphore }()
	case <-ctx.Done():
		m.fail(record, ctx.Err())
		return nil, ctx.Err()
	}

	m.logger.Info("Processing run",
		zap.String("id", record.ID),
		zap.String("topic", record.Topic))

	record.MarkProcessing()
	if err := m.repo.Update(record); err != nil {
		err = fmt.Errorf("failed to update run status: %w", err)
		m.fail(record, err)
		return nil, err
	}
	if m.notifier != nil {
		m.notifier.NotifyRunStarted(record.Topic)
	}

	pipeline, err := m.factory(domain.AspectRatio(record.AspectRatio))
	if err != nil {
		m.fail(record, err)
		return nil, err
	}

	result, err := pipeline.Run(ctx, record.Topic)
	if err != nil {
		m.fail(record, err)
		return nil, err
	}

	record.MarkCompleted(result)
	if err := m.repo.Update(record); err != nil {
		m.logger.Error("Failed to update run status", zap.Error(err))
	}

	// downloaded clips and narration are not kept past the run; the output is
	if err := CleanupAssets(result.Assets); err != nil {
		m.logger.Warn("Failed to remove run assets",
			zap.String("id", record.ID),
			zap.Error(err))
	}

	m.logger.Info("Run completed",
		zap.String("id", record.ID),
		zap.String("output", result.OutputPath),
		zap.String("status", result.Status))
	if m.notifier != nil {
		m.notifier.NotifyRunCompleted(record.Topic, result.Status)
	}
	return result, nil
}

func (m *RunManager) fail(record *domain.RunRecord, err error) {
	record.MarkFailed(err)
	if updateErr := m.repo.Update(record); updateErr != nil {
		m.logger.Error("Failed to update run status", zap.Error(updateErr))
	}

	m.logger.Error("Run failed",
		zap.String("id", record.ID),
		zap.String("topic", record.Topic),
		zap.Error(err))
	if m.notifier != nil {
		m.notifier.NotifyRunFailed(record.Topic, err)
	}
}

// Get returns a run by ID
func (m *RunManager) Get(id string) (*domain.RunRecord, error) {
	return m.repo.FindByID(id)
}

// List returns runs matching filters, newest first
func (m *RunManager) List(filters map[string]interface{}) ([]*domain.RunRecord, error) {
	return m.repo.FindAll(filters)
}

// Stats returns run statistics
func (m *RunManager) Stats() (*domain.RunStats, error) {
	return m.repo.GetStats()
}

// Shutdown cancels background runs and waits for them to record their
// outcome, or for ctx to expire.
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every submitted run has finished
func (m *RunManager) Wait() {
	m.wg.Wait()
}
