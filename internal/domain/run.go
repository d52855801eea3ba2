package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the current status of a pipeline run
type RunStatus string

const (
	StatusQueued     RunStatus = "queued"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// Script is the text plan of one video
type Script struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Queries     []string `json:"queries"`
}

// Result is the terminal record of a successful pipeline run
type Result struct {
	RunID        string       `json:"run_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Script       string       `json:"script"`
	Status       string       `json:"status"`
	AspectRatio  AspectRatio  `json:"aspect_ratio"`
	Assets       []LocalAsset `json:"assets"`
	OutputPath   string       `json:"output_path"`
	PublishedKey string       `json:"published_key,omitempty"`
}

// RunRecord is the persisted history entry of one pipeline run
type RunRecord struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	Topic        string     `json:"topic" gorm:"not null"`
	AspectRatio  string     `json:"aspect_ratio" gorm:"not null"`
	Status       RunStatus  `json:"status" gorm:"not null;index"`
	Title        string     `json:"title,omitempty"`
	Message      string     `json:"message,omitempty"`
	OutputPath   string     `json:"output_path,omitempty"`
	PublishedKey string     `json:"published_key,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewRunRecord creates a new queued run
func NewRunRecord(topic string, aspect AspectRatio) *RunRecord {
	now := time.Now()
	return &RunRecord{
		ID:          uuid.New().String(),
		Topic:       topic,
		AspectRatio: string(aspect),
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkProcessing marks the run as processing
func (r *RunRecord) MarkProcessing() {
	r.Status = StatusProcessing
	now := time.Now()
	r.StartedAt = &now
	r.UpdatedAt = now
}

// MarkCompleted marks the run as completed with its result
func (r *RunRecord) MarkCompleted(result *Result) {
	r.Status = StatusCompleted
	r.Title = result.Title
	r.Message = result.Status
	r.OutputPath = result.OutputPath
	r.PublishedKey = result.PublishedKey
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// MarkFailed marks the run as failed
func (r *RunRecord) MarkFailed(err error) {
	r.Status = StatusFailed
	r.ErrorMessage = err.Error()
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// IsTerminal checks if the run is in a terminal state
func (r *RunRecord) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// RunStats represents run history statistics
type RunStats struct {
	Total      int64 `json:"total"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}
