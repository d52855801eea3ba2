package domain

import "context"

// ScriptWriter turns a topic into a script and search queries
type ScriptWriter interface {
	WriteScript(ctx context.Context, topic string) (*Script, error)
}

// Narrator synthesizes narration audio for a script
type Narrator interface {
	// Narrate writes an audio file under dir and returns it as an asset
	Narrate(ctx context.Context, text, dir string) (LocalAsset, error)
}

// Illustrator produces a still image for a video
type Illustrator interface {
	Illustrate(ctx context.Context, title, dir string) (LocalAsset, error)
}

// Publisher uploads a finished video and returns its remote key
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// RunRepository defines the interface for run history persistence
type RunRepository interface {
	// Create creates a new run record
	Create(run *RunRecord) error

	// Update updates an existing run record
	Update(run *RunRecord) error

	// FindByID finds a run by ID
	FindByID(id string) (*RunRecord, error)

	// FindAll finds runs with optional filters, newest first
	FindAll(filters map[string]interface{}) ([]*RunRecord, error)

	// GetStats returns run statistics
	GetStats() (*RunStats, error)

	// MarkInterrupted fails every run left in processing and returns the count
	MarkInterrupted(reason string) (int64, error)
}
