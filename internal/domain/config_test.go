package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 1, config.Server.MaxConcurrentRuns)
	assert.Equal(t, 3.0, config.Search.MinDuration)
	assert.Equal(t, 60.0, config.Search.MaxDuration)
	assert.Equal(t, DefaultDurationWeight, config.Search.DurationWeight)
	assert.Equal(t, 8, config.Search.MinCandidates)
	assert.Equal(t, 5, config.Download.BatchSize)
	assert.Equal(t, 3, config.Download.MaxRetries)
	assert.Equal(t, time.Second, config.Download.RetryDelay)
	assert.Equal(t, 3, config.Download.AttemptRetries)
	assert.Equal(t, "9:16", config.Compile.AspectRatio)
	assert.Equal(t, 23, config.Compile.CRF)
	assert.Equal(t, "medium", config.Compile.Preset)
	assert.Equal(t, "template", config.Script.Provider)
	assert.False(t, config.Publish.Enabled)
	assert.False(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestAspectRatio_Resolution(t *testing.T) {
	tests := []struct {
		aspect      AspectRatio
		expected    Resolution
		orientation Orientation
		ok          bool
	}{
		{AspectPortrait, Resolution{1080, 1920}, OrientationPortrait, true},
		{AspectLandscape, Resolution{1920, 1080}, OrientationLandscape, true},
		{AspectSquare, Resolution{1080, 1080}, OrientationSquare, true},
		{"4:3", Resolution{}, OrientationPortrait, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.aspect), func(t *testing.T) {
			res, ok := tt.aspect.Resolution()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, res)
			assert.Equal(t, tt.orientation, tt.aspect.Orientation())
		})
	}
}

func TestValidateTransition(t *testing.T) {
	for _, kind := range AllTransitionKinds {
		assert.True(t, ValidateTransition(kind))
	}
	assert.Len(t, AllTransitionKinds, 6)
	assert.False(t, ValidateTransition("wipe-left"))
	assert.False(t, ValidateTransition(""))
}
