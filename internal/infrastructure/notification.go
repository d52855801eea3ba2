package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/shortforge-go/internal/domain"
	"github.com/yourusername/shortforge-go/pkg/logger"
	"go.uber.org/zap"
)

const notifyTimeout = 5 * time.Second

// NotificationService sends desktop notifications about runs
type NotificationService struct {
	config *domain.NotificationConfig
	runner CommandRunner
	logger *zap.Logger
}

// NewNotificationService creates a new notification service. A nil runner
// uses ExecRunner.
func NewNotificationService(config *domain.NotificationConfig, runner CommandRunner, log *zap.Logger) *NotificationService {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &NotificationService{
		config: config,
		runner: runner,
		logger: logger.OrNop(log),
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var binary string
	var args []string
	switch n.config.Method {
	case "osascript":
		binary = "osascript"
		args = []string{"-e", fmt.Sprintf(`display notification %q with title %q`, message, title)}
	case "notify-send":
		binary = "notify-send"
		args = []string{title, message}
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if _, err := n.runner.Run(ctx, binary, args...); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyRunStarted sends notification when a run starts
func (n *NotificationService) NotifyRunStarted(topic string) {
	n.Send("Video Started", fmt.Sprintf("Generating: %s", truncateString(topic, 40)))
}

// NotifyRunCompleted sends notification when a run completes
func (n *NotificationService) NotifyRunCompleted(topic, status string) {
	n.Send("Video Ready", fmt.Sprintf("%s (%s)", truncateString(topic, 40), status))
}

// NotifyRunFailed sends notification when a run fails
func (n *NotificationService) NotifyRunFailed(topic string, err error) {
	n.Send("Video Failed", fmt.Sprintf("%s: %s", truncateString(topic, 30), truncateString(err.Error(), 60)))
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
