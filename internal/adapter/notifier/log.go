package notifier

import (
	"context"
	"log/slog"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

// LogNotifier surfaces screened calls in the device log. Allowed calls are
// logged at debug level only.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.CallNotifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "call_notifier")}
}

func (n *LogNotifier) NotifyScreened(ctx context.Context, c ports.CallNotification) error {
	level := slog.LevelInfo
	if c.Outcome == domain.OutcomeAllowed {
		level = slog.LevelDebug
	}

	n.logger.Log(ctx, level, "call screened",
		"caller", c.DisplayLabel,
		"number_hash", c.NumberHash,
		"outcome", c.Outcome,
		"source", c.Source,
		"score", c.Score,
		"category", c.Category,
		"screened_at", c.ScreenedAt,
	)
	return nil
}
