package service

import (
	"context"

	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/models"
)

// Notifier delivers notifications outside the moderation channel. The
// notification subsystem itself lives elsewhere.
type Notifier interface {
	NotifyModerators(ctx context.Context, c *models.PublishableContent, v *models.Validation) error
	NotifyUser(ctx context.Context, userID uint, text string) error
}

// LogNotifier only logs.
type LogNotifier struct{}

// NotifyModerators implements Notifier.
func (LogNotifier) NotifyModerators(_ context.Context, c *models.PublishableContent, v *models.Validation) error {
	logger.Infow("validation_requested", "content_id", c.ID, "title", c.Title, "validation_id", v.ID, "version", v.Version)
	return nil
}

// NotifyUser implements Notifier.
func (LogNotifier) NotifyUser(_ context.Context, userID uint, text string) error {
	logger.Infow("user_notified", "user_id", userID, "text", text)
	return nil
}
