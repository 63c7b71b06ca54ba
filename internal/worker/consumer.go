// Package worker runs the background tasks of the content engine on asynq.
package worker

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/onexay/contentvs/internal/logger"
	"github.com/onexay/contentvs/internal/queue"
)

// Engine is the part of the content engine the worker drives.
type Engine interface {
	GenerateExtras(ctx context.Context, payload queue.ExtraContentsPayload) error
	NotifyModerators(ctx context.Context, validationID uint) error
}

// Consumer handles queued tasks.
type Consumer struct {
	engine Engine
}

// NewConsumer creates a consumer.
func NewConsumer(engine Engine) *Consumer {
	return &Consumer{engine: engine}
}

// Register binds the task handlers on mux.
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskExtraContents, c.handleExtraContents)
	mux.HandleFunc(queue.TaskNotifyModerators, c.handleNotifyModerators)
}

func (c *Consumer) handleExtraContents(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.engine == nil || task == nil {
		logger.Debugw("worker_extra_contents_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ExtraContentsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_extra_contents_unmarshal_failed", "error", err)
		return err
	}
	if payload.ContentID == 0 || payload.Sha == "" || payload.Slug == "" {
		logger.Debugw("worker_extra_contents_skip_invalid_payload", "content_id", payload.ContentID, "sha", payload.Sha)
		return nil
	}
	if err := c.engine.GenerateExtras(ctx, payload); err != nil {
		logger.Warnw("worker_extra_contents_failed", "content_id", payload.ContentID, "sha", payload.Sha, "error", err)
		return err
	}
	logger.Infow("worker_extra_contents_done", "content_id", payload.ContentID, "slug", payload.Slug, "formats", payload.Formats)
	return nil
}

func (c *Consumer) handleNotifyModerators(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.engine == nil || task == nil {
		logger.Debugw("worker_notify_moderators_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.NotifyModeratorsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_notify_moderators_unmarshal_failed", "error", err)
		return err
	}
	if payload.ValidationID == 0 {
		logger.Debugw("worker_notify_moderators_skip_invalid_payload", "content_id", payload.ContentID)
		return nil
	}
	if err := c.engine.NotifyModerators(ctx, payload.ValidationID); err != nil {
		logger.Warnw("worker_notify_moderators_failed", "validation_id", payload.ValidationID, "error", err)
		return err
	}
	return nil
}
