package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// TaskExtraContents renders the downloadable formats of a publication.
	TaskExtraContents = "publication:extra_contents"
	// TaskNotifyModerators announces a new validation request.
	TaskNotifyModerators = "validation:notify_moderators"
)

// ExtraContentsPayload identifies the publication whose extras are built.
type ExtraContentsPayload struct {
	ContentID   uint     `json:"content_id"`
	PublishedID uint     `json:"published_id"`
	Sha         string   `json:"sha"`
	Slug        string   `json:"slug"`
	Formats     []string `json:"formats"`
}

// NotifyModeratorsPayload identifies the validation to announce.
type NotifyModeratorsPayload struct {
	ContentID    uint `json:"content_id"`
	ValidationID uint `json:"validation_id"`
}

// NewExtraContentsTask builds the extra contents task.
func NewExtraContentsTask(payload ExtraContentsPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExtraContents, body), nil
}

// NewNotifyModeratorsTask builds the moderator notification task.
func NewNotifyModeratorsTask(payload NotifyModeratorsPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyModerators, body), nil
}
