package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexay/contentvs/internal/config"
)

func TestDisabledClientDropsTasks(t *testing.T) {
	c := NewClient(&config.QueueConfig{Enabled: false})
	assert.False(t, c.Enabled())
	assert.NoError(t, c.EnqueueExtraContents(ExtraContentsPayload{ContentID: 1}))
	assert.NoError(t, c.EnqueueNotifyModerators(NotifyModeratorsPayload{ValidationID: 1}))
	assert.NoError(t, c.Close())
	assert.False(t, NewClient(nil).Enabled())
}

func TestExtraContentsTaskPayload(t *testing.T) {
	task, err := NewExtraContentsTask(ExtraContentsPayload{ContentID: 3, Sha: "abc", Slug: "foo", Formats: []string{"pdf"}})
	require.NoError(t, err)
	assert.Equal(t, TaskExtraContents, task.Type())

	var payload ExtraContentsPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, uint(3), payload.ContentID)
	assert.Equal(t, []string{"pdf"}, payload.Formats)
}

func TestBuildServerConfig(t *testing.T) {
	opt, cfg := BuildServerConfig(&config.QueueConfig{Addr: "redis:6380", DB: 2})
	assert.Equal(t, "redis:6380", opt.Addr)
	assert.Equal(t, 2, opt.DB)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, map[string]int{DefaultQueue: 1}, cfg.Queues)

	opt, cfg = BuildServerConfig(&config.QueueConfig{Concurrency: 9, Queues: map[string]int{"critical": 6}})
	assert.Equal(t, "127.0.0.1:6379", opt.Addr)
	assert.Equal(t, 9, cfg.Concurrency)
	assert.Equal(t, map[string]int{"critical": 6}, cfg.Queues)
}
