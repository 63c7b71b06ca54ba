package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onexay/contentvs/internal/config"
	"github.com/onexay/contentvs/internal/queue"
)

type fakeEngine struct {
	extras      []queue.ExtraContentsPayload
	validations []uint
	err         error
}

func (f *fakeEngine) GenerateExtras(_ context.Context, payload queue.ExtraContentsPayload) error {
	f.extras = append(f.extras, payload)
	return f.err
}

func (f *fakeEngine) NotifyModerators(_ context.Context, validationID uint) error {
	f.validations = append(f.validations, validationID)
	return f.err
}

func newMux(engine Engine) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	NewConsumer(engine).Register(mux)
	return mux
}

func TestExtraContentsTaskReachesEngine(t *testing.T) {
	engine := &fakeEngine{}
	payload := queue.ExtraContentsPayload{ContentID: 3, PublishedID: 5, Sha: "abc", Slug: "foo", Formats: []string{"epub"}}
	task, err := queue.NewExtraContentsTask(payload)
	require.NoError(t, err)

	require.NoError(t, newMux(engine).ProcessTask(context.Background(), task))
	require.Len(t, engine.extras, 1)
	assert.Equal(t, payload, engine.extras[0])
}

func TestNotifyModeratorsTaskReachesEngine(t *testing.T) {
	engine := &fakeEngine{}
	task, err := queue.NewNotifyModeratorsTask(queue.NotifyModeratorsPayload{ContentID: 3, ValidationID: 9})
	require.NoError(t, err)

	require.NoError(t, newMux(engine).ProcessTask(context.Background(), task))
	assert.Equal(t, []uint{9}, engine.validations)
}

func TestInvalidPayloadsAreSkipped(t *testing.T) {
	engine := &fakeEngine{}
	mux := newMux(engine)

	task, err := queue.NewExtraContentsTask(queue.ExtraContentsPayload{ContentID: 3})
	require.NoError(t, err)
	assert.NoError(t, mux.ProcessTask(context.Background(), task))

	task, err = queue.NewNotifyModeratorsTask(queue.NotifyModeratorsPayload{ContentID: 3})
	require.NoError(t, err)
	assert.NoError(t, mux.ProcessTask(context.Background(), task))

	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask(queue.TaskExtraContents, []byte("{"))))
	assert.Empty(t, engine.extras)
	assert.Empty(t, engine.validations)
}

func TestEngineErrorsAreRetried(t *testing.T) {
	engine := &fakeEngine{err: errors.New("boom")}
	task, err := queue.NewNotifyModeratorsTask(queue.NotifyModeratorsPayload{ValidationID: 1})
	require.NoError(t, err)
	assert.Error(t, newMux(engine).ProcessTask(context.Background(), task))
}

func TestNewServiceRequiresEnabledQueue(t *testing.T) {
	_, err := NewService(nil, NewConsumer(&fakeEngine{}))
	assert.Error(t, err)
	_, err = NewService(&config.QueueConfig{Enabled: false}, NewConsumer(&fakeEngine{}))
	assert.Error(t, err)
	_, err = NewService(&config.QueueConfig{Enabled: true}, nil)
	assert.Error(t, err)

	svc, err := NewService(&config.QueueConfig{Enabled: true, Addr: "127.0.0.1:0"}, NewConsumer(&fakeEngine{}))
	require.NoError(t, err)
	assert.Equal(t, "worker", svc.Name())
}
