package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
)

// fakeClock advances only when the poller sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

// scriptedAPI replays a fixed sequence of poll outcomes.
type scriptedAPI struct {
	taskID    string
	createErr error
	polls     []pollStep
	calls     int
}

type pollStep struct {
	record *TaskRecord
	err    error
}

func (s *scriptedAPI) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	return s.taskID, s.createErr
}

func (s *scriptedAPI) TaskInfo(ctx context.Context, taskID string) (*TaskRecord, error) {
	step := s.polls[len(s.polls)-1]
	if s.calls < len(s.polls) {
		step = s.polls[s.calls]
	}
	s.calls++
	return step.record, step.err
}

func newTestPoller(api JobAPI, clock *fakeClock) *Poller {
	p := NewPoller(api, 3*time.Second, 5*time.Minute)
	p.sleep = clock.Sleep
	p.now = clock.Now
	return p
}

func TestGenerateSucceedsAfterThreePolls(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	api := &scriptedAPI{
		taskID: "task-1",
		polls: []pollStep{
			{record: &TaskRecord{State: "queuing"}},
			{record: &TaskRecord{State: "generating"}},
			{record: &TaskRecord{State: "success", URL: "https://x/y.png"}},
		},
	}

	url, err := newTestPoller(api, clock).Generate(context.Background(), TaskRequest{Model: "google/nano-banana", Prompt: "a cat"})

	require.NoError(t, err)
	assert.Equal(t, "https://x/y.png", url)
	assert.Equal(t, 3, api.calls)
	assert.Equal(t, 9*time.Second, clock.Now().Sub(start))
}

func TestWaitAcceptsFinishedState(t *testing.T) {
	api := &scriptedAPI{polls: []pollStep{{record: &TaskRecord{State: "FINISHED", URL: "https://x/v.mp4"}}}}

	url, err := newTestPoller(api, newFakeClock()).Wait(context.Background(), "t")

	require.NoError(t, err)
	assert.Equal(t, "https://x/v.mp4", url)
}

func TestWaitFailureStates(t *testing.T) {
	tests := []struct {
		name    string
		record  *TaskRecord
		wantMsg string
	}{
		{"fail message", &TaskRecord{State: "fail", FailMessage: "content policy"}, "task failed: content policy"},
		{"error without message", &TaskRecord{State: "error"}, "task failed: error"},
		{"create_task_failed", &TaskRecord{State: "create_task_failed"}, "task failed: create_task_failed"},
		{"generate_failed", &TaskRecord{State: "generate_failed", FailMessage: "gpu"}, "task failed: gpu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &scriptedAPI{polls: []pollStep{{record: tt.record}}}
			_, err := newTestPoller(api, newFakeClock()).Wait(context.Background(), "t")

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, apierr.ProviderLogic, apierr.KindOf(err))
		})
	}
}

func TestWaitSuccessWithoutURL(t *testing.T) {
	api := &scriptedAPI{polls: []pollStep{{record: &TaskRecord{State: "success"}}}}

	_, err := newTestPoller(api, newFakeClock()).Wait(context.Background(), "t")

	require.Error(t, err)
	assert.Equal(t, apierr.Parse, apierr.KindOf(err))
}

func TestWaitContinuesAfterPollErrors(t *testing.T) {
	api := &scriptedAPI{
		polls: []pollStep{
			{err: apierr.New(apierr.Transport, "kie", 502, "poll failed")},
			{record: nil},
			{record: &TaskRecord{State: "success", URL: "https://x/ok.png"}},
		},
	}

	url, err := newTestPoller(api, newFakeClock()).Wait(context.Background(), "t")

	require.NoError(t, err)
	assert.Equal(t, "https://x/ok.png", url)
	assert.Equal(t, 3, api.calls)
}

func TestWaitTimesOut(t *testing.T) {
	clock := newFakeClock()
	api := &scriptedAPI{polls: []pollStep{{record: &TaskRecord{State: "generating"}}}}

	_, err := newTestPoller(api, clock).Wait(context.Background(), "slow")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut))
	assert.True(t, apierr.IsTimeout(err))
	assert.Equal(t, 100, api.calls, "5 minutes at a 3 second interval")
}

func TestWaitHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &scriptedAPI{polls: []pollStep{{record: &TaskRecord{State: "generating"}}}}

	_, err := newTestPoller(api, newFakeClock()).Wait(ctx, "t")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, api.calls)
}

func TestGenerateCreateFailure(t *testing.T) {
	api := &scriptedAPI{createErr: apierr.New(apierr.ProviderLogic, "kie", 401, "Auth failed")}

	_, err := newTestPoller(api, newFakeClock()).Generate(context.Background(), TaskRequest{})

	require.Error(t, err)
	assert.Equal(t, 401, apierr.StatusCode(err))
	assert.Equal(t, 0, api.calls)
}
