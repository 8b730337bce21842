// Package media drives asynchronous media-generation jobs: create a task,
// then poll it until it reaches a terminal state or the deadline passes.
package media

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
)

// ErrTimedOut is returned when a task is still running at the deadline.
var ErrTimedOut = apierr.New(apierr.Timeout, "", 0, "media generation timed out")

// TaskRequest describes a job to create.
type TaskRequest struct {
	Model       string
	Prompt      string
	AspectRatio string
	Quality     string
	Duration    string
}

// TaskRecord is the provider-neutral view of one poll.
type TaskRecord struct {
	State       string
	URL         string
	FailMessage string
}

// JobAPI creates and inspects remote generation tasks.
type JobAPI interface {
	CreateTask(ctx context.Context, req TaskRequest) (string, error)
	// TaskInfo returns a nil record when the provider has nothing to report yet.
	TaskInfo(ctx context.Context, taskID string) (*TaskRecord, error)
}

var (
	successStates = map[string]bool{"success": true, "finished": true}
	failureStates = map[string]bool{"fail": true, "error": true, "create_task_failed": true, "generate_failed": true}
)

// Poller waits on JobAPI tasks at a fixed interval until a hard deadline.
type Poller struct {
	API      JobAPI
	Interval time.Duration
	Timeout  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewPoller creates a poller using the real clock.
func NewPoller(api JobAPI, interval, timeout time.Duration) *Poller {
	return &Poller{
		API:      api,
		Interval: interval,
		Timeout:  timeout,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Generate creates a task and waits for its artifact URL.
func (p *Poller) Generate(ctx context.Context, req TaskRequest) (string, error) {
	taskID, err := p.API.CreateTask(ctx, req)
	if err != nil {
		return "", err
	}
	log.Printf("[media] Started task %s for %s, polling", taskID, req.Model)
	return p.Wait(ctx, taskID)
}

// Wait polls taskID until success, failure, cancellation or timeout.
// Poll transport failures are logged and polling continues.
func (p *Poller) Wait(ctx context.Context, taskID string) (string, error) {
	start := p.now()

	for p.now().Sub(start) < p.Timeout {
		if err := p.sleep(ctx, p.Interval); err != nil {
			return "", err
		}

		record, err := p.API.TaskInfo(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Printf("[media] Poll for task %s failed: %v", taskID, err)
			continue
		}
		if record == nil {
			continue
		}

		state := strings.ToLower(record.State)
		switch {
		case successStates[state]:
			if record.URL == "" {
				return "", apierr.New(apierr.Parse, "", 0, "task succeeded but no media URL found in payload")
			}
			log.Printf("[media] Task %s finished", taskID)
			return record.URL, nil
		case failureStates[state]:
			reason := record.FailMessage
			if reason == "" {
				reason = state
			}
			return "", apierr.New(apierr.ProviderLogic, "", 0, "task failed: "+reason)
		}
	}

	return "", fmt.Errorf("task %s: %w after %s", taskID, ErrTimedOut, p.Timeout)
}
