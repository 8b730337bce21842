// Package health supervises the council backend: it polls a heartbeat
// endpoint and wipes stored credentials when the backend restarted or
// stopped answering.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// MaxFailures is the number of consecutive failed checks that triggers a wipe.
const MaxFailures = 3

// Status is the heartbeat payload served by GET /api/health.
type Status struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	RunID   string `json:"runId"`
}

// Wiper drops every stored credential.
type Wiper interface {
	Wipe()
}

// Monitor polls a heartbeat URL on a fixed schedule.
type Monitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	wiper    Wiper

	scheduler *cron.Cron

	mu       sync.Mutex
	runID    string
	failures int
}

// NewMonitor creates a monitor. An empty url disables it.
func NewMonitor(url string, interval time.Duration, client *http.Client, wiper Wiper) *Monitor {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		url:       url,
		interval:  interval,
		client:    client,
		wiper:     wiper,
		scheduler: cron.New(cron.WithSeconds()),
	}
}

// Start schedules the heartbeat. It is a no-op when no URL is configured.
func (m *Monitor) Start() error {
	if m.url == "" {
		log.Println("[health] No heartbeat URL configured, monitor disabled")
		return nil
	}

	spec := "@every " + m.interval.String()
	if _, err := m.scheduler.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.interval)
		defer cancel()
		_ = m.Check(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}

	m.scheduler.Start()
	log.Printf("[health] Polling %s every %s", m.url, m.interval)
	return nil
}

// Stop halts the schedule and waits for a running check to finish.
func (m *Monitor) Stop() {
	<-m.scheduler.Stop().Done()
}

// Check performs one heartbeat. Credentials are wiped when the reported
// run id differs from the last one seen, or after MaxFailures consecutive
// failures.
func (m *Monitor) Check(ctx context.Context) error {
	status, err := m.fetch(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.failures++
		log.Printf("[health] Heartbeat failed (%d/%d): %v", m.failures, MaxFailures, err)
		if m.failures >= MaxFailures {
			log.Println("[health] Backend unreachable, wiping credentials")
			m.wiper.Wipe()
			m.failures = 0
			m.runID = ""
		}
		return err
	}

	m.failures = 0
	if m.runID != "" && status.RunID != m.runID {
		log.Printf("[health] Backend restarted (run %s -> %s), wiping credentials", m.runID, status.RunID)
		m.wiper.Wipe()
	}
	m.runID = status.RunID
	return nil
}

// RunID returns the last run id seen.
func (m *Monitor) RunID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runID
}

func (m *Monitor) fetch(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("heartbeat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("heartbeat returned status %d", resp.StatusCode)
	}

	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode heartbeat: %w", err)
	}
	if status.RunID == "" {
		return nil, fmt.Errorf("heartbeat has no runId")
	}
	return &status, nil
}
