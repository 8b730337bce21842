package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
)

// DefaultKieBaseURL is the Kie jobs API host.
const DefaultKieBaseURL = "https://api.kie.ai"

// KieJobs implements JobAPI against the Kie jobs endpoints.
type KieJobs struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewKieJobs creates a job client. baseURL may carry a trailing /v1.
func NewKieJobs(baseURL, apiKey string, client *http.Client) *KieJobs {
	base := strings.TrimRight(baseURL, "/")
	base = strings.TrimSuffix(base, "/v1")
	if base == "" {
		base = DefaultKieBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &KieJobs{BaseURL: base, APIKey: apiKey, HTTPClient: client}
}

type kieEnvelope struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (e kieEnvelope) message(fallback string) string {
	for _, m := range []string{e.Msg, e.Error, e.Message} {
		if m != "" {
			return m
		}
	}
	return fallback
}

type kieCreateData struct {
	TaskIDSnake string `json:"task_id"`
	TaskID      string `json:"taskId"`
}

// CreateTask posts a new generation job and returns its task id.
func (k *KieJobs) CreateTask(ctx context.Context, req TaskRequest) (string, error) {
	input := map[string]string{
		"prompt":       req.Prompt,
		"aspect_ratio": orDefault(req.AspectRatio, "16:9"),
		"quality":      orDefault(req.Quality, "standard"),
		"duration":     orDefault(req.Duration, "5"),
	}
	payload, err := json.Marshal(map[string]interface{}{"model": req.Model, "input": input})
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, k.BaseURL+"/api/v1/jobs/createTask", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+k.APIKey)

	resp, err := k.HTTPClient.Do(httpReq)
	if err != nil {
		return "", apierr.Wrap(apierr.Transport, "kie", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var env kieEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", apierr.New(apierr.Transport, "kie", resp.StatusCode, fmt.Sprintf("task creation failed with status %d", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status := resp.StatusCode
		if env.Code != 0 {
			status = env.Code
		}
		return "", apierr.New(apierr.Transport, "kie", status, env.message("task creation failed"))
	}
	if env.Code != 0 && env.Code != 200 {
		return "", apierr.New(apierr.ProviderLogic, "kie", env.Code, env.message("task creation failed"))
	}

	var data kieCreateData
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &data)
	}
	taskID := data.TaskIDSnake
	if taskID == "" {
		taskID = data.TaskID
	}
	if taskID == "" {
		return "", apierr.New(apierr.ProviderLogic, "kie", resp.StatusCode, "no task id returned from createTask")
	}
	return taskID, nil
}

type kieRecord struct {
	State      string          `json:"state"`
	Status     string          `json:"status"`
	ResultJSON json.RawMessage `json:"resultJson"`
	TaskResult *struct {
		ImageURL string `json:"imageUrl"`
		VideoURL string `json:"videoUrl"`
	} `json:"taskResult"`
	ImageURL   string            `json:"imageUrl"`
	VideoURL   string            `json:"videoUrl"`
	URL        string            `json:"url"`
	Images     []json.RawMessage `json:"images"`
	FailMsg    string            `json:"failMsg"`
	FailReason string            `json:"failReason"`
}

type kieResult struct {
	ResultURLs   []string `json:"resultUrls"`
	ResultObject *struct {
		URL string `json:"url"`
	} `json:"resultObject"`
}

// TaskInfo fetches the current record of a task.
func (k *KieJobs) TaskInfo(ctx context.Context, taskID string) (*TaskRecord, error) {
	endpoint := k.BaseURL + "/api/v1/jobs/recordInfo?taskId=" + url.QueryEscape(taskID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+k.APIKey)

	resp, err := k.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transport, "kie", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.New(apierr.Transport, "kie", resp.StatusCode, "poll failed")
	}

	var env kieEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, apierr.Wrap(apierr.Parse, "kie", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}

	var rec kieRecord
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return nil, apierr.Wrap(apierr.Parse, "kie", err)
	}

	state := rec.State
	if state == "" {
		state = rec.Status
	}
	failMsg := rec.FailMsg
	if failMsg == "" {
		failMsg = rec.FailReason
	}
	return &TaskRecord{State: state, URL: rec.artifactURL(), FailMessage: failMsg}, nil
}

// artifactURL resolves the media URL in priority order.
func (r kieRecord) artifactURL() string {
	if res, ok := parseResultJSON(r.ResultJSON); ok {
		if len(res.ResultURLs) > 0 && res.ResultURLs[0] != "" {
			return res.ResultURLs[0]
		}
		if res.ResultObject != nil && res.ResultObject.URL != "" {
			return res.ResultObject.URL
		}
	}

	candidates := []string{}
	if r.TaskResult != nil {
		candidates = append(candidates, r.TaskResult.ImageURL, r.TaskResult.VideoURL)
	}
	candidates = append(candidates, r.ImageURL, r.VideoURL, r.URL)
	if len(r.Images) > 0 {
		var first string
		if json.Unmarshal(r.Images[0], &first) == nil {
			candidates = append(candidates, first)
		}
	}

	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return ""
}

// parseResultJSON accepts resultJson either as an object or as a string
// holding serialized JSON.
func parseResultJSON(raw json.RawMessage) (kieResult, bool) {
	var res kieResult
	if len(raw) == 0 || string(raw) == "null" {
		return res, false
	}

	payload := []byte(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return res, false
		}
		payload = []byte(s)
	}
	if err := json.Unmarshal(payload, &res); err != nil {
		return res, false
	}
	return res, true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
