package media

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
)

func TestNewKieJobsNormalizesBaseURL(t *testing.T) {
	tests := map[string]string{
		"https://api.kie.ai/v1":  "https://api.kie.ai",
		"https://api.kie.ai/v1/": "https://api.kie.ai",
		"https://api.kie.ai":     "https://api.kie.ai",
		"":                       DefaultKieBaseURL,
	}
	for in, want := range tests {
		assert.Equal(t, want, NewKieJobs(in, "k", nil).BaseURL, in)
	}
}

func TestCreateTask(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/createTask", r.URL.Path)
		assert.Equal(t, "Bearer kie-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"code":200,"data":{"taskId":"abc"}}`))
	}))
	defer server.Close()

	id, err := NewKieJobs(server.URL+"/v1", "kie-key", server.Client()).
		CreateTask(context.Background(), TaskRequest{Model: "google/nano-banana", Prompt: "a fox"})

	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, "google/nano-banana", got["model"])
	input := got["input"].(map[string]interface{})
	assert.Equal(t, "a fox", input["prompt"])
	assert.Equal(t, "16:9", input["aspect_ratio"])
	assert.Equal(t, "standard", input["quality"])
	assert.Equal(t, "5", input["duration"])
}

func TestCreateTaskErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantKind   apierr.Kind
	}{
		{"embedded auth failure", 200, `{"code":401,"msg":"Auth failed"}`, 401, apierr.ProviderLogic},
		{"http failure", 500, `{"msg":"boom"}`, 500, apierr.Transport},
		{"non-json body", 502, `<html>bad gateway</html>`, 502, apierr.Transport},
		{"missing task id", 200, `{"code":200,"data":{}}`, 200, apierr.ProviderLogic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewKieJobs(server.URL, "k", server.Client()).CreateTask(context.Background(), TaskRequest{})

			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, apierr.StatusCode(err))
			assert.Equal(t, tt.wantKind, apierr.KindOf(err))
		})
	}
}

func TestTaskInfoArtifactPriority(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"stringified resultJson", `{"state":"success","resultJson":"{\"resultUrls\":[\"https://r/1.png\"]}","imageUrl":"https://fallback"}`, "https://r/1.png"},
		{"object resultJson", `{"state":"success","resultJson":{"resultObject":{"url":"https://r/obj.png"}}}`, "https://r/obj.png"},
		{"task result image", `{"status":"success","taskResult":{"imageUrl":"https://t/i.png"},"url":"https://u"}`, "https://t/i.png"},
		{"task result video", `{"state":"success","taskResult":{"videoUrl":"https://t/v.mp4"}}`, "https://t/v.mp4"},
		{"top level video", `{"state":"success","videoUrl":"https://v.mp4","url":"https://u"}`, "https://v.mp4"},
		{"images array", `{"state":"success","images":["https://i/0.png"]}`, "https://i/0.png"},
		{"broken resultJson falls through", `{"state":"success","resultJson":"not json","url":"https://u"}`, "https://u"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/jobs/recordInfo", r.URL.Path)
				assert.Equal(t, "task-9", r.URL.Query().Get("taskId"))
				w.Write([]byte(`{"code":200,"data":` + tt.data + `}`))
			}))
			defer server.Close()

			rec, err := NewKieJobs(server.URL, "k", server.Client()).TaskInfo(context.Background(), "task-9")

			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, "success", rec.State)
			assert.Equal(t, tt.want, rec.URL)
		})
	}
}

func TestTaskInfoFailureAndEmpty(t *testing.T) {
	responses := []string{
		`{"code":200,"data":{"state":"fail","failReason":"nsfw"}}`,
		`{"code":200,"data":null}`,
	}
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(responses[call]))
		call++
	}))
	defer server.Close()
	jobs := NewKieJobs(server.URL, "k", server.Client())

	rec, err := jobs.TaskInfo(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "fail", rec.State)
	assert.Equal(t, "nsfw", rec.FailMessage)

	rec, err = jobs.TaskInfo(context.Background(), "t")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTaskInfoNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewKieJobs(server.URL, "k", server.Client()).TaskInfo(context.Background(), "t")

	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apierr.StatusCode(err))
}
