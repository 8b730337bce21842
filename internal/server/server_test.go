package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/config"
	"github.com/guilhermeleaosoares/llm-council/internal/consensus"
	"github.com/guilhermeleaosoares/llm-council/internal/council"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
	"github.com/guilhermeleaosoares/llm-council/internal/registry"
	"github.com/guilhermeleaosoares/llm-council/internal/search"
	"github.com/guilhermeleaosoares/llm-council/internal/store"
)

func init() {
	// Set Gin to test mode
	gin.SetMode(gin.TestMode)
}

// fakeGateway answers every provider call locally.
type fakeGateway struct {
	mu       sync.Mutex
	chats    int
	chatErr  error
	imageErr error
}

func (g *fakeGateway) InvokeChat(ctx context.Context, m models.ModelDescriptor, messages []models.ChatMessage, system string, temperature float64, images []models.ImageAttachment) (string, error) {
	g.mu.Lock()
	g.chats++
	g.mu.Unlock()

	if g.chatErr != nil {
		return "", g.chatErr
	}
	last := messages[len(messages)-1].Content
	switch {
	case strings.HasPrefix(last, "Generate a very short title"):
		return "Test Title", nil
	case strings.Contains(last, "confidence"):
		return `{"domain":"coding","confidence":8,"reason":"I know this"}`, nil
	}
	return "answer from " + m.ID, nil
}

func (g *fakeGateway) InvokeImage(ctx context.Context, m models.ModelDescriptor, prompt string, opts models.MediaOptions) (*models.MediaResult, error) {
	if g.imageErr != nil {
		return nil, g.imageErr
	}
	return &models.MediaResult{ImageURL: "https://cdn.example/" + m.ID + ".png"}, nil
}

func (g *fakeGateway) InvokeVideo(ctx context.Context, m models.ModelDescriptor, prompt string, opts models.MediaOptions) (*models.MediaResult, error) {
	return &models.MediaResult{VideoURL: "https://cdn.example/" + m.ID + ".mp4"}, nil
}

func (g *fakeGateway) FetchImage(ctx context.Context, ref string) (models.ImageAttachment, error) {
	return models.ImageAttachment{MimeType: "image/png", Base64: "QUJD"}, nil
}

func (g *fakeGateway) Test(ctx context.Context, m models.ModelDescriptor) (string, error) {
	if m.APIKey == "bad-key-0000" {
		return "", apierr.New(apierr.Transport, "OpenAI", 401, "invalid api key")
	}
	return "ok", nil
}

type fakeSearcher struct {
	err error
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.SearchResult{{Title: "Go", URL: "https://go.dev", Snippet: query}}, nil
}

func (f *fakeSearcher) DeepSearch(ctx context.Context, query string, subQueries []string) (*search.DeepResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &search.DeepResult{Results: []models.SearchResult{{URL: "https://a.example"}}, Queries: search.Variations(query)}, nil
}

func (f *fakeSearcher) Scrape(ctx context.Context, url string) (*search.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &search.Page{Title: "Example", URL: url, Text: "hello world"}, nil
}

type testEnv struct {
	server   *Server
	router   *gin.Engine
	store    store.Store
	registry *registry.Registry
	gateway  *fakeGateway
	search   *fakeSearcher
	service  *council.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	env := &testEnv{
		store: store.NewFileStore(cfg.DataDir),
		registry: registry.New([]models.ModelDescriptor{
			{ID: "gpt", Name: "GPT", Slug: "gpt-4o", BaseURL: "https://api.openai.com/v1", APIKey: "sk-secret-key", Tier: 1, Weight: 80, Enabled: true, Modality: models.ModalityText},
			{ID: "claude", Name: "Claude", Slug: "claude-sonnet", BaseURL: "https://api.anthropic.com", APIKey: "sk-ant-secret", Tier: 1, Weight: 80, Enabled: true, Modality: models.ModalityText},
			{ID: "flux", Name: "Flux", Slug: "flux-pro", BaseURL: "https://fal.run", APIKey: "fal-secret-key", Tier: 1, Weight: 80, Enabled: true, Modality: models.ModalityImage},
		}, ""),
		gateway: &fakeGateway{},
		search:  &fakeSearcher{},
	}

	voter := consensus.New(env.gateway, time.Second)
	env.service = council.NewService(council.Deps{
		Store:  env.store,
		Models: env.registry,
		Engine: council.NewEngine(env.gateway, voter, models.DefaultWeights(), time.Second),
		Chat:   env.gateway,
		Media:  env.gateway,
		Search: env.search,
	}, council.Options{})
	t.Cleanup(env.service.Wait)

	env.server = New(cfg, Deps{
		Store:   env.store,
		Turns:   env.service,
		Models:  env.registry,
		Gateway: env.gateway,
		Voter:   voter,
		Search:  env.search,
	})
	env.router = env.server.Router()
	return env
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
}

func (e *testEnv) createConversation(t *testing.T) string {
	t.Helper()
	w := e.do("POST", "/api/conversations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	var conv models.Conversation
	decode(t, w, &conv)
	return conv.ID
}

// TestHealthCheck tests the health check endpoint
func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var response map[string]interface{}
	decode(t, w, &response)

	if response["status"] != "ok" {
		t.Errorf("Status = %v, want 'ok'", response["status"])
	}
	if response["version"] != Version {
		t.Errorf("Version = %v, want %s", response["version"], Version)
	}
	if response["runId"] != env.server.RunID() || env.server.RunID() == "" {
		t.Errorf("RunID = %v, want %s", response["runId"], env.server.RunID())
	}
}

func TestRunIDDiffersPerServer(t *testing.T) {
	a := New(config.Default(), Deps{})
	b := New(config.Default(), Deps{})
	if a.RunID() == b.RunID() {
		t.Error("two servers share a run id")
	}
}

func TestRequestSizeLimit(t *testing.T) {
	env := newTestEnv(t)
	env.server.cfg.MaxRequestBodySize = 16

	w := env.do("POST", "/api/conversations", map[string]string{"systemPrompt": strings.Repeat("x", 100)})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:5173", true},
		{"http://127.0.0.1:5173", true},
		{"https://evil.example", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/api/health", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)

		got := w.Header().Get("Access-Control-Allow-Origin") == tt.origin
		if got != tt.allowed {
			t.Errorf("origin %s allowed = %v, want %v", tt.origin, got, tt.allowed)
		}
	}
}

func TestAllowOriginConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.CORSAllowedOrigins = []string{"https://council.example"}
	s := New(cfg, Deps{})

	if !s.allowOrigin("https://council.example") {
		t.Error("configured origin rejected")
	}
	if s.allowOrigin("http://localhost:5173") {
		t.Error("localhost accepted when origins are configured")
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.server.heavy = newLimiterSet(rate.Every(time.Hour), 2)
	router := env.server.Router()

	codes := make([]int, 3)
	for i := range codes {
		data, _ := json.Marshal(map[string]string{"query": "q"})
		req := httptest.NewRequest("POST", "/api/deep-search", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes[i] = w.Code
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("first requests = %v, want 200", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want %d", codes[2], http.StatusTooManyRequests)
	}
}

func TestLimiterSetIsPerClient(t *testing.T) {
	l := newLimiterSet(rate.Every(time.Hour), 1)

	if !l.allow("10.0.0.1") {
		t.Error("first request denied")
	}
	if l.allow("10.0.0.1") {
		t.Error("second request allowed")
	}
	if !l.allow("10.0.0.2") {
		t.Error("other client denied")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"model not found", registry.ErrModelNotFound, http.StatusNotFound},
		{"busy", council.ErrConversationBusy, http.StatusConflict},
		{"empty", council.ErrEmptyMessage, http.StatusBadRequest},
		{"timeout", apierr.New(apierr.Timeout, "Kie", 0, "timed out"), http.StatusGatewayTimeout},
		{"provider status", apierr.New(apierr.Transport, "OpenAI", 429, "slow down"), http.StatusTooManyRequests},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("%s: statusFor() = %d, want %d", tt.name, got, tt.want)
		}
	}
}
