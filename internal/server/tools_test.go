package server

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
	"github.com/guilhermeleaosoares/llm-council/internal/search"
)

func TestModelsCRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/models", nil)
	if strings.Contains(w.Body.String(), "sk-secret-key") {
		t.Fatal("model list leaked an API key")
	}
	var listed struct {
		Models      []models.ModelDescriptor `json:"models"`
		KingModelID string                   `json:"kingModelId"`
	}
	decode(t, w, &listed)
	if len(listed.Models) != 3 {
		t.Fatalf("Got %d models, want 3", len(listed.Models))
	}
	if listed.Models[1].ProviderKind != "anthropic" {
		t.Errorf("ProviderKind = %q, want anthropic", listed.Models[1].ProviderKind)
	}

	w = env.do("POST", "/api/models", map[string]interface{}{
		"name":    "Gemini Flash",
		"slug":    "gemini-2.5-flash",
		"baseUrl": "https://generativelanguage.googleapis.com",
		"apiKey":  "AIza-secret-key",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d, body %s", w.Code, w.Body.String())
	}
	var added models.ModelDescriptor
	decode(t, w, &added)
	if added.ID == "" || !added.Enabled || added.Tier != 1 || added.Weight != 80 || added.Modality != models.ModalityText {
		t.Errorf("add defaults not applied: %+v", added)
	}
	if added.APIKey == "AIza-secret-key" {
		t.Error("add response leaked the API key")
	}

	w = env.do("PUT", "/api/models/"+added.ID, map[string]interface{}{
		"name":    "Gemini Flash",
		"slug":    "gemini-2.5-flash",
		"baseUrl": "https://generativelanguage.googleapis.com",
		"enabled": false,
		"tier":    2,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	stored, _ := env.registry.Get(added.ID)
	if stored.Enabled || stored.Tier != 2 {
		t.Errorf("update not applied: %+v", stored)
	}
	if stored.APIKey != "AIza-secret-key" {
		t.Error("update without a key dropped the stored key")
	}

	w = env.do("PUT", "/api/king", map[string]string{"kingModelId": "claude"})
	if w.Code != http.StatusOK || env.registry.KingModelID() != "claude" {
		t.Errorf("set king status = %d, king = %q", w.Code, env.registry.KingModelID())
	}
	w = env.do("PUT", "/api/king", map[string]string{"kingModelId": "nobody"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown king status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = env.do("DELETE", "/api/models/"+added.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusOK)
	}
	w = env.do("PUT", "/api/models/"+added.ID, map[string]interface{}{"name": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update unknown status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAddModelValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []map[string]interface{}{
		{"name": "x", "tier": 7},
		{"name": "x", "weight": 150},
		{"name": "x", "modality": "audio"},
		{"id": "gpt", "name": "duplicate"},
	}

	for _, body := range tests {
		if w := env.do("POST", "/api/models", body); w.Code != http.StatusBadRequest {
			t.Errorf("%v: Status = %d, want %d", body, w.Code, http.StatusBadRequest)
		}
	}
}

func TestTestModel(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/models/gpt/test", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"success":true`) {
		t.Errorf("Status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.do("POST", "/api/test", map[string]string{"apiKey": "bad-key-0000", "baseUrl": "https://api.openai.com/v1", "modelSlug": "gpt-4o"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"success":false`) {
		t.Errorf("bad key: Status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.do("POST", "/api/test", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing key status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestChatEndpoint(t *testing.T) {
	env := newTestEnv(t)
	messages := []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}}

	w := env.do("POST", "/api/chat", ChatRequest{ModelTarget: ModelTarget{ModelID: "gpt"}, Messages: messages})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}
	var response map[string]string
	decode(t, w, &response)
	if response["content"] != "answer from gpt" {
		t.Errorf("content = %q", response["content"])
	}

	tests := []struct {
		name string
		body ChatRequest
		want string
	}{
		{"short key", ChatRequest{ModelTarget: ModelTarget{APIKey: "short"}, Messages: messages}, "Invalid or missing API key"},
		{"no messages", ChatRequest{ModelTarget: ModelTarget{APIKey: "sk-long-enough-key"}}, "Messages array is required"},
		{"too long", ChatRequest{ModelTarget: ModelTarget{APIKey: "sk-long-enough-key"}, Messages: []models.ChatMessage{{Role: models.RoleUser, Content: strings.Repeat("a", maxMessageContent+1)}}}, "too long"},
	}
	env.server.cfg.MaxRequestBodySize = 8 << 20
	for _, tt := range tests {
		w := env.do("POST", "/api/chat", tt.body)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), tt.want) {
			t.Errorf("%s: Status = %d, body %s", tt.name, w.Code, w.Body.String())
		}
	}
}

func TestChatEndpointProviderError(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.chatErr = apierr.New(apierr.Transport, "OpenRouter", 402, "insufficient credits")

	w := env.do("POST", "/api/chat", ChatRequest{
		ModelTarget: ModelTarget{APIKey: "sk-or-long-key", BaseURL: "https://openrouter.ai/api/v1", ModelSlug: "openrouter/auto"},
		Messages:    []models.ChatMessage{{Role: models.RoleUser, Content: "hi"}},
	})

	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusPaymentRequired)
	}
	if !strings.Contains(w.Body.String(), "insufficient credits") {
		t.Errorf("Body = %s", w.Body.String())
	}
}

func TestGenerateEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/generate-image", GenerateRequest{ModelTarget: ModelTarget{ModelID: "flux"}, Prompt: "a cat"})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}
	var image map[string]string
	decode(t, w, &image)
	if image["imageUrl"] != "https://cdn.example/flux.png" || image["base64"] != "QUJD" {
		t.Errorf("image response = %v", image)
	}

	w = env.do("POST", "/api/generate-video", GenerateRequest{ModelTarget: ModelTarget{APIKey: "kie-long-key", BaseURL: "https://api.kie.ai", ModelSlug: "veo3"}, Prompt: "waves"})
	var video map[string]string
	decode(t, w, &video)
	if video["videoUrl"] != "https://cdn.example/veo3.mp4" {
		t.Errorf("video response = %v", video)
	}
	if _, ok := video["base64"]; ok {
		t.Error("video response should not carry base64")
	}

	w = env.do("POST", "/api/generate-image", GenerateRequest{Prompt: "a cat"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing key status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	env.gateway.imageErr = apierr.New(apierr.ProviderLogic, "Kie", 422, "prompt rejected")
	w = env.do("POST", "/api/generate-image", GenerateRequest{ModelTarget: ModelTarget{ModelID: "flux"}, Prompt: "a cat"})
	if w.Code != 422 {
		t.Errorf("provider error status = %d, want 422", w.Code)
	}
}

func TestConsensusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/consensus", map[string]interface{}{"query": "write a parser"})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body %s", w.Code, w.Body.String())
	}
	var result models.ConsensusResult
	decode(t, w, &result)
	if result.ElectedKingID != "gpt" || len(result.Votes) != 2 {
		t.Errorf("result = %+v", result)
	}
	if result.ConsensusDomain != models.DomainCoding {
		t.Errorf("ConsensusDomain = %q, want coding", result.ConsensusDomain)
	}

	w = env.do("POST", "/api/consensus", map[string]interface{}{"query": "q", "modelIds": []string{"claude"}})
	decode(t, w, &result)
	if result.ElectedKingID != "claude" {
		t.Errorf("ElectedKingID = %q, want claude", result.ElectedKingID)
	}

	w = env.do("POST", "/api/consensus", map[string]interface{}{"query": "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = env.do("POST", "/api/consensus", map[string]interface{}{"query": "q", "modelIds": []string{"nobody"}})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown model status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSearchEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/search", map[string]string{"query": "golang"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "https://go.dev") {
		t.Errorf("search: Status = %d, body %s", w.Code, w.Body.String())
	}

	w = env.do("POST", "/api/deep-search", map[string]string{"query": "golang"})
	var deep search.DeepResult
	decode(t, w, &deep)
	if len(deep.Queries) != 6 || len(deep.Results) != 1 {
		t.Errorf("deep search = %+v", deep)
	}

	w = env.do("POST", "/api/scrape", map[string]string{"url": "https://example.com"})
	var page search.Page
	decode(t, w, &page)
	if page.Title != "Example" || page.Text != "hello world" {
		t.Errorf("scrape = %+v", page)
	}

	for _, path := range []string{"/api/search", "/api/deep-search", "/api/scrape"} {
		if w := env.do("POST", path, map[string]string{}); w.Code != http.StatusBadRequest {
			t.Errorf("%s without input: Status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestSearchEndpointFailure(t *testing.T) {
	env := newTestEnv(t)
	env.search.err = errors.New("blocked")

	w := env.do("POST", "/api/search", map[string]string{"query": "golang"})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var response struct {
		Error   string                `json:"error"`
		Results []models.SearchResult `json:"results"`
	}
	decode(t, w, &response)
	if response.Error != "Search failed: blocked" || response.Results == nil {
		t.Errorf("response = %+v", response)
	}
}
