package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guilhermeleaosoares/llm-council/internal/council"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

const (
	minAPIKeyLength   = 10
	maxMessageContent = 1000000
)

// ModelTarget names the model a stateless call goes to: either a
// configured model id or inline credentials.
type ModelTarget struct {
	ModelID      string `json:"modelId"`
	APIKey       string `json:"apiKey"`
	BaseURL      string `json:"baseUrl"`
	ModelSlug    string `json:"modelSlug"`
	ProviderKind string `json:"providerKind"`
}

var errInvalidKey = errors.New("invalid or missing API key")

const invalidKeyMessage = "Invalid or missing API key"

// resolve returns the configured descriptor or builds one from the inline
// credentials.
func (s *Server) resolve(t ModelTarget, modality models.Modality) (models.ModelDescriptor, error) {
	if t.ModelID != "" {
		return s.deps.Models.Get(t.ModelID)
	}
	if len(t.APIKey) < minAPIKeyLength {
		return models.ModelDescriptor{}, errInvalidKey
	}
	return models.ModelDescriptor{
		ID:           t.ModelSlug,
		Name:         t.ModelSlug,
		Slug:         t.ModelSlug,
		BaseURL:      t.BaseURL,
		APIKey:       t.APIKey,
		ProviderKind: t.ProviderKind,
		Modality:     modality,
		Enabled:      true,
	}, nil
}

func (s *Server) resolveOrFail(c *gin.Context, t ModelTarget, modality models.Modality) (models.ModelDescriptor, bool) {
	m, err := s.resolve(t, modality)
	if errors.Is(err, errInvalidKey) {
		c.JSON(http.StatusBadRequest, gin.H{"error": invalidKeyMessage})
		return m, false
	}
	if err != nil {
		writeError(c, err, "Failed to resolve model: %v")
		return m, false
	}
	return m, true
}

// ChatRequest is the body of a one-shot chat call.
type ChatRequest struct {
	ModelTarget
	Messages     []models.ChatMessage     `json:"messages"`
	SystemPrompt string                   `json:"systemPrompt"`
	Temperature  *float64                 `json:"temperature"`
	Images       []models.ImageAttachment `json:"images"`
}

// chat sends one chat completion through the provider layer.
// POST /api/chat
func (s *Server) chat(c *gin.Context) {
	var request ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	if len(request.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Messages array is required"})
		return
	}
	for _, msg := range request.Messages {
		if len(msg.Content) > maxMessageContent {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message content too long (max 1,000,000 chars)"})
			return
		}
	}

	m, ok := s.resolveOrFail(c, request.ModelTarget, models.ModalityText)
	if !ok {
		return
	}

	temperature := council.Temperature
	if request.Temperature != nil {
		temperature = *request.Temperature
	}

	content, err := s.deps.Gateway.InvokeChat(c.Request.Context(), m, request.Messages, request.SystemPrompt, temperature, request.Images)
	if err != nil {
		log.Printf("[chat] Error: %v", err)
		writeError(c, err, "%v")
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

// testInline checks inline credentials.
// POST /api/test
func (s *Server) testInline(c *gin.Context) {
	var request struct {
		ModelTarget
		Type models.Modality `json:"type"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}
	if request.ModelID == "" && request.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "API key required"})
		return
	}

	modality := request.Type
	if modality == "" {
		modality = models.ModalityText
	}
	m, ok := s.resolveOrFail(c, request.ModelTarget, modality)
	if !ok {
		return
	}
	s.runTest(c, m)
}

// GenerateRequest is the body of a stateless media call.
type GenerateRequest struct {
	ModelTarget
	Prompt string `json:"prompt"`
	models.MediaOptions
}

// generate runs one image or video generation. Generated http images are
// also returned as base64.
// POST /api/generate-image, /api/generate-video
func (s *Server) generate(kind models.MediaKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request GenerateRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}
		if strings.TrimSpace(request.Prompt) == "" || (request.ModelID == "" && request.APIKey == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "API key and prompt required"})
			return
		}

		modality := models.ModalityImage
		if kind == models.MediaVideo {
			modality = models.ModalityVideo
		}
		m, ok := s.resolveOrFail(c, request.ModelTarget, modality)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		var (
			result *models.MediaResult
			err    error
		)
		if kind == models.MediaVideo {
			result, err = s.deps.Gateway.InvokeVideo(ctx, m, request.Prompt, request.MediaOptions)
		} else {
			result, err = s.deps.Gateway.InvokeImage(ctx, m, request.Prompt, request.MediaOptions)
		}
		if err != nil {
			writeError(c, err, "%v")
			return
		}

		response := gin.H{"imageUrl": result.ImageURL, "videoUrl": result.VideoURL, "content": result.Content}
		if kind == models.MediaImage && result.ImageURL != "" {
			img, err := s.deps.Gateway.FetchImage(ctx, result.ImageURL)
			if err != nil {
				log.Printf("[Base64 Fetch] Failed to fetch generated image: %v", err)
			} else {
				response["base64"] = img.Base64
			}
		}
		c.JSON(http.StatusOK, response)
	}
}

// consensus runs a King election among configured or inline models.
// POST /api/consensus - Body: {"query": "...", "modelIds": [...]} or {"models": [...]}
func (s *Server) consensus(c *gin.Context) {
	var request struct {
		Query    string                   `json:"query"`
		ModelIDs []string                 `json:"modelIds"`
		Models   []models.ModelDescriptor `json:"models"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	candidates := request.Models
	if len(candidates) == 0 {
		for _, id := range request.ModelIDs {
			m, err := s.deps.Models.Get(id)
			if err != nil {
				writeError(c, err, "Failed to resolve model: %v")
				return
			}
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 && len(request.ModelIDs) == 0 {
		candidates = s.deps.Models.Enabled(models.ModalityText)
	}
	if len(candidates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Models array required for consensus"})
		return
	}
	if strings.TrimSpace(request.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query string required"})
		return
	}

	result, err := s.deps.Voter.RunVotingRound(c.Request.Context(), candidates, request.Query)
	if err != nil {
		log.Printf("[consensus] Error: %v", err)
		writeError(c, err, "%v")
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/search - Body: {"query": "..."}
func (s *Server) search(c *gin.Context) {
	var request struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query string required"})
		return
	}

	results, err := s.deps.Search.Search(c.Request.Context(), request.Query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   fmt.Sprintf("Search failed: %v", err),
			"results": []models.SearchResult{},
		})
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// POST /api/deep-search - Body: {"query": "...", "subQueries": [...]}
func (s *Server) deepSearch(c *gin.Context) {
	var request struct {
		Query      string   `json:"query"`
		SubQueries []string `json:"subQueries"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query string required"})
		return
	}

	result, err := s.deps.Search.DeepSearch(c.Request.Context(), request.Query, request.SubQueries)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   fmt.Sprintf("Deep search failed: %v", err),
			"results": []models.SearchResult{},
			"queries": []string{},
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/scrape - Body: {"url": "https://..."}
func (s *Server) scrape(c *gin.Context) {
	var request struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URL required"})
		return
	}

	page, err := s.deps.Search.Scrape(c.Request.Context(), request.URL)
	if err != nil {
		log.Printf("[scrape] Error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Scrape failed: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, page)
}
