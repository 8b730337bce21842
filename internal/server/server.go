// Package server exposes the council over HTTP with gin.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/config"
	"github.com/guilhermeleaosoares/llm-council/internal/council"
	"github.com/guilhermeleaosoares/llm-council/internal/health"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
	"github.com/guilhermeleaosoares/llm-council/internal/registry"
	"github.com/guilhermeleaosoares/llm-council/internal/search"
	"github.com/guilhermeleaosoares/llm-council/internal/store"
)

// Version is reported by the health endpoint.
const Version = "4.0"

// Turns runs council turns on stored conversations.
type Turns interface {
	SendMessage(ctx context.Context, conversationID string, req council.SendRequest) (*council.SendResult, error)
	Retry(ctx context.Context, conversationID, councilMessageID string, progress func(string)) (*council.SendResult, error)
	GenerateMedia(ctx context.Context, conversationID string, req council.MediaRequest) ([]models.Message, error)
}

// ModelStore is the configured council.
type ModelStore interface {
	List() []models.ModelDescriptor
	Get(id string) (models.ModelDescriptor, error)
	Enabled(modality models.Modality) []models.ModelDescriptor
	Add(m models.ModelDescriptor) error
	Update(m models.ModelDescriptor) error
	Remove(id string) error
	KingModelID() string
	SetKingModelID(id string) error
}

// Gateway talks to the model providers directly.
type Gateway interface {
	InvokeChat(ctx context.Context, m models.ModelDescriptor, messages []models.ChatMessage, system string, temperature float64, images []models.ImageAttachment) (string, error)
	InvokeImage(ctx context.Context, m models.ModelDescriptor, prompt string, opts models.MediaOptions) (*models.MediaResult, error)
	InvokeVideo(ctx context.Context, m models.ModelDescriptor, prompt string, opts models.MediaOptions) (*models.MediaResult, error)
	FetchImage(ctx context.Context, ref string) (models.ImageAttachment, error)
	Test(ctx context.Context, m models.ModelDescriptor) (string, error)
}

// WebSearcher is the search and scrape collaborator.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	DeepSearch(ctx context.Context, query string, subQueries []string) (*search.DeepResult, error)
	Scrape(ctx context.Context, url string) (*search.Page, error)
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Store   store.Store
	Turns   Turns
	Models  ModelStore
	Gateway Gateway
	Voter   council.Voter
	Search  WebSearcher
}

// Server holds the handlers and their dependencies.
type Server struct {
	cfg   *config.Config
	deps  Deps
	runID string

	general *limiterSet
	heavy   *limiterSet
}

// New creates a server. Every process gets a fresh run id so supervisors
// can detect restarts.
func New(cfg *config.Config, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		runID:   uuid.New().String(),
		general: newLimiterSet(GeneralLimit, GeneralBurst),
		heavy:   newLimiterSet(HeavyLimit, HeavyBurst),
	}
}

// RunID returns the id reported by the health endpoint.
func (s *Server) RunID() string {
	return s.runID
}

// Router builds the gin engine with middleware and routes.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxRequestBodySize)
		c.Next()
	})

	router.Use(cors.New(cors.Config{
		AllowOriginFunc:  s.allowOrigin,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	api := router.Group("/api", s.general.middleware("Rate limit exceeded. Please wait before sending more requests."))
	heavy := s.heavy.middleware("Heavy operation rate limit. Please slow down.")

	api.GET("/health", s.healthCheck)

	api.GET("/conversations", s.listConversations)
	api.POST("/conversations", s.createConversation)
	api.GET("/conversations/:id", s.getConversation)
	api.DELETE("/conversations/:id", s.deleteConversation)
	api.PUT("/conversations/:id/system-prompt", s.setSystemPrompt)
	api.POST("/conversations/:id/message", s.sendMessage)
	api.POST("/conversations/:id/message/stream", s.sendMessageStream)
	api.POST("/conversations/:id/messages/:msgId/retry", s.retryMessage)
	api.POST("/conversations/:id/image", heavy, s.generateConversationMedia(models.MediaImage))
	api.POST("/conversations/:id/video", heavy, s.generateConversationMedia(models.MediaVideo))

	api.GET("/models", s.listModels)
	api.POST("/models", s.addModel)
	api.PUT("/models/:id", s.updateModel)
	api.DELETE("/models/:id", s.deleteModel)
	api.POST("/models/:id/test", s.testModel)
	api.PUT("/king", s.setKing)

	api.POST("/chat", s.chat)
	api.POST("/test", s.testInline)
	api.POST("/generate-image", heavy, s.generate(models.MediaImage))
	api.POST("/generate-video", heavy, s.generate(models.MediaVideo))
	api.POST("/consensus", heavy, s.consensus)
	api.POST("/search", s.search)
	api.POST("/deep-search", heavy, s.deepSearch)
	api.POST("/scrape", s.scrape)

	return router
}

// allowOrigin accepts the configured origins, or any localhost origin when
// none are configured.
func (s *Server) allowOrigin(origin string) bool {
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		for _, allowedOrigin := range s.cfg.CORSAllowedOrigins {
			if origin == allowedOrigin {
				return true
			}
		}
		return false
	}
	return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1")
}

// healthCheck reports liveness and the process run id.
// GET /api/health
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, health.Status{
		Status:  "ok",
		Version: Version,
		RunID:   s.runID,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, registry.ErrModelNotFound),
		errors.Is(err, council.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, council.ErrConversationBusy):
		return http.StatusConflict
	case errors.Is(err, council.ErrEmptyMessage),
		errors.Is(err, council.ErrNoMediaModels),
		errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	case apierr.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	if status := apierr.StatusCode(err); status >= 400 && status < 600 {
		return status
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error, format string) {
	c.JSON(statusFor(err), gin.H{
		"error": fmt.Sprintf(format, err),
	})
}

// sendSSEEvent sends a Server-Sent Event.
// Marshals data to JSON and writes as SSE format with "data: " prefix.
func sendSSEEvent(c *gin.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("Failed to marshal SSE event: %v", err)
		return
	}
	c.Writer.WriteString(fmt.Sprintf("data: %s\n\n", string(jsonData)))
	c.Writer.Flush()
}

// sendSSEError sends an error event via SSE.
func sendSSEError(c *gin.Context, message string) {
	sendSSEEvent(c, gin.H{"type": "error", "message": message})
}
