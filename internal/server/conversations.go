package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/guilhermeleaosoares/llm-council/internal/council"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// CreateConversationRequest is the optional body of a create call.
type CreateConversationRequest struct {
	SystemPrompt string `json:"systemPrompt"`
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Content   string                   `json:"content"`
	Images    []models.ImageAttachment `json:"images"`
	Documents []models.Document        `json:"documents"`
	Options   models.TurnOptions       `json:"options"`
}

func (r SendMessageRequest) toCouncil(progress func(string)) council.SendRequest {
	return council.SendRequest{
		Text:      r.Content,
		Images:    r.Images,
		Documents: r.Documents,
		Options:   r.Options,
		Progress:  progress,
	}
}

// MediaMessageRequest asks for images or videos inside a conversation.
type MediaMessageRequest struct {
	Prompt   string              `json:"prompt" binding:"required"`
	ModelIDs []string            `json:"modelIds"`
	Attempts int                 `json:"attempts" binding:"omitempty,min=1,max=4"`
	Options  models.MediaOptions `json:"options"`
}

// listConversations lists all conversations with metadata only.
// GET /api/conversations - Returns array of conversation metadata sorted by date.
func (s *Server) listConversations(c *gin.Context) {
	conversations, err := s.deps.Store.ListConversations()
	if err != nil {
		writeError(c, err, "Failed to list conversations: %v")
		return
	}
	if conversations == nil {
		conversations = []models.ConversationMetadata{}
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversation creates a new conversation.
// POST /api/conversations - Generates a new UUID and creates an empty conversation.
func (s *Server) createConversation(c *gin.Context) {
	var request CreateConversationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}
	}

	conversation, err := s.deps.Store.CreateConversation(uuid.New().String(), request.SystemPrompt)
	if err != nil {
		writeError(c, err, "Failed to create conversation: %v")
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversation gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func (s *Server) getConversation(c *gin.Context) {
	conversation, err := s.deps.Store.GetConversation(c.Param("id"))
	if err != nil {
		writeError(c, err, "Failed to get conversation: %v")
		return
	}

	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// DELETE /api/conversations/:id
func (s *Server) deleteConversation(c *gin.Context) {
	if err := s.deps.Store.DeleteConversation(c.Param("id")); err != nil {
		writeError(c, err, "Failed to delete conversation: %v")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// PUT /api/conversations/:id/system-prompt - Body: {"systemPrompt": "..."}
func (s *Server) setSystemPrompt(c *gin.Context) {
	var request struct {
		SystemPrompt string `json:"systemPrompt"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	if err := s.deps.Store.SetSystemPrompt(c.Param("id"), request.SystemPrompt); err != nil {
		writeError(c, err, "Failed to set system prompt: %v")
		return
	}
	c.JSON(http.StatusOK, gin.H{"systemPrompt": request.SystemPrompt})
}

// sendMessage runs one council turn and returns both stored messages.
// POST /api/conversations/:id/message
func (s *Server) sendMessage(c *gin.Context) {
	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	result, err := s.deps.Turns.SendMessage(c.Request.Context(), c.Param("id"), request.toCouncil(nil))
	if err != nil {
		writeError(c, err, "Council process failed: %v")
		return
	}

	c.JSON(http.StatusOK, result)
}

// sendMessageStream runs one council turn and streams its phases via SSE.
// POST /api/conversations/:id/message/stream
// Events: phase (one per phase change), complete (with both messages), error.
func (s *Server) sendMessageStream(c *gin.Context) {
	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	progress := func(phase string) {
		sendSSEEvent(c, gin.H{"type": "phase", "phase": phase})
	}

	result, err := s.deps.Turns.SendMessage(c.Request.Context(), c.Param("id"), request.toCouncil(progress))
	if err != nil {
		sendSSEError(c, fmt.Sprintf("Council process failed: %v", err))
		return
	}

	sendSSEEvent(c, gin.H{"type": "complete", "data": result})
}

// retryMessage drops a council message and its prompt and reruns the turn.
// POST /api/conversations/:id/messages/:msgId/retry
func (s *Server) retryMessage(c *gin.Context) {
	result, err := s.deps.Turns.Retry(c.Request.Context(), c.Param("id"), c.Param("msgId"), nil)
	if err != nil {
		writeError(c, err, "Retry failed: %v")
		return
	}
	c.JSON(http.StatusOK, result)
}

// generateConversationMedia runs explicit image or video generation and
// stores the results in the conversation.
// POST /api/conversations/:id/image, /api/conversations/:id/video
func (s *Server) generateConversationMedia(kind models.MediaKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request MediaMessageRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		messages, err := s.deps.Turns.GenerateMedia(c.Request.Context(), c.Param("id"), council.MediaRequest{
			Kind:     kind,
			Prompt:   request.Prompt,
			ModelIDs: request.ModelIDs,
			Attempts: request.Attempts,
			Options:  request.Options,
		})
		if err != nil {
			writeError(c, err, "Media generation failed: %v")
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages})
	}
}
