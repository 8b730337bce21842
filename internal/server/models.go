package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
	"github.com/guilhermeleaosoares/llm-council/internal/provider"
)

// Defaults for models added through the API.
const (
	defaultTier   = 1
	defaultWeight = 80
)

// ModelRequest is the add/update body. Enabled defaults to true when omitted.
type ModelRequest struct {
	models.ModelDescriptor
	Enabled *bool `json:"enabled"`
}

func (r ModelRequest) descriptor() models.ModelDescriptor {
	m := r.ModelDescriptor
	m.Enabled = r.Enabled == nil || *r.Enabled
	if m.Tier == 0 {
		m.Tier = defaultTier
	}
	if m.Weight == 0 {
		m.Weight = defaultWeight
	}
	if m.Modality == "" {
		m.Modality = models.ModalityText
	}
	return m
}

func validateDescriptor(m models.ModelDescriptor) error {
	switch m.Modality {
	case models.ModalityText, models.ModalityImage, models.ModalityVideo:
	default:
		return fmt.Errorf("unknown modality %q", m.Modality)
	}
	if m.Tier < 1 || m.Tier > 3 {
		return fmt.Errorf("tier must be between 1 and 3")
	}
	if m.Weight < 0 || m.Weight > 100 {
		return fmt.Errorf("weight must be between 0 and 100")
	}
	return nil
}

// redact hides the key and fills in the classified provider kind.
func redact(m models.ModelDescriptor) models.ModelDescriptor {
	if m.ProviderKind == "" {
		m.ProviderKind = string(provider.KindOf(m))
	}
	return m.Redacted()
}

// listModels returns every configured model with keys redacted.
// GET /api/models
func (s *Server) listModels(c *gin.Context) {
	list := s.deps.Models.List()
	out := make([]models.ModelDescriptor, len(list))
	for i, m := range list {
		out[i] = redact(m)
	}

	c.JSON(http.StatusOK, gin.H{
		"models":      out,
		"kingModelId": s.deps.Models.KingModelID(),
	})
}

// POST /api/models
func (s *Server) addModel(c *gin.Context) {
	var request ModelRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	m := request.descriptor()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if err := validateDescriptor(m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Models.Add(m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Failed to add model: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, redact(m))
}

// PUT /api/models/:id - An empty apiKey keeps the stored key.
func (s *Server) updateModel(c *gin.Context) {
	var request ModelRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	m := request.descriptor()
	m.ID = c.Param("id")
	if err := validateDescriptor(m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Models.Update(m); err != nil {
		writeError(c, err, "Failed to update model: %v")
		return
	}

	c.JSON(http.StatusOK, redact(m))
}

// DELETE /api/models/:id
func (s *Server) deleteModel(c *gin.Context) {
	if err := s.deps.Models.Remove(c.Param("id")); err != nil {
		writeError(c, err, "Failed to delete model: %v")
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// testModel checks connectivity of a configured model.
// POST /api/models/:id/test
func (s *Server) testModel(c *gin.Context) {
	m, err := s.deps.Models.Get(c.Param("id"))
	if err != nil {
		writeError(c, err, "Failed to test model: %v")
		return
	}
	s.runTest(c, m)
}

func (s *Server) runTest(c *gin.Context, m models.ModelDescriptor) {
	message, err := s.deps.Gateway.Test(c.Request.Context(), m)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// PUT /api/king - Body: {"kingModelId": "..."}; empty clears the pin.
func (s *Server) setKing(c *gin.Context) {
	var request struct {
		KingModelID string `json:"kingModelId"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	if err := s.deps.Models.SetKingModelID(request.KingModelID); err != nil {
		writeError(c, err, "Failed to set King: %v")
		return
	}
	c.JSON(http.StatusOK, gin.H{"kingModelId": request.KingModelID})
}
