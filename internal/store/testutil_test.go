package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// TestHelper provides utilities for tests
type TestHelper struct {
	t       *testing.T
	tempDir string
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// CreateTempDir creates a temporary directory for testing
func (h *TestHelper) CreateTempDir() string {
	tempDir, err := os.MkdirTemp("", "llm-council-test-*")
	if err != nil {
		h.t.Fatalf("Failed to create temp dir: %v", err)
	}
	h.tempDir = tempDir
	return tempDir
}

// Cleanup removes the temporary directory
func (h *TestHelper) Cleanup() {
	if h.tempDir != "" {
		os.RemoveAll(h.tempDir)
	}
}

// WriteJSONFile writes JSON data to a file in the temp directory
func (h *TestHelper) WriteJSONFile(filename string, data interface{}) string {
	if h.tempDir == "" {
		h.CreateTempDir()
	}

	path := filepath.Join(h.tempDir, filename)
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		h.t.Fatalf("Failed to marshal JSON: %v", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		h.t.Fatalf("Failed to write file: %v", err)
	}

	return path
}

// AssertNoError checks if an error is nil
func (h *TestHelper) AssertNoError(err error, message string) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("%s: unexpected error: %v", message, err)
	}
}

// SampleConversation creates a sample conversation for testing
func SampleConversation(id string) *models.Conversation {
	return &models.Conversation{
		ID:        id,
		CreatedAt: testTime(),
		Title:     "Test Conversation",
		Messages: []models.Message{
			{
				ID:   "m1",
				Role: models.RoleUser,
				Text: "What is Go?",
			},
			{
				ID:             "m2",
				Role:           models.RoleCouncil,
				Text:           "Go is a programming language developed by Google.",
				ModerationText: "**Council Verdict:** 2/2 models responded successfully.",
				KingModelID:    "model-a",
				Responses: []models.ModelResponse{
					{ModelID: "model-a", ModelName: "Model A", Text: "Go is a programming language.", IsKing: true},
					{ModelID: "model-b", ModelName: "Model B", Text: "Go is developed by Google."},
				},
			},
		},
	}
}

// testTime returns a fixed time for testing
func testTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}
