package council

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// Tool actions a model may request.
const (
	ActionGenerateImage = "generate_image"
	ActionGenerateVideo = "generate_video"
)

// ToolCall is a media-generation request emitted by the council.
type ToolCall struct {
	Action string `json:"action"`
	Prompt string `json:"prompt"`
}

// Kind returns the media kind requested by the call.
func (t ToolCall) Kind() models.MediaKind {
	if t.Action == ActionGenerateVideo {
		return models.MediaVideo
	}
	return models.MediaImage
}

// Notice is the council text shown instead of the raw JSON.
func (t ToolCall) Notice() string {
	return fmt.Sprintf("*Autonomously invoking %s...*\n\n**Optimized Prompt:** %s",
		strings.Replace(t.Action, "_", " ", 1), t.Prompt)
}

// DetectToolCall reports whether text is exactly a tool-call JSON object,
// optionally wrapped in a fenced code block. Anything else is ordinary
// prose and yields false.
func DetectToolCall(text string) (ToolCall, bool) {
	clean := strings.TrimSpace(text)
	if strings.HasPrefix(clean, "```json") {
		clean = clean[len("```json"):]
	} else if strings.HasPrefix(clean, "```") {
		clean = clean[len("```"):]
	}
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	if !strings.HasPrefix(clean, "{") {
		return ToolCall{}, false
	}

	var call ToolCall
	if err := json.Unmarshal([]byte(clean), &call); err != nil {
		return ToolCall{}, false
	}
	if call.Action != ActionGenerateImage && call.Action != ActionGenerateVideo {
		return ToolCall{}, false
	}
	if strings.TrimSpace(call.Prompt) == "" {
		return ToolCall{}, false
	}
	return call, true
}
