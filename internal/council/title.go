package council

import (
	"context"
	"fmt"
	"strings"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// maxTitleLen bounds generated and fallback titles.
const maxTitleLen = 50

// GenerateTitle generates a short title for a conversation.
// Uses the cheapest-looking text model to create a 3-5 word summary of the
// user's first message. Returns the generated title or an error if
// generation fails.
func GenerateTitle(ctx context.Context, chat ChatInvoker, m models.ModelDescriptor, userQuery string) (string, error) {
	titlePrompt := fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, userQuery)

	messages := []models.ChatMessage{
		{Role: models.RoleUser, Content: titlePrompt},
	}

	response, err := chat.InvokeChat(ctx, m, messages, "", 0.3, nil)
	if err != nil {
		return "", fmt.Errorf("title generation failed: %w", err)
	}

	// Clean up the title - remove quotes
	title := strings.Trim(strings.TrimSpace(response), "\"'")
	if title == "" {
		return "", fmt.Errorf("title generation failed: empty title")
	}

	return truncateTitle(title), nil
}

// FallbackTitle derives a title from the message itself.
func FallbackTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return models.DefaultTitle
	}
	runes := []rune(text)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen])
	}
	return text
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) > maxTitleLen {
		return string(runes[:maxTitleLen-3]) + "..."
	}
	return title
}
