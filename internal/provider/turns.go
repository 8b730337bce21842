package provider

import "github.com/guilhermeleaosoares/llm-council/internal/models"

// turn is one merged conversational turn for providers that require strict
// user/assistant alternation.
type turn struct {
	role   models.Role
	texts  []string
	images []models.ImageAttachment
}

// alternatingTurns folds every non-assistant role into user, merges
// consecutive same-role messages, attaches images to the final message when
// it is a user message, and guarantees the first turn is a user turn.
func alternatingTurns(msgs []models.ChatMessage, images []models.ImageAttachment) []turn {
	var turns []turn
	for i, m := range msgs {
		role := models.RoleUser
		if m.Role == models.RoleAssistant {
			role = models.RoleAssistant
		}

		var imgs []models.ImageAttachment
		if i == len(msgs)-1 && role == models.RoleUser {
			imgs = images
		}

		if n := len(turns); n > 0 && turns[n-1].role == role {
			turns[n-1].texts = append(turns[n-1].texts, m.Content)
			turns[n-1].images = append(turns[n-1].images, imgs...)
			continue
		}
		turns = append(turns, turn{role: role, texts: []string{m.Content}, images: imgs})
	}

	if len(turns) > 0 && turns[0].role != models.RoleUser {
		turns = append([]turn{{role: models.RoleUser, texts: []string{"."}}}, turns...)
	}
	return turns
}
