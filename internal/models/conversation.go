package models

import "time"

// Message is a persisted conversation entry. User messages carry the
// attachments and options of the turn; council messages carry the verdict of
// the orchestration engine; media messages carry a generated artifact.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	Images    []ImageAttachment `json:"images,omitempty"`
	Documents []Document        `json:"documents,omitempty"`
	Options   *TurnOptions      `json:"options,omitempty"`

	ModerationText    string           `json:"moderationText,omitempty"`
	Responses         []ModelResponse  `json:"responses,omitempty"`
	ConsensusLog      *ConsensusResult `json:"consensusLog,omitempty"`
	KingModelID       string           `json:"kingModelId,omitempty"`
	ReasoningTrace    []ReasoningRound `json:"reasoningTrace,omitempty"`
	ThinkMode         ThinkMode        `json:"thinkMode,omitempty"`
	SearchResults     []SearchResult   `json:"searchResults,omitempty"`
	DeepSearchQueries []string         `json:"deepSearchQueries,omitempty"`
	Failed            bool             `json:"failed,omitempty"`
	IsToolCall        bool             `json:"isToolCall,omitempty"`
	ToolAction        string           `json:"toolAction,omitempty"`
	ToolPrompt        string           `json:"toolPrompt,omitempty"`

	Media *MediaArtifact `json:"media,omitempty"`
}

// Conversation is a full conversation with all messages.
type Conversation struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// ConversationMetadata is the list view of a conversation.
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// DefaultTitle is assigned to new conversations.
const DefaultTitle = "New Conversation"

// HistoryRole maps a stored role onto a provider chat role.
func HistoryRole(r Role) Role {
	if r == RoleCouncil {
		return RoleAssistant
	}
	return r
}
