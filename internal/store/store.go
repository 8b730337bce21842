// Package store persists conversations. Two backends are provided: one JSON
// file per conversation (FileStore) and a gorm-backed database (SQLStore).
package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guilhermeleaosoares/llm-council/internal/config"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrInvalidID is returned for ids that cannot name a conversation.
	ErrInvalidID = errors.New("invalid conversation id")
)

// Store is the append-only message log of every conversation plus its
// system prompt and title.
type Store interface {
	// CreateConversation creates an empty conversation.
	CreateConversation(id, systemPrompt string) (*models.Conversation, error)
	// GetConversation returns nil without error if id does not exist.
	GetConversation(id string) (*models.Conversation, error)
	// ListConversations returns metadata sorted newest first.
	ListConversations() ([]models.ConversationMetadata, error)
	AppendMessage(id string, msg models.Message) error
	// GetHistory returns the provider-ready history, council turns mapped
	// to the assistant role.
	GetHistory(id string) ([]models.ChatMessage, error)
	GetSystemPrompt(id string) (string, error)
	SetSystemPrompt(id, prompt string) error
	UpdateTitle(id, title string) error
	// RemoveMessages drops the messages with the given ids. Unknown ids are
	// ignored.
	RemoveMessages(id string, messageIDs ...string) error
	DeleteConversation(id string) error
}

// Open builds the store selected by the configuration.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case config.StoreMySQL:
		return OpenMySQL(cfg.MySQLDSN)
	case config.StoreFile, "":
		return NewFileStore(cfg.DataDir), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.StoreBackend)
	}
}

// ValidID rejects ids that are empty or could escape the data directory.
func ValidID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

// History maps stored messages onto chat turns. Messages without text are
// skipped.
func History(messages []models.Message) []models.ChatMessage {
	history := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Text == "" {
			continue
		}
		role := models.RoleUser
		if models.HistoryRole(m.Role) == models.RoleAssistant {
			role = models.RoleAssistant
		}
		history = append(history, models.ChatMessage{Role: role, Content: m.Text})
	}
	return history
}

// prepareMessage fills in the id and timestamp when the caller left them out.
func prepareMessage(msg models.Message) models.Message {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

func removeByID(messages []models.Message, ids []string) []models.Message {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if !drop[m.ID] {
			kept = append(kept, m)
		}
	}
	return kept
}
