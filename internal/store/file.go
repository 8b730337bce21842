package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// FileStore keeps one JSON file per conversation in a data directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// EnsureDataDir ensures the data directory exists.
// Creates the directory with 0755 permissions if it doesn't exist.
func (s *FileStore) EnsureDataDir() error {
	return os.MkdirAll(s.dir, 0755)
}

// ConversationPath returns the file path for a conversation.
func (s *FileStore) ConversationPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// CreateConversation creates a new conversation with the given ID.
// Initializes an empty conversation with default title and saves it to disk.
func (s *FileStore) CreateConversation(id, systemPrompt string) (*models.Conversation, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conversation := &models.Conversation{
		ID:           id,
		CreatedAt:    time.Now().UTC(),
		Title:        models.DefaultTitle,
		SystemPrompt: systemPrompt,
		Messages:     []models.Message{},
	}

	if err := s.save(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// GetConversation loads a conversation from storage by ID.
// Returns nil without error if the conversation doesn't exist.
func (s *FileStore) GetConversation(id string) (*models.Conversation, error) {
	if !ValidID(id) {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(id)
}

// ListConversations lists all conversations with metadata only.
// Silently skips invalid or unreadable files.
func (s *FileStore) ListConversations() ([]models.ConversationMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	// Initialize with empty slice to avoid null in JSON
	conversations := make([]models.ConversationMetadata, 0)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}

		var conv models.Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue
		}

		conversations = append(conversations, models.ConversationMetadata{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
		})
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})

	return conversations, nil
}

// AppendMessage adds a message to the end of a conversation.
func (s *FileStore) AppendMessage(id string, msg models.Message) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.Messages = append(conv.Messages, prepareMessage(msg))
	})
}

// GetHistory returns the conversation as chat turns.
func (s *FileStore) GetHistory(id string) ([]models.ChatMessage, error) {
	conv, err := s.mustGet(id)
	if err != nil {
		return nil, err
	}
	return History(conv.Messages), nil
}

// GetSystemPrompt returns the conversation's system prompt.
func (s *FileStore) GetSystemPrompt(id string) (string, error) {
	conv, err := s.mustGet(id)
	if err != nil {
		return "", err
	}
	return conv.SystemPrompt, nil
}

// SetSystemPrompt replaces the conversation's system prompt.
func (s *FileStore) SetSystemPrompt(id, prompt string) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.SystemPrompt = prompt
	})
}

// UpdateTitle updates the title of a conversation.
func (s *FileStore) UpdateTitle(id, title string) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.Title = title
	})
}

// RemoveMessages drops messages by id.
func (s *FileStore) RemoveMessages(id string, messageIDs ...string) error {
	return s.update(id, func(conv *models.Conversation) {
		conv.Messages = removeByID(conv.Messages, messageIDs)
	})
}

// DeleteConversation removes the conversation file.
func (s *FileStore) DeleteConversation(id string) error {
	if !ValidID(id) {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.ConversationPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete conversation file: %w", err)
	}
	return nil
}

func (s *FileStore) mustGet(id string) (*models.Conversation, error) {
	conv, err := s.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	return conv, nil
}

// update loads, mutates and saves a conversation under the store lock.
func (s *FileStore) update(id string, fn func(*models.Conversation)) error {
	if !ValidID(id) {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.load(id)
	if err != nil {
		return err
	}
	if conv == nil {
		return ErrNotFound
	}

	fn(conv)
	return s.save(conv)
}

func (s *FileStore) load(id string) (*models.Conversation, error) {
	data, err := os.ReadFile(s.ConversationPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conversation models.Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("failed to parse conversation JSON: %w", err)
	}
	if conversation.Messages == nil {
		conversation.Messages = []models.Message{}
	}
	return &conversation, nil
}

// save writes the conversation through a temp file so readers never see a
// partial document.
func (s *FileStore) save(conversation *models.Conversation) error {
	if err := s.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(conversation, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	path := s.ConversationPath(conversation.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}
	return nil
}
