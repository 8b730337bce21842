package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// conversationRow is the conversations table.
type conversationRow struct {
	ID           string `gorm:"primaryKey;size:128"`
	Title        string `gorm:"size:255"`
	SystemPrompt string `gorm:"type:text"`
	CreatedAt    time.Time
}

func (conversationRow) TableName() string { return "conversations" }

// messageRow is one message; the full record is kept as a JSON payload.
// (conversation_id, seq) is unique so two writers can never share a slot.
type messageRow struct {
	ID             string         `gorm:"primaryKey;size:64"`
	ConversationID string         `gorm:"size:128;uniqueIndex:idx_messages_conversation_seq,priority:1"`
	Seq            int            `gorm:"uniqueIndex:idx_messages_conversation_seq,priority:2"`
	Role           string         `gorm:"size:32"`
	Payload        models.Message `gorm:"type:longtext;serializer:json"`
	CreatedAt      time.Time
}

func (messageRow) TableName() string { return "messages" }

// SQLStore keeps conversations in a relational database through gorm.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) a SQLite database at path. ":memory:"
// opens a private in-memory database.
func OpenSQLite(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("store: create sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}

	// SQLite serializes writers; a single connection also keeps an
	// in-memory database alive for the store's lifetime.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return NewSQLStore(db)
}

// OpenMySQL connects to a MySQL-compatible server.
func OpenMySQL(dsn string) (*SQLStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: connect mysql: %w", err)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an open connection and migrates the schema.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&conversationRow{}, &messageRow{}); err != nil {
		return nil, fmt.Errorf("store: auto-migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) CreateConversation(id, systemPrompt string) (*models.Conversation, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}

	row := conversationRow{
		ID:           id,
		Title:        models.DefaultTitle,
		SystemPrompt: systemPrompt,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("store: create conversation %s: %w", id, err)
	}

	return &models.Conversation{
		ID:           row.ID,
		CreatedAt:    row.CreatedAt,
		Title:        row.Title,
		SystemPrompt: row.SystemPrompt,
		Messages:     []models.Message{},
	}, nil
}

func (s *SQLStore) GetConversation(id string) (*models.Conversation, error) {
	row, err := s.findConversation(s.db, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	messages, err := s.messages(id)
	if err != nil {
		return nil, err
	}

	return &models.Conversation{
		ID:           row.ID,
		CreatedAt:    row.CreatedAt,
		Title:        row.Title,
		SystemPrompt: row.SystemPrompt,
		Messages:     messages,
	}, nil
}

func (s *SQLStore) ListConversations() ([]models.ConversationMetadata, error) {
	var rows []conversationRow
	if err := s.db.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}

	var counts []struct {
		ConversationID string
		N              int
	}
	if err := s.db.Model(&messageRow{}).
		Select("conversation_id, COUNT(*) AS n").
		Group("conversation_id").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("store: count messages: %w", err)
	}
	byID := make(map[string]int, len(counts))
	for _, c := range counts {
		byID[c.ConversationID] = c.N
	}

	out := make([]models.ConversationMetadata, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.ConversationMetadata{
			ID:           r.ID,
			CreatedAt:    r.CreatedAt,
			Title:        r.Title,
			MessageCount: byID[r.ID],
		})
	}
	return out, nil
}

func (s *SQLStore) AppendMessage(id string, msg models.Message) error {
	msg = prepareMessage(msg)
	return s.db.Transaction(func(tx *gorm.DB) error {
		// The row lock serializes appends to one conversation (SQLite
		// ignores it and serializes writers on its own).
		if _, err := s.findConversation(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id); err != nil {
			return err
		}

		var maxSeq int
		if err := tx.Model(&messageRow{}).
			Where("conversation_id = ?", id).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("store: next seq: %w", err)
		}

		row := messageRow{
			ID:             msg.ID,
			ConversationID: id,
			Seq:            maxSeq + 1,
			Role:           string(msg.Role),
			Payload:        msg,
			CreatedAt:      msg.Timestamp,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("store: append message: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetHistory(id string) ([]models.ChatMessage, error) {
	if _, err := s.findConversation(s.db, id); err != nil {
		return nil, err
	}
	messages, err := s.messages(id)
	if err != nil {
		return nil, err
	}
	return History(messages), nil
}

func (s *SQLStore) GetSystemPrompt(id string) (string, error) {
	row, err := s.findConversation(s.db, id)
	if err != nil {
		return "", err
	}
	return row.SystemPrompt, nil
}

func (s *SQLStore) SetSystemPrompt(id, prompt string) error {
	return s.updateColumn(id, "system_prompt", prompt)
}

func (s *SQLStore) UpdateTitle(id, title string) error {
	return s.updateColumn(id, "title", title)
}

func (s *SQLStore) RemoveMessages(id string, messageIDs ...string) error {
	if _, err := s.findConversation(s.db, id); err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}
	if err := s.db.Where("conversation_id = ? AND id IN ?", id, messageIDs).
		Delete(&messageRow{}).Error; err != nil {
		return fmt.Errorf("store: remove messages: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteConversation(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&messageRow{}).Error; err != nil {
			return fmt.Errorf("store: delete messages: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&conversationRow{})
		if result.Error != nil {
			return fmt.Errorf("store: delete conversation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLStore) findConversation(db *gorm.DB, id string) (*conversationRow, error) {
	var row conversationRow
	err := db.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get conversation %s: %w", id, err)
	}
	return &row, nil
}

func (s *SQLStore) messages(id string) ([]models.Message, error) {
	var rows []messageRow
	if err := s.db.Where("conversation_id = ?", id).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: load messages: %w", err)
	}
	out := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Payload)
	}
	return out, nil
}

func (s *SQLStore) updateColumn(id, column string, value string) error {
	result := s.db.Model(&conversationRow{}).Where("id = ?", id).Update(column, value)
	if result.Error != nil {
		return fmt.Errorf("store: update %s: %w", column, result.Error)
	}
	if result.RowsAffected == 0 {
		// Same-value updates report zero rows on some drivers.
		if _, err := s.findConversation(s.db, id); err != nil {
			return err
		}
	}
	return nil
}
