package stores

import (
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/atlasdocs/atlaschat/models"
)

// SQLiteStore implements MessageStore for SQLite databases
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(config *StoreConfig) (*SQLiteStore, error) {
	if config.Type != "sqlite" {
		return nil, fmt.Errorf("invalid store type for SQLite store: %s", config.Type)
	}

	store := &SQLiteStore{
		path: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	return store, nil
}

// NewSQLiteStoreSimple creates a new SQLite store with just a file path
func NewSQLiteStoreSimple(dbPath string) (*SQLiteStore, error) {
	config := NewStoreConfig("sqlite", dbPath)
	return NewSQLiteStore(config)
}

// Connect establishes a connection to the SQLite database
func (s *SQLiteStore) Connect() error {
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	s.db = db

	// Auto-migrate the schema
	if err := s.db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *SQLiteStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// SaveMessage appends a message to a conversation, creating the conversation
// record on the first message. The conversation row is touched on every
// append so its updated-at advances.
func (s *SQLiteStore) SaveMessage(conversationID, userID, role, content string, citations []models.Citation) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	return saveMessage(s.db, conversationID, userID, role, content, citations)
}

// FetchHistory retrieves messages for a conversation in sequence order
// limit: maximum number of messages to retrieve (0 = return all messages)
func (s *SQLiteStore) FetchHistory(conversationID string, limit int) ([]Message, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	return fetchHistory(s.db, conversationID, limit)
}

// CreateConversation creates a new conversation record
func (s *SQLiteStore) CreateConversation(convoID, userID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	conv := Conversation{
		ConversationID: convoID,
		UserID:         userID,
		MessageCount:   0,
	}

	return s.db.Create(&conv).Error
}

// GetConversation fetches a single conversation by its ID
func (s *SQLiteStore) GetConversation(convoID string) (*Conversation, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	return getConversation(s.db, convoID)
}

// UpdateConversationTitle sets the conversation's display title
func (s *SQLiteStore) UpdateConversationTitle(convoID, title string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	return updateConversationTitle(s.db, convoID, title)
}

// ListConversationsForUser returns all conversations with details for a specific user
func (s *SQLiteStore) ListConversationsForUser(userID string) ([]ConversationInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	return listConversationsForUser(s.db, userID)
}

// DeleteConversation removes a conversation and its messages
func (s *SQLiteStore) DeleteConversation(convoID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	return deleteConversation(s.db, convoID)
}

// Shared GORM operations. SQLite and Postgres stores differ only in their
// drivers, so the query logic lives here once.

func saveMessage(db *gorm.DB, conversationID, userID, role, content string, citations []models.Citation) error {
	// Ensure conversation record exists (create if first message)
	// Use Count() to check existence without triggering "record not found" error logs
	var count int64
	if err := db.Model(&Conversation{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
		log.Printf("Warning: Error checking for conversation %s: %v", conversationID, err)
	} else if count == 0 {
		conv := Conversation{ConversationID: conversationID, UserID: userID, MessageCount: 0}
		if err := db.Create(&conv).Error; err != nil {
			log.Printf("Warning: Failed to create conversation record for %s: %v", conversationID, err)
		}
	}

	// Reuse count variable to get message sequence number
	if err := db.Model(&Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count existing messages: %w", err)
	}

	seq := int(count) + 1

	citationsJSON := ""
	if len(citations) > 0 {
		data, err := json.Marshal(citations)
		if err != nil {
			return fmt.Errorf("failed to marshal citations for database: %w", err)
		}
		citationsJSON = string(data)
	}

	msg := Message{
		ConversationID: conversationID,
		Sequence:       seq,
		Role:           role,
		Content:        content,
		CitationsJSON:  citationsJSON,
	}

	tx := db.Begin()
	if err := tx.Create(&msg).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to create message record: %w", err)
	}

	if err := tx.Model(&Conversation{}).Where("conversation_id = ?", conversationID).Update("message_count", seq).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to update conversation message count: %w", err)
	}

	return tx.Commit().Error
}

func fetchHistory(db *gorm.DB, conversationID string, limit int) ([]Message, error) {
	var msgs []Message
	query := db.Where("conversation_id = ?", conversationID).Order("sequence ASC")

	if limit > 0 {
		// Get total count first
		var count int64
		if err := db.Model(&Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("failed to count messages: %w", err)
		}

		// If more than limit, offset to get only last N messages
		if count > int64(limit) {
			offset := int(count) - limit
			query = query.Offset(offset)
		}
	}

	if err := query.Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return msgs, nil
}

func getConversation(db *gorm.DB, convoID string) (*Conversation, error) {
	var conv Conversation
	if err := db.Where("conversation_id = ?", convoID).First(&conv).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversation %s: %w", convoID, err)
	}
	return &conv, nil
}

func updateConversationTitle(db *gorm.DB, convoID, title string) error {
	result := db.Model(&Conversation{}).Where("conversation_id = ?", convoID).Update("title", title)
	if result.Error != nil {
		return fmt.Errorf("failed to update conversation title: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("conversation not found: %s", convoID)
	}
	return nil
}

func listConversationsForUser(db *gorm.DB, userID string) ([]ConversationInfo, error) {
	var convs []Conversation
	if err := db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	result := make([]ConversationInfo, len(convs))
	for i, c := range convs {
		result[i] = ConversationInfo{
			ConversationID: c.ConversationID,
			UserID:         c.UserID,
			Title:          c.Title,
			MessageCount:   c.MessageCount,
			CreatedAt:      c.CreatedAt,
			UpdatedAt:      c.UpdatedAt,
		}
	}

	return result, nil
}

func deleteConversation(db *gorm.DB, convoID string) error {
	tx := db.Begin()
	if err := tx.Where("conversation_id = ?", convoID).Delete(&Message{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if err := tx.Where("conversation_id = ?", convoID).Delete(&Conversation{}).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return tx.Commit().Error
}
