package stores

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/atlasdocs/atlaschat/models"
)

// Message is one chat message within a conversation. Content is the full
// text; for assistant messages CitationsJSON stores the final citation list
// as a JSON array.
type Message struct {
	gorm.Model
	ConversationID string `gorm:"index;not null"`
	Sequence       int    `gorm:"not null"`
	Role           string `gorm:"not null"` // "user", "assistant"
	Content        string `gorm:"type:text"`
	CitationsJSON  string `gorm:"type:json"`
}

// Citations decodes the stored citation list. Returns nil for messages
// without citations or with unreadable stored JSON.
func (m *Message) Citations() []models.Citation {
	if m.CitationsJSON == "" || m.CitationsJSON == "null" {
		return nil
	}
	var citations []models.Citation
	if err := json.Unmarshal([]byte(m.CitationsJSON), &citations); err != nil {
		return nil
	}
	return citations
}

// Conversation holds metadata for a chat conversation. Title is empty until
// the first-turn title generation sets it; users may edit it afterward.
type Conversation struct {
	gorm.Model
	ConversationID string    `gorm:"uniqueIndex;not null"`
	UserID         string    `gorm:"index;not null"`
	Title          string    `gorm:"type:text"`
	MessageCount   int       `gorm:"default:0"`
	Messages       []Message `gorm:"foreignKey:ConversationID;references:ConversationID"`
}

// ConversationInfo holds basic conversation metadata for listing
type ConversationInfo struct {
	ConversationID string
	UserID         string
	Title          string
	MessageCount   int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MessageStore interface for abstracting database operations
type MessageStore interface {
	// Message operations
	SaveMessage(conversationID, userID, role, content string, citations []models.Citation) error
	FetchHistory(conversationID string, limit int) ([]Message, error)

	// Conversation operations
	CreateConversation(convoID, userID string) error
	GetConversation(convoID string) (*Conversation, error)
	UpdateConversationTitle(convoID, title string) error
	ListConversationsForUser(userID string) ([]ConversationInfo, error)
	DeleteConversation(convoID string) error

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// StoreConfig holds configuration for database stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
