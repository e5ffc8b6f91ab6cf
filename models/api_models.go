package models

import "time"

// ChatMessageResponse defines the structure for messages returned by the chat history API endpoint.
// It excludes internal DB fields like gorm.Model but includes necessary identifiers and timestamps.
type ChatMessageResponse struct {
	ID             uint       `json:"id"`
	CreatedAt      time.Time  `json:"created_at"`
	ConversationID string     `json:"conversation_id"`
	Sequence       int        `json:"sequence"`
	Role           string     `json:"role"` // "user", "assistant"
	Text           string     `json:"text"`
	Citations      []Citation `json:"citations,omitempty"`
}

// ConversationResponse is the listing shape for a conversation.
type ConversationResponse struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
