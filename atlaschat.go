package atlaschat

import (
	"github.com/atlasdocs/atlaschat/sessions"
	"github.com/atlasdocs/atlaschat/stores"
)

// Re-export session types so callers only need the root package
type ChatSession = sessions.ChatSession
type ModelClient = sessions.ModelClient
type CitationResolver = sessions.CitationResolver
type StreamWriter = sessions.StreamWriter

// Re-export constructor functions
func NewChatSession(conversationID string, userID string, model ModelClient, resolver CitationResolver, store stores.MessageStore) *ChatSession {
	return sessions.NewChatSession(conversationID, userID, model, resolver, store)
}
