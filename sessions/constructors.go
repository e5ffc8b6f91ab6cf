package sessions

import (
	"fmt"
	"log"
	"os"

	"github.com/atlasdocs/atlaschat/stores"
)

// NewChatSession creates a session bound to one conversation.
func NewChatSession(conversationID, userID string, model ModelClient, resolver CitationResolver, store stores.MessageStore) *ChatSession {
	logger := log.New(os.Stdout, fmt.Sprintf("[CHAT %s] ", conversationID), log.LstdFlags)

	return &ChatSession{
		Model:          model,
		Resolver:       resolver,
		Store:          store,
		ConversationID: conversationID,
		UserID:         userID,
		Logger:         logger,
	}
}
