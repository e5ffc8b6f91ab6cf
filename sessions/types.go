package sessions

import (
	"context"
	"log"

	"github.com/atlasdocs/atlaschat/models"
	"github.com/atlasdocs/atlaschat/stores"
)

// ModelClient is the upstream model/retrieval service for one knowledge
// source: a streaming chat call plus the short title-generation call.
type ModelClient interface {
	Stream_Chat_Request(history []models.ChatTurn, message string) (<-chan models.UpstreamUnit, <-chan error)
	Generate_Title(ctx context.Context, question, answer string) (string, error)
}

// CitationResolver resolves a citation's source title to a stable external
// URL. A miss returns ("", false) and the citation is surfaced unlinked.
type CitationResolver interface {
	Resolve(ctx context.Context, title string) (string, bool)
}

// StreamWriter delivers encoded stream events to one client transport.
type StreamWriter interface {
	WriteEvent(ev models.StreamEvent) error
	Flush()
}

// ChatSession drives one conversation's chat turns: it relays the upstream
// stream as ordered events, consolidates citations, persists the exchange
// and requests a first-turn title.
type ChatSession struct {
	Model          ModelClient
	Resolver       CitationResolver
	Store          stores.MessageStore
	ConversationID string
	UserID         string
	Logger         *log.Logger
}
