package client

import (
	"io"
	"log"
	"os"

	"github.com/atlasdocs/atlaschat/models"
	"github.com/atlasdocs/atlaschat/protocol"
)

// streamErrorNotice is what the user sees in place of an answer when the
// upstream fails. Kept short and role-neutral so it reads like any other
// assistant message.
const streamErrorNotice = "Sorry, something went wrong while generating a response."

// MessageView is one rendered message. Content grows while the turn is
// streaming and stops changing once Finalized is set.
type MessageView struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Citations []models.Citation `json:"citations,omitempty"`
	Finalized bool              `json:"finalized"`
	IsError   bool              `json:"isError,omitempty"`
}

// ConversationView is the client-side picture of one conversation: its
// title and message list, updated event by event.
type ConversationView struct {
	Title    string        `json:"title"`
	Messages []MessageView `json:"messages"`
}

// Consumer feeds raw transport bytes through the frame decoder and reduces
// the resulting events into a ConversationView. One Consumer handles one
// conversation; at most one turn is in flight at a time.
type Consumer struct {
	decoder *protocol.Decoder
	view    ConversationView

	// index into view.Messages of the assistant message currently being
	// streamed, or -1 when no turn is in flight
	pending int

	Logger *log.Logger
}

func NewConsumer() *Consumer {
	return &Consumer{
		decoder: protocol.NewDecoder(),
		pending: -1,
		Logger:  log.New(os.Stdout, "[CLIENT] ", log.LstdFlags),
	}
}

// View returns the current conversation state.
func (c *Consumer) View() ConversationView {
	return c.view
}

// BeginTurn records the submitted user message and opens an empty assistant
// message for the incoming stream. Callers disable input submission until
// Done reports true.
func (c *Consumer) BeginTurn(userMessage string) {
	c.view.Messages = append(c.view.Messages,
		MessageView{Role: "user", Content: userMessage, Finalized: true},
		MessageView{Role: "assistant"},
	)
	c.pending = len(c.view.Messages) - 1
}

// Done reports whether the current turn has reached its terminal event.
func (c *Consumer) Done() bool {
	return c.pending == -1
}

// Consume reads a response body to completion, applying events as frames
// complete. Read sizes are whatever the transport hands back.
func (c *Consumer) Consume(r io.Reader) error {
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.Feed(buf[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Feed decodes whatever complete frames the chunk completes and applies
// them in order. Chunk boundaries are arbitrary; partial frames wait in the
// decoder for the next read.
func (c *Consumer) Feed(chunk []byte) {
	for _, ev := range c.decoder.Feed(chunk) {
		c.Apply(ev)
	}
}

// Apply reduces one event into the view.
func (c *Consumer) Apply(ev models.StreamEvent) {
	switch ev.Type {
	case models.EventText:
		if msg := c.pendingMessage(); msg != nil && ev.Text != nil {
			msg.Content += ev.Text.Text
		}

	case models.EventCitations:
		// Full replacement. The server sends the consolidated set once,
		// after all text.
		if msg := c.pendingMessage(); msg != nil {
			msg.Citations = ev.Citations
		}

	case models.EventTitle:
		if ev.Title != nil {
			c.view.Title = ev.Title.Title
		}

	case models.EventDone:
		if msg := c.pendingMessage(); msg != nil {
			msg.Finalized = true
		}
		c.pending = -1

	case models.EventError:
		c.applyError(ev)

	default:
		c.Logger.Printf("Ignoring event with unknown type %q", ev.Type)
	}
}

// applyError closes the turn. A partial answer stays on screen finalized;
// an assistant message that never received text is removed so no empty
// bubble lingers. A synthetic error message is appended either way.
func (c *Consumer) applyError(ev models.StreamEvent) {
	if msg := c.pendingMessage(); msg != nil {
		if msg.Content == "" {
			c.view.Messages = c.view.Messages[:c.pending]
		} else {
			msg.Finalized = true
		}
	}
	c.pending = -1

	if ev.Error != nil {
		c.Logger.Printf("Stream error: %s", ev.Error.Message)
	}
	c.view.Messages = append(c.view.Messages, MessageView{
		Role:      "assistant",
		Content:   streamErrorNotice,
		Finalized: true,
		IsError:   true,
	})
}

func (c *Consumer) pendingMessage() *MessageView {
	if c.pending < 0 || c.pending >= len(c.view.Messages) {
		return nil
	}
	return &c.view.Messages[c.pending]
}
