package sessions

import (
	"context"

	"github.com/atlasdocs/atlaschat/models"
)

// RunStream drives one chat turn and produces the ordered event sequence
//
//	text* -> citations -> title? -> done|error
//
// The returned channel is closed after the terminal event. Cancellation is
// the consumer walking away: an abandoned ctx stops emission, but
// persistence of whatever the upstream produced proceeds regardless.
func (s *ChatSession) RunStream(ctx context.Context, req models.Chat_Request) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent)

	go func() {
		defer close(events)

		emit := func(ev models.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		// Persist the user's message first. Best-effort: the user still
		// gets their answer if the store is down.
		if err := s.Store.SaveMessage(s.ConversationID, s.UserID, "user", req.Message, nil); err != nil {
			s.Logger.Printf("Error saving user message: %v", err)
		}

		unitChan, errChan := s.Model.Stream_Chat_Request(req.History, req.Message)

		var answer string
		collector := newCitationCollector()
		listening := true

		// Streaming stage: relay deltas as they arrive, collect grounding
		// references. References repeat and are incomplete mid-stream, so
		// they are only consolidated once the upstream is exhausted.
		for unitChan != nil || errChan != nil {
			select {
			case unit, ok := <-unitChan:
				if !ok {
					unitChan = nil
					continue
				}
				if unit.Text != "" {
					answer += unit.Text
					if listening && !emit(models.TextEvent(unit.Text)) {
						listening = false
					}
				}
				collector.Add(unit.Grounding)

			case err, ok := <-errChan:
				if !ok {
					errChan = nil
					continue
				}
				if err != nil {
					// Partial text already delivered stays visible; the
					// client reconciles it with the error.
					s.Logger.Printf("Upstream stream error: %v", err)
					if listening {
						emit(models.ErrorEvent(err.Error()))
					}
					return
				}
			}
		}

		// Finalize: resolve and emit the consolidated citation list,
		// persist the finished message, then the first-turn title.
		citations := collector.Finalize(ctx, s.Resolver)

		if answer != "" {
			if err := s.Store.SaveMessage(s.ConversationID, s.UserID, "assistant", answer, citations); err != nil {
				s.Logger.Printf("Error saving assistant message: %v", err)
			}
		}

		if len(citations) > 0 && listening {
			if !emit(models.CitationsEvent(citations)) {
				listening = false
			}
		}

		if len(req.History) == 0 && answer != "" {
			if title := s.generateTitle(ctx, req.Message, answer); title != "" && listening {
				if !emit(models.TitleEvent(title)) {
					listening = false
				}
			}
		}

		if listening {
			emit(models.DoneEvent())
		}
	}()

	return events
}

// generateTitle asks the model for a conversation title and persists it.
// Never fails the turn: any error leaves the title unset and is only logged.
func (s *ChatSession) generateTitle(ctx context.Context, question, answer string) string {
	title, err := s.Model.Generate_Title(ctx, question, answer)
	if err != nil {
		s.Logger.Printf("Title generation failed: %v", err)
		return ""
	}

	if err := s.Store.UpdateConversationTitle(s.ConversationID, title); err != nil {
		s.Logger.Printf("Error saving conversation title: %v", err)
	}

	return title
}

// RunStreamWriter forwards the turn's events through a transport writer,
// flushing after every event so deltas reach the client immediately.
func (s *ChatSession) RunStreamWriter(ctx context.Context, req models.Chat_Request, writer StreamWriter) error {
	for ev := range s.RunStream(ctx, req) {
		if err := writer.WriteEvent(ev); err != nil {
			s.Logger.Printf("Error writing to stream: %v", err)
			return err
		}
		writer.Flush()
	}
	return nil
}

// citationCollector assigns dense 1-based ids to grounding references in
// first-seen order. Repeated titles across units collapse to the first id;
// the title is the resolver's only key, so duplicates cannot resolve
// differently.
type citationCollector struct {
	seen  map[string]int
	order []models.GroundingReference
}

func newCitationCollector() *citationCollector {
	return &citationCollector{seen: make(map[string]int)}
}

func (c *citationCollector) Add(refs []models.GroundingReference) {
	for _, ref := range refs {
		if ref.Title == "" {
			continue
		}
		if _, ok := c.seen[ref.Title]; ok {
			continue
		}
		c.seen[ref.Title] = len(c.order) + 1
		c.order = append(c.order, ref)
	}
}

// Finalize resolves each collected reference against one mapping snapshot.
// An unresolved title falls back to the upstream's internal URI, if any.
func (c *citationCollector) Finalize(ctx context.Context, resolver CitationResolver) []models.Citation {
	if len(c.order) == 0 {
		return nil
	}

	citations := make([]models.Citation, 0, len(c.order))
	for i, ref := range c.order {
		uri := ref.URI
		if resolver != nil {
			if resolved, ok := resolver.Resolve(ctx, ref.Title); ok {
				uri = resolved
			}
		}
		citations = append(citations, models.Citation{
			ID:          i + 1,
			SourceTitle: ref.Title,
			SourceURI:   uri,
			Text:        ref.Text,
		})
	}
	return citations
}
