package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/atlasdocs/atlaschat/models"
	"github.com/atlasdocs/atlaschat/stores"
)

// fakeModel replays a scripted sequence of upstream units, optionally
// failing at the end.
type fakeModel struct {
	units      []models.UpstreamUnit
	streamErr  error
	title      string
	titleErr   error
	titleCalls int
}

func (m *fakeModel) Stream_Chat_Request(history []models.ChatTurn, message string) (<-chan models.UpstreamUnit, <-chan error) {
	unitChan := make(chan models.UpstreamUnit)
	errChan := make(chan error, 1)
	go func() {
		defer close(unitChan)
		defer close(errChan)
		for _, unit := range m.units {
			unitChan <- unit
		}
		if m.streamErr != nil {
			errChan <- m.streamErr
		}
	}()
	return unitChan, errChan
}

func (m *fakeModel) Generate_Title(ctx context.Context, question, answer string) (string, error) {
	m.titleCalls++
	return m.title, m.titleErr
}

// fakeResolver resolves from a fixed title→URL table.
type fakeResolver struct {
	urls map[string]string
}

func (r *fakeResolver) Resolve(ctx context.Context, title string) (string, bool) {
	url, ok := r.urls[title]
	return url, ok
}

// memoryStore records calls without a database behind it.
type memoryStore struct {
	saved  []stores.Message
	titles map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{titles: make(map[string]string)}
}

func (s *memoryStore) SaveMessage(conversationID, userID, role, content string, citations []models.Citation) error {
	msg := stores.Message{
		ConversationID: conversationID,
		Sequence:       len(s.saved) + 1,
		Role:           role,
		Content:        content,
	}
	if len(citations) > 0 {
		msg.CitationsJSON = mustJSON(citations)
	}
	s.saved = append(s.saved, msg)
	return nil
}

func (s *memoryStore) FetchHistory(conversationID string, limit int) ([]stores.Message, error) {
	return s.saved, nil
}

func (s *memoryStore) CreateConversation(convoID, userID string) error { return nil }

func (s *memoryStore) GetConversation(convoID string) (*stores.Conversation, error) {
	return &stores.Conversation{ConversationID: convoID}, nil
}

func (s *memoryStore) UpdateConversationTitle(convoID, title string) error {
	s.titles[convoID] = title
	return nil
}

func (s *memoryStore) ListConversationsForUser(userID string) ([]stores.ConversationInfo, error) {
	return nil, nil
}

func (s *memoryStore) DeleteConversation(convoID string) error { return nil }
func (s *memoryStore) Connect() error                          { return nil }
func (s *memoryStore) Close() error                            { return nil }
func (s *memoryStore) Ping() error                             { return nil }

func mustJSON(citations []models.Citation) string {
	data, err := json.Marshal(citations)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func collectEvents(t *testing.T, session *ChatSession, req models.Chat_Request) []models.StreamEvent {
	t.Helper()
	var events []models.StreamEvent
	for ev := range session.RunStream(context.Background(), req) {
		events = append(events, ev)
	}
	return events
}

func TestRunStream_EndToEnd(t *testing.T) {
	model := &fakeModel{
		units: []models.UpstreamUnit{
			{Text: "Hel"},
			{Text: "lo", Grounding: []models.GroundingReference{{Title: "Doc.pdf"}}},
		},
		title: "Greeting",
	}
	resolver := &fakeResolver{urls: map[string]string{"Doc.pdf": "https://example.sharepoint.com/doc"}}
	store := newMemoryStore()
	session := NewChatSession("conv-1", "alice", model, resolver, store)

	events := collectEvents(t, session, models.Chat_Request{Message: "Hi"})

	expectedTypes := []models.EventType{
		models.EventText, models.EventText, models.EventCitations, models.EventTitle, models.EventDone,
	}
	if len(events) != len(expectedTypes) {
		t.Fatalf("Expected %d events, got %d: %+v", len(expectedTypes), len(events), events)
	}
	for i, want := range expectedTypes {
		if events[i].Type != want {
			t.Errorf("Event %d: expected %s, got %s", i, want, events[i].Type)
		}
	}

	if events[0].Text.Text != "Hel" || events[1].Text.Text != "lo" {
		t.Errorf("Text deltas wrong: %+v %+v", events[0].Text, events[1].Text)
	}

	citations := events[2].Citations
	if len(citations) != 1 {
		t.Fatalf("Expected 1 citation, got %d", len(citations))
	}
	if citations[0].ID != 1 || citations[0].SourceTitle != "Doc.pdf" || citations[0].SourceURI != "https://example.sharepoint.com/doc" {
		t.Errorf("Unexpected citation: %+v", citations[0])
	}

	// Both sides of the turn persisted, assistant with the full text
	if len(store.saved) != 2 {
		t.Fatalf("Expected 2 saved messages, got %d", len(store.saved))
	}
	if store.saved[0].Role != "user" || store.saved[0].Content != "Hi" {
		t.Errorf("Unexpected user message: %+v", store.saved[0])
	}
	if store.saved[1].Role != "assistant" || store.saved[1].Content != "Hello" {
		t.Errorf("Unexpected assistant message: %+v", store.saved[1])
	}

	if store.titles["conv-1"] != "Greeting" {
		t.Errorf("Expected title persisted, got %q", store.titles["conv-1"])
	}
}

func TestRunStream_ErrorAfterPartialText(t *testing.T) {
	model := &fakeModel{
		units:     []models.UpstreamUnit{{Text: "Partial"}},
		streamErr: errors.New("upstream unavailable"),
	}
	store := newMemoryStore()
	session := NewChatSession("conv-1", "alice", model, &fakeResolver{}, store)

	events := collectEvents(t, session, models.Chat_Request{Message: "Hi"})

	if len(events) != 2 {
		t.Fatalf("Expected text then error, got %d events: %+v", len(events), events)
	}
	if events[0].Type != models.EventText || events[0].Text.Text != "Partial" {
		t.Errorf("Expected partial text first, got %+v", events[0])
	}
	if events[1].Type != models.EventError {
		t.Errorf("Expected terminal error, got %s", events[1].Type)
	}

	// The failed answer is not persisted as assistant content
	for _, msg := range store.saved {
		if msg.Role == "assistant" {
			t.Errorf("Expected no assistant message persisted after upstream error, got %+v", msg)
		}
	}
}

func TestRunStream_DeduplicatesCitationsByTitle(t *testing.T) {
	model := &fakeModel{
		units: []models.UpstreamUnit{
			{Text: "a", Grounding: []models.GroundingReference{{Title: "One.pdf"}, {Title: "Two.pdf"}}},
			{Text: "b", Grounding: []models.GroundingReference{{Title: "One.pdf"}, {Title: "Three.pdf"}}},
			{Text: "c", Grounding: []models.GroundingReference{{Title: "Two.pdf"}}},
		},
	}
	session := NewChatSession("conv-1", "alice", model, &fakeResolver{}, newMemoryStore())

	events := collectEvents(t, session, models.Chat_Request{
		Message: "Hi",
		History: []models.ChatTurn{{Role: "user", Text: "earlier"}},
	})

	var citations []models.Citation
	for _, ev := range events {
		if ev.Type == models.EventCitations {
			citations = ev.Citations
		}
	}
	if len(citations) != 3 {
		t.Fatalf("Expected 3 deduplicated citations, got %d: %+v", len(citations), citations)
	}
	for i, wantTitle := range []string{"One.pdf", "Two.pdf", "Three.pdf"} {
		if citations[i].ID != i+1 {
			t.Errorf("Citation %d: expected dense id %d, got %d", i, i+1, citations[i].ID)
		}
		if citations[i].SourceTitle != wantTitle {
			t.Errorf("Citation %d: expected first-seen order title %s, got %s", i, wantTitle, citations[i].SourceTitle)
		}
	}
}

func TestRunStream_UnresolvedCitationKeepsUpstreamURI(t *testing.T) {
	model := &fakeModel{
		units: []models.UpstreamUnit{
			{Text: "x", Grounding: []models.GroundingReference{{Title: "Unknown.pdf", URI: "internal://chunk/7"}}},
		},
	}
	session := NewChatSession("conv-1", "alice", model, &fakeResolver{}, newMemoryStore())

	events := collectEvents(t, session, models.Chat_Request{
		Message: "Hi",
		History: []models.ChatTurn{{Role: "user", Text: "earlier"}},
	})

	var citations []models.Citation
	for _, ev := range events {
		if ev.Type == models.EventCitations {
			citations = ev.Citations
		}
	}
	if len(citations) != 1 {
		t.Fatalf("Expected 1 citation, got %d", len(citations))
	}
	if citations[0].SourceURI != "internal://chunk/7" {
		t.Errorf("Expected fallback to upstream URI, got %q", citations[0].SourceURI)
	}
}

func TestRunStream_NoCitationsEventWithoutGrounding(t *testing.T) {
	model := &fakeModel{units: []models.UpstreamUnit{{Text: "plain answer"}}}
	session := NewChatSession("conv-1", "alice", model, &fakeResolver{}, newMemoryStore())

	events := collectEvents(t, session, models.Chat_Request{
		Message: "Hi",
		History: []models.ChatTurn{{Role: "user", Text: "earlier"}},
	})

	for _, ev := range events {
		if ev.Type == models.EventCitations {
			t.Errorf("Expected no citations event, got %+v", ev)
		}
	}
	if events[len(events)-1].Type != models.EventDone {
		t.Errorf("Expected done terminal event, got %s", events[len(events)-1].Type)
	}
}

func TestRunStream_TitleOnlyOnFirstTurn(t *testing.T) {
	model := &fakeModel{units: []models.UpstreamUnit{{Text: "answer"}}, title: "T"}
	session := NewChatSession("conv-1", "alice", model, &fakeResolver{}, newMemoryStore())

	collectEvents(t, session, models.Chat_Request{
		Message: "Hi",
		History: []models.ChatTurn{{Role: "user", Text: "earlier"}, {Role: "assistant", Text: "reply"}},
	})

	if model.titleCalls != 0 {
		t.Errorf("Expected no title generation with prior history, got %d calls", model.titleCalls)
	}
}

func TestRunStream_TitleFailureDoesNotBreakTurn(t *testing.T) {
	model := &fakeModel{
		units:    []models.UpstreamUnit{{Text: "answer"}},
		titleErr: errors.New("quota exhausted"),
	}
	store := newMemoryStore()
	session := NewChatSession("conv-1", "alice", model, &fakeResolver{}, store)

	events := collectEvents(t, session, models.Chat_Request{Message: "Hi"})

	for _, ev := range events {
		if ev.Type == models.EventTitle {
			t.Errorf("Expected no title event on failure, got %+v", ev)
		}
	}
	if events[len(events)-1].Type != models.EventDone {
		t.Errorf("Expected turn to finish with done, got %s", events[len(events)-1].Type)
	}
	if _, ok := store.titles["conv-1"]; ok {
		t.Error("Expected no title persisted on generation failure")
	}
}
