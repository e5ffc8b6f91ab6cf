package models

// EventType tags a StreamEvent variant.
type EventType string

const (
	EventText      EventType = "text"
	EventCitations EventType = "citations"
	EventTitle     EventType = "title"
	EventError     EventType = "error"
	EventDone      EventType = "done"
)

// Citation links a span of the assistant's answer back to a source document.
// IDs are 1-based and dense within one assistant message, assigned in
// first-seen order.
type Citation struct {
	ID          int    `json:"id"`
	SourceTitle string `json:"sourceTitle"`
	SourceURI   string `json:"sourceUri,omitempty"`
	Text        string `json:"text,omitempty"`
}

type TextDelta struct {
	Text string `json:"text"`
}

type TitleUpdate struct {
	Title string `json:"title"`
}

type StreamError struct {
	Message string `json:"message"`
}

// StreamEvent is the closed set of events a chat turn can emit. Exactly one
// of the payload fields is set, matching Type. Construct values through the
// helpers below so encode/decode sites can match exhaustively on Type.
type StreamEvent struct {
	Type      EventType    `json:"-"`
	Text      *TextDelta   `json:"text,omitempty"`
	Citations []Citation   `json:"citations,omitempty"`
	Title     *TitleUpdate `json:"title,omitempty"`
	Error     *StreamError `json:"error,omitempty"`
}

func TextEvent(delta string) StreamEvent {
	return StreamEvent{Type: EventText, Text: &TextDelta{Text: delta}}
}

func CitationsEvent(citations []Citation) StreamEvent {
	return StreamEvent{Type: EventCitations, Citations: citations}
}

func TitleEvent(title string) StreamEvent {
	return StreamEvent{Type: EventTitle, Title: &TitleUpdate{Title: title}}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Error: &StreamError{Message: message}}
}

func DoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone}
}

// Terminal reports whether no further events may follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}
