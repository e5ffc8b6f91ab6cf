package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/atlasdocs/atlaschat/models"
)

// Decoder reassembles stream events from a byte stream that may be chunked
// at arbitrary boundaries. Feed it raw reads; it returns every event whose
// frame completed and holds back the trailing partial frame for the next
// call.
type Decoder struct {
	buf    bytes.Buffer
	Logger *log.Logger
}

func NewDecoder() *Decoder {
	return &Decoder{
		Logger: log.New(os.Stdout, "[DECODE] ", log.LstdFlags),
	}
}

// Feed appends chunk to the internal buffer and returns all complete events.
// A non-empty segment that fails to parse is dropped with a logged warning
// rather than terminating the stream; arbitrary chunking can never produce
// one because incomplete frames stay buffered, so a bad segment means the
// producer wrote garbage, not that we mis-split.
func (d *Decoder) Feed(chunk []byte) []models.StreamEvent {
	d.buf.Write(chunk)

	var events []models.StreamEvent
	for {
		raw := d.buf.Bytes()
		idx := bytes.Index(raw, []byte(frameDelimiter))
		if idx < 0 {
			return events
		}

		segment := string(raw[:idx])
		d.buf.Next(idx + len(frameDelimiter))

		if strings.TrimSpace(segment) == "" {
			continue
		}

		ev, err := parseSegment(segment)
		if err != nil {
			d.Logger.Printf("Warning: dropping unparseable segment: %v", err)
			continue
		}
		events = append(events, ev)
	}
}

// Buffered returns the number of bytes held back as a partial frame.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

func parseSegment(segment string) (models.StreamEvent, error) {
	lines := strings.SplitN(segment, "\n", 2)
	if len(lines) != 2 {
		return models.StreamEvent{}, fmt.Errorf("segment has no payload line: %q", segment)
	}

	tag, ok := strings.CutPrefix(lines[0], "event: ")
	if !ok {
		return models.StreamEvent{}, fmt.Errorf("segment missing event tag: %q", lines[0])
	}
	data, ok := strings.CutPrefix(lines[1], "data: ")
	if !ok {
		return models.StreamEvent{}, fmt.Errorf("segment missing data line: %q", lines[1])
	}

	switch models.EventType(tag) {
	case models.EventText:
		var p models.TextDelta
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return models.StreamEvent{}, fmt.Errorf("bad text payload: %w", err)
		}
		return models.TextEvent(p.Text), nil

	case models.EventCitations:
		var p citationsPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return models.StreamEvent{}, fmt.Errorf("bad citations payload: %w", err)
		}
		if p.Citations == nil {
			p.Citations = []models.Citation{}
		}
		return models.CitationsEvent(p.Citations), nil

	case models.EventTitle:
		var p models.TitleUpdate
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return models.StreamEvent{}, fmt.Errorf("bad title payload: %w", err)
		}
		return models.TitleEvent(p.Title), nil

	case models.EventError:
		var p errorPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return models.StreamEvent{}, fmt.Errorf("bad error payload: %w", err)
		}
		return models.ErrorEvent(p.Error), nil

	case models.EventDone:
		if !json.Valid([]byte(data)) {
			return models.StreamEvent{}, fmt.Errorf("bad done payload: %q", data)
		}
		return models.DoneEvent(), nil

	default:
		return models.StreamEvent{}, fmt.Errorf("unknown event tag: %q", tag)
	}
}
