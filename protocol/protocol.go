package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/atlasdocs/atlaschat/models"
)

// Wire framing for server-to-client stream events. One frame per event:
//
//	event: <tag>\n
//	data: <one-line JSON payload>\n
//	\n
//
// json.Marshal never emits a raw newline (newlines inside strings are
// escaped), so the data payload is always a single line and a reader that
// buffers at blank-line boundaries never sees a torn payload.

const frameDelimiter = "\n\n"

type citationsPayload struct {
	Citations []models.Citation `json:"citations"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Encode renders one event as a complete frame.
func Encode(ev models.StreamEvent) ([]byte, error) {
	var payload interface{}
	switch ev.Type {
	case models.EventText:
		if ev.Text == nil {
			return nil, fmt.Errorf("text event without payload")
		}
		payload = ev.Text
	case models.EventCitations:
		// Citations may legitimately be empty but must encode as an array.
		cs := ev.Citations
		if cs == nil {
			cs = []models.Citation{}
		}
		payload = citationsPayload{Citations: cs}
	case models.EventTitle:
		if ev.Title == nil {
			return nil, fmt.Errorf("title event without payload")
		}
		payload = ev.Title
	case models.EventError:
		if ev.Error == nil {
			return nil, fmt.Errorf("error event without payload")
		}
		payload = errorPayload{Error: ev.Error.Message}
	case models.EventDone:
		payload = struct{}{}
	default:
		return nil, fmt.Errorf("unknown event type: %q", ev.Type)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", ev.Type, err)
	}

	return []byte(fmt.Sprintf("event: %s\ndata: %s%s", ev.Type, data, frameDelimiter)), nil
}
