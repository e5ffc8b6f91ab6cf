package gemini

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/atlasdocs/atlaschat/models"
)

func init() {
	// Load .env file if it exists (not present in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// Gemini_Model talks to the hosted model with retrieval grounding against a
// file search store (the knowledge source handle).
type Gemini_Model struct {
	Model           string `json:"model"`
	FileSearchStore string `json:"file_search_store"`
	SystemPrompt    string `json:"system_prompt,omitempty"`
}

// Stream_Chat_Request submits the conversation plus the new message and
// streams back units as they arrive. Grounding metadata is unreliable
// mid-stream; callers should treat references as complete only at stream
// end.
func (g *Gemini_Model) Stream_Chat_Request(history []models.ChatTurn, message string) (<-chan models.UpstreamUnit, <-chan error) {
	if strings.TrimSpace(message) == "" {
		errChan := make(chan error, 1)
		unitChan := make(chan models.UpstreamUnit)
		errChan <- fmt.Errorf("message must not be empty")
		close(errChan)
		close(unitChan)
		return unitChan, errChan
	}

	modelToUse := g.Model
	if modelToUse == "" {
		modelToUse = "gemini-2.0-flash"
	}

	request_body, err := g.create_chat_request(history, message)
	if err != nil {
		errChan := make(chan error, 1)
		unitChan := make(chan models.UpstreamUnit)
		errChan <- fmt.Errorf("failed to create gemini stream request body: %w", err)
		close(errChan)
		close(unitChan)
		return unitChan, errChan
	}

	jsonBytes, err := json.Marshal(request_body)
	if err != nil {
		errChan := make(chan error, 1)
		unitChan := make(chan models.UpstreamUnit)
		errChan <- fmt.Errorf("failed to marshal stream request body: %w", err)
		close(errChan)
		close(unitChan)
		return unitChan, errChan
	}

	geminiRespChan, geminiErrChan := make_request_stream(string(jsonBytes), modelToUse)
	return convertStream(geminiRespChan, geminiErrChan)
}

func (g *Gemini_Model) create_chat_request(history []models.ChatTurn, message string) (Gemini_Request_Body, error) {
	contents := make([]Gemini_Content, 0, len(history)+1)
	for _, turn := range history {
		role := "user"
		if turn.Role == "assistant" || turn.Role == "model" {
			role = "model"
		}
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		contents = append(contents, Gemini_Content{
			Role:  role,
			Parts: []Request_Part{{Text: turn.Text}},
		})
	}
	contents = append(contents, Gemini_Content{
		Role:  "user",
		Parts: []Request_Part{{Text: message}},
	})

	body := Gemini_Request_Body{Contents: &contents}

	if g.FileSearchStore != "" {
		tools := []Gemini_Tools{{
			FileSearch: &FileSearch{
				FileSearchStoreNames: []string{g.FileSearchStore},
			},
		}}
		body.Tools = &tools
	}

	if g.SystemPrompt != "" {
		body.SystemInstruction = &SystemInstruction{
			Parts: []SystemPart{{Text: g.SystemPrompt}},
		}
	}

	return body, nil
}

// convertStream translates raw API responses into stream units, skipping
// units that carry neither text nor grounding rather than failing the
// stream.
func convertStream(geminiRespChan <-chan Gemini_response, geminiErrChan <-chan error) (<-chan models.UpstreamUnit, <-chan error) {
	unitChan := make(chan models.UpstreamUnit)
	finalErrChan := make(chan error, 1)

	go func() {
		defer close(unitChan)
		defer close(finalErrChan)

		// A closed response channel is not end-of-turn on its own: the
		// producer buffers a terminal error before closing both channels,
		// so the error side must be drained before returning.
		for geminiRespChan != nil || geminiErrChan != nil {
			select {
			case geminiResp, ok := <-geminiRespChan:
				if !ok {
					geminiRespChan = nil
					continue
				}
				unit := response_to_unit(geminiResp)
				if unit.Text == "" && len(unit.Grounding) == 0 {
					continue
				}
				unitChan <- unit

			case geminiErr, ok := <-geminiErrChan:
				if !ok {
					geminiErrChan = nil
					continue
				}
				if geminiErr != nil {
					finalErrChan <- geminiErr
					return
				}
			}
		}
	}()

	return unitChan, finalErrChan
}

func response_to_unit(response Gemini_response) models.UpstreamUnit {
	unit := models.UpstreamUnit{}
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Text != nil {
				unit.Text += *part.Text
			}
		}
		if candidate.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			rc := chunk.RetrievedContext
			if rc == nil || rc.Title == "" {
				continue
			}
			unit.Grounding = append(unit.Grounding, models.GroundingReference{
				Title: rc.Title,
				URI:   rc.URI,
				Text:  rc.Text,
			})
		}
	}
	return unit
}

func make_request_stream(request_body string, model string) (<-chan Gemini_response, <-chan error) {
	resChan := make(chan Gemini_response)
	errChan := make(chan error, 1)

	go func() {
		defer close(resChan)
		defer close(errChan)

		resp, err := http.Post(fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:streamGenerateContent?key=%s", model, os.Getenv("GEMINI_API_KEY")), "application/json", strings.NewReader(request_body))
		if err != nil {
			errChan <- fmt.Errorf("error making POST request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			errChan <- fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))
			return
		}

		decoder := json.NewDecoder(resp.Body)

		// The streaming endpoint returns a JSON array of response objects.
		t, err := decoder.Token()
		if err != nil {
			errChan <- fmt.Errorf("error reading opening bracket: %w", err)
			return
		}
		if delim, ok := t.(json.Delim); !ok || delim != '[' {
			remainingBody, _ := io.ReadAll(io.MultiReader(decoder.Buffered(), resp.Body))
			errChan <- fmt.Errorf("expected '[' at start of stream, got %T: %v. Body: %s", t, t, string(remainingBody))
			return
		}

		for decoder.More() {
			var response Gemini_response
			if err := decoder.Decode(&response); err != nil {
				errChan <- fmt.Errorf("error decoding JSON object in stream: %w", err)
				return
			}
			resChan <- response
		}

		t, err = decoder.Token()
		if err != nil && err != io.EOF {
			errChan <- fmt.Errorf("error reading closing bracket: %w", err)
			return
		}
		if err != io.EOF {
			if delim, ok := t.(json.Delim); !ok || delim != ']' {
				errChan <- fmt.Errorf("expected ']' at end of stream, got %T: %v", t, t)
				return
			}
		}
	}()

	return resChan, errChan
}
