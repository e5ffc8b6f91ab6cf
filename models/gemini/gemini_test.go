package gemini

import (
	"errors"
	"testing"

	"github.com/atlasdocs/atlaschat/models"
)

func TestCreateChatRequest_MapsRolesAndAppendsMessage(t *testing.T) {
	model := &Gemini_Model{Model: "gemini-2.5-flash"}
	history := []models.ChatTurn{
		{Role: "user", Text: "first question"},
		{Role: "assistant", Text: "first answer"},
		{Role: "user", Text: "   "}, // blank, dropped
	}

	body, err := model.create_chat_request(history, "second question")
	if err != nil {
		t.Fatalf("create_chat_request failed: %v", err)
	}

	contents := *body.Contents
	if len(contents) != 3 {
		t.Fatalf("Expected 3 contents (blank turn dropped), got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Errorf("Expected roles user,model, got %s,%s", contents[0].Role, contents[1].Role)
	}
	last := contents[len(contents)-1]
	if last.Role != "user" || last.Parts[0].Text != "second question" {
		t.Errorf("Expected new message appended last, got %+v", last)
	}
}

func TestCreateChatRequest_AttachesFileSearchTool(t *testing.T) {
	model := &Gemini_Model{FileSearchStore: "fileSearchStores/atlas-store"}

	body, err := model.create_chat_request(nil, "question")
	if err != nil {
		t.Fatalf("create_chat_request failed: %v", err)
	}

	if body.Tools == nil || len(*body.Tools) != 1 {
		t.Fatal("Expected one tool attached")
	}
	fs := (*body.Tools)[0].FileSearch
	if fs == nil || len(fs.FileSearchStoreNames) != 1 || fs.FileSearchStoreNames[0] != "fileSearchStores/atlas-store" {
		t.Errorf("Expected file search store wired into tool, got %+v", fs)
	}
}

func TestCreateChatRequest_NoToolWithoutStore(t *testing.T) {
	model := &Gemini_Model{}

	body, err := model.create_chat_request(nil, "question")
	if err != nil {
		t.Fatalf("create_chat_request failed: %v", err)
	}
	if body.Tools != nil {
		t.Errorf("Expected no tools without a store handle, got %+v", body.Tools)
	}
}

func TestCreateChatRequest_SystemInstruction(t *testing.T) {
	model := &Gemini_Model{SystemPrompt: "Cite your sources."}

	body, err := model.create_chat_request(nil, "question")
	if err != nil {
		t.Fatalf("create_chat_request failed: %v", err)
	}
	if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "Cite your sources." {
		t.Errorf("Expected system instruction set, got %+v", body.SystemInstruction)
	}
}

func TestResponseToUnit_ConcatenatesTextAndCollectsGrounding(t *testing.T) {
	text1 := "Hel"
	text2 := "lo"
	response := Gemini_response{
		Candidates: []Candidate{{
			Content: Content{Parts: []Part{{Text: &text1}, {Text: &text2}}},
			GroundingMetadata: &GroundingMetadata{
				GroundingChunks: []GroundingChunk{
					{RetrievedContext: &RetrievedContext{Title: "Doc.pdf", URI: "internal://1", Text: "chunk"}},
					{RetrievedContext: &RetrievedContext{URI: "internal://2"}}, // no title, skipped
					{}, // no retrieved context, skipped
				},
			},
		}},
	}

	unit := response_to_unit(response)
	if unit.Text != "Hello" {
		t.Errorf("Expected concatenated text 'Hello', got %q", unit.Text)
	}
	if len(unit.Grounding) != 1 {
		t.Fatalf("Expected 1 grounding reference, got %d", len(unit.Grounding))
	}
	if unit.Grounding[0].Title != "Doc.pdf" || unit.Grounding[0].Text != "chunk" {
		t.Errorf("Unexpected grounding reference: %+v", unit.Grounding[0])
	}
}

func TestConvertStream_DeliversErrorAfterResponseChannelCloses(t *testing.T) {
	// The request goroutine buffers its terminal error and closes both
	// channels; the select between the closed response channel and the
	// buffered error is racy, so a single pass can miss the loss. Repeat
	// enough times that the old drop-on-close behavior cannot hide.
	for i := 0; i < 500; i++ {
		resChan := make(chan Gemini_response)
		errChan := make(chan error, 1)
		errChan <- errors.New("unexpected status code: 500")
		close(errChan)
		close(resChan)

		unitChan, outErrChan := convertStream(resChan, errChan)

		for range unitChan {
		}
		if err := <-outErrChan; err == nil {
			t.Fatalf("Run %d: upstream error lost, stream ended as if successful", i)
		}
	}
}

func TestConvertStream_ErrorAfterUnits(t *testing.T) {
	resChan := make(chan Gemini_response, 1)
	text := "partial"
	resChan <- Gemini_response{Candidates: []Candidate{{Content: Content{Parts: []Part{{Text: &text}}}}}}
	close(resChan)

	errChan := make(chan error, 1)
	errChan <- errors.New("connection reset")
	close(errChan)

	unitChan, outErrChan := convertStream(resChan, errChan)

	var units int
	for range unitChan {
		units++
	}
	if err := <-outErrChan; err == nil {
		t.Errorf("Expected terminal error after %d unit(s), got clean end", units)
	}
}

func TestConvertStream_CleanEnd(t *testing.T) {
	resChan := make(chan Gemini_response)
	errChan := make(chan error, 1)
	close(resChan)
	close(errChan)

	unitChan, outErrChan := convertStream(resChan, errChan)
	for range unitChan {
	}
	if err := <-outErrChan; err != nil {
		t.Errorf("Expected no error on clean stream end, got %v", err)
	}
}

func TestStreamChatRequest_RejectsEmptyMessage(t *testing.T) {
	model := &Gemini_Model{}
	unitChan, errChan := model.Stream_Chat_Request(nil, "   ")

	if _, ok := <-unitChan; ok {
		t.Error("Expected no units for empty message")
	}
	if err := <-errChan; err == nil {
		t.Error("Expected error for empty message")
	}
}
