package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// titlePromptLimit bounds how much of the question and answer is sent to the
// title call.
const titlePromptLimit = 200

// Generate_Title asks the model for a short conversation title from the
// first exchange. Inputs are truncated to bound cost; callers treat failure
// as non-fatal and leave the title unset.
func (g *Gemini_Model) Generate_Title(ctx context.Context, question, answer string) (string, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %w", err)
	}

	modelToUse := g.Model
	if modelToUse == "" {
		modelToUse = "gemini-2.0-flash"
	}

	prompt := fmt.Sprintf(
		"Generate a short title (at most 6 words, no quotes) for a conversation that starts like this.\n\nQuestion: %s\n\nAnswer: %s",
		truncate(question, titlePromptLimit),
		truncate(answer, titlePromptLimit),
	)

	result, err := client.Models.GenerateContent(ctx, modelToUse, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("no title in response")
	}

	var title string
	for _, part := range result.Candidates[0].Content.Parts {
		title += part.Text
	}
	title = strings.TrimSpace(strings.Trim(strings.TrimSpace(title), `"`))
	if title == "" {
		return "", fmt.Errorf("empty title in response")
	}

	return title, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
