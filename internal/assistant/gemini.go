package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/ehu-labs/debate-coach/internal/domain"
	"google.golang.org/genai"
)

// GeminiBackend implements Backend using Google's Gemini API.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed assistant.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiBackend{client: client, model: model}, nil
}

// Reply sends the conversation to Gemini and assembles the streamed answer.
func (g *GeminiBackend) Reply(ctx context.Context, systemPrompt string, turns []domain.Turn) (string, error) {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		var role genai.Role = genai.RoleUser
		if turn.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}

	var reply strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
		if err != nil {
			return "", fmt.Errorf("gemini stream: %w", err)
		}
		reply.WriteString(resp.Text())
	}

	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty reply")
	}
	return text, nil
}
