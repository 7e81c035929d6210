package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/leadflow/internal/domain"
	genai "google.golang.org/genai"
)

// Gemini rephrases the scripted prompt with a Gemini model.
type Gemini struct {
	cli    *genai.Client
	model  string
	script Generator
}

// NewGemini creates a Gemini-backed generator. script supplies the text the
// model rephrases.
func NewGemini(ctx context.Context, apiKey, model string, script Generator) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{cli: cli, model: model, script: script}, nil
}

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, step domain.Step, answers domain.Answers) (string, error) {
	script, err := g.script.Generate(ctx, step, answers)
	if err != nil {
		return "", err
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: userMessage(script, answers)}}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: instruction(step)}}},
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return firstCandidateText(resp)
}

// Ping sends a minimal request to verify the API key and model.
func (g *Gemini) Ping(ctx context.Context) error {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: "ping"}}}}, nil)
	if err != nil {
		return fmt.Errorf("gemini health: %w", err)
	}
	_, err = firstCandidateText(resp)
	return err
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
