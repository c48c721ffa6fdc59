package model

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/Ahmed-Ali-Salman/CoachAI/internal/log"
	"github.com/Ahmed-Ali-Salman/CoachAI/internal/prompt"
)

// Gemini implements Generator on the Gemini API.
//
// Image parts are forwarded as inline bytes; the SDK and the model handle
// decoding and resizing within the pixel budget carried on the part.
type Gemini struct {
	client      *genai.Client
	modelName   string
	temperature float32
	maxTokens   int
	logger      log.Logger
}

// NewGemini creates a Gemini generator. Fails with ErrProviderUnavailable
// when apiKey is empty, so callers never silently receive an unusable
// client.
func NewGemini(ctx context.Context, apiKey, modelName string, temperature float32, maxTokens int, logger log.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrProviderUnavailable
	}
	if logger == nil {
		logger = log.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Gemini{
		client:      client,
		modelName:   modelName,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}, nil
}

// Generate converts the assembled messages to Gemini contents and returns
// the model's text output.
func (g *Gemini) Generate(ctx context.Context, msgs []prompt.Message, opts ...GenerateOption) (string, error) {
	cfg := buildGenerateConfig(opts)

	temperature := g.temperature
	if cfg.temperature != nil {
		temperature = *cfg.temperature
	}
	maxTokens := g.maxTokens
	if cfg.maxTokens > 0 {
		maxTokens = cfg.maxTokens
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(temperature),
		MaxOutputTokens: int32(maxTokens), //nolint:gosec // validated range in config
	}

	var contents []*genai.Content
	for _, msg := range msgs {
		// Gemini takes the system turn as a config field, not a content.
		if msg.Role == prompt.RoleSystem {
			genCfg.SystemInstruction = genai.NewContentFromText(messageText(msg), genai.RoleUser)
			continue
		}
		parts, err := convertParts(msg.Parts)
		if err != nil {
			return "", err
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	}

	if len(contents) == 0 {
		return "", errors.New("no user content to generate from")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, genCfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		g.logger.Warn("model returned empty response", "model", g.modelName)
	}
	return text, nil
}

func convertParts(parts []prompt.Part) ([]*genai.Part, error) {
	out := make([]*genai.Part, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case prompt.PartText:
			out = append(out, genai.NewPartFromText(p.Text))
		case prompt.PartImage:
			out = append(out, genai.NewPartFromBytes(p.Data, p.MIMEType))
		default:
			return nil, fmt.Errorf("unsupported part kind %q", p.Kind)
		}
	}
	return out, nil
}

func messageText(msg prompt.Message) string {
	for _, p := range msg.Parts {
		if p.Kind == prompt.PartText {
			return p.Text
		}
	}
	return ""
}
