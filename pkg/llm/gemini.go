package llm

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// Gemini streams through the Gemini API; the client is created on first use
// Gemini 通过 Gemini API 流式生成，客户端在首次使用时创建
type Gemini struct {
	apiKey string
	model  string

	once   sync.Once
	client *genai.Client
	err    error
}

func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{apiKey: apiKey, model: model}
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) init(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		g.client, g.err = genai.NewClient(context.WithoutCancel(ctx), &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if g.err != nil {
			g.err = errors.Wrap(g.err, "failed to create Gemini client")
		}
	})
	return g.client, g.err
}

func (g *Gemini) Stream(ctx context.Context, input string, emit EmitFunc) error {
	client, err := g.init(ctx)
	if err != nil {
		return err
	}

	for resp, err := range client.Models.GenerateContentStream(ctx, g.model, genai.Text(input), nil) {
		if err != nil {
			return errors.Wrap(err, "Gemini stream failed")
		}
		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if err := emit(part.Text); err != nil {
				return err
			}
		}
	}
	return nil
}
