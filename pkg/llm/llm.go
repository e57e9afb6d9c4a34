// Package llm streaming text generation providers
// Package llm 流式文本生成服务
package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Provider names accepted in requests and configuration
// 请求与配置中可用的生成服务名称
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

var (
	// ErrUnknownProvider 未知的生成服务
	ErrUnknownProvider = errors.New("unknown generation provider")
	// ErrMissingAPIKey 生成服务缺少 API Key
	ErrMissingAPIKey = errors.New("generation provider api key is not configured")
)

// EmitFunc receives one generated chunk; a non-nil error stops the stream
// EmitFunc 接收一个生成片段，返回错误时停止生成
type EmitFunc func(delta string) error

// Provider streams generated text for one input
// Provider 为一段输入流式生成文本
type Provider interface {
	Name() string
	Stream(ctx context.Context, input string, emit EmitFunc) error
}

// Config 生成服务配置
type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string
	// SegmentSize inputs longer than this are split before generation
	// SegmentSize 超过该长度的输入在生成前被切分
	SegmentSize int
	// MockDelay pause between mock chunks
	MockDelay  time.Duration
	HTTPClient *http.Client
}

// New returns the provider called name; openai without a key falls back to mock
// New 返回指定名称的生成服务，openai 未配置 key 时回退到 mock
func New(name string, c Config) (Provider, error) {
	switch name {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return NewMock(c.MockDelay), nil
		}
		return NewOpenAI(c.OpenAIAPIKey, c.OpenAIBaseURL, c.OpenAIModel, c.HTTPClient), nil
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return nil, errors.Wrap(ErrMissingAPIKey, ProviderGemini)
		}
		return NewGemini(c.GeminiAPIKey, c.GeminiModel), nil
	case ProviderMock:
		return NewMock(c.MockDelay), nil
	}
	return nil, errors.Wrap(ErrUnknownProvider, name)
}

// StreamSegments splits input and streams each segment through p in order
// StreamSegments 切分输入并按顺序逐段生成
func StreamSegments(ctx context.Context, p Provider, input string, size int, emit EmitFunc) (int, error) {
	segments := Segment(input, size)
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return len(segments), err
		}
		if err := p.Stream(ctx, seg, emit); err != nil {
			return len(segments), err
		}
	}
	return len(segments), nil
}
