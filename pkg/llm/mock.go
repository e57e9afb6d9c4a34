package llm

import (
	"context"
	"strings"
	"time"
)

const mockFallbackText = "Hello from mock OpenAI!"

// Mock echoes the input word by word
// Mock 逐词回显输入
type Mock struct {
	delay time.Duration
}

func NewMock(delay time.Duration) *Mock {
	return &Mock{delay: delay}
}

func (m *Mock) Name() string { return ProviderMock }

func (m *Mock) Stream(ctx context.Context, input string, emit EmitFunc) error {
	if input == "" {
		input = mockFallbackText
	}
	for _, w := range strings.Split(input, " ") {
		if m.delay > 0 {
			timer := time.NewTimer(m.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(w + " "); err != nil {
			return err
		}
	}
	return nil
}
