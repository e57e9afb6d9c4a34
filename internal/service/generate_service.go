package service

import (
	"context"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/haierkeys/notegpt-sync-service/internal/metrics"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"
	"github.com/haierkeys/notegpt-sync-service/pkg/llm"
	"github.com/haierkeys/notegpt-sync-service/pkg/logger"
	"github.com/haierkeys/notegpt-sync-service/pkg/workerpool"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// GenerateRequest /v1/generate 请求体
type GenerateRequest struct {
	Input string `json:"input" binding:"required"`
	LLM   string `json:"llm" binding:"omitempty,oneof=openai gemini mock"`
}

// GenerateResult 单次生成的统计
type GenerateResult struct {
	Provider string
	Segments int
	Chunks   int
	Duration time.Duration
}

// GenerateService AI generation proxy
// GenerateService AI 生成代理
type GenerateService interface {
	// Prepare validates the request and resolves its provider before any output is written
	// Prepare 在输出之前校验请求并确定生成服务
	Prepare(req *GenerateRequest) (llm.Provider, error)
	// Stream generates through the worker pool, calling emit once per chunk
	// Stream 经由协程池生成，每个片段调用一次 emit
	Stream(ctx context.Context, p llm.Provider, req *GenerateRequest, traceID string, emit llm.EmitFunc) (GenerateResult, error)
}

type generateService struct {
	llmConfig llm.Config
	config    GenerateServiceConfig
	pool      *workerpool.Pool
	logger    *zap.Logger
	factory   func(name string, c llm.Config) (llm.Provider, error)
}

// NewGenerateService 创建 GenerateService 实例
func NewGenerateService(llmConfig llm.Config, pool *workerpool.Pool, logger *zap.Logger, cfg *ServiceConfig) GenerateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &generateService{
		llmConfig: llmConfig,
		pool:      pool,
		logger:    logger,
		factory:   llm.New,
	}
	if cfg != nil {
		s.config = cfg.Generate
	}
	if s.config.DefaultProvider == "" {
		s.config.DefaultProvider = llm.ProviderOpenAI
	}
	if s.config.SegmentSize <= 0 {
		s.config.SegmentSize = llm.DefaultSegmentSize
	}
	return s
}

func (s *generateService) Prepare(req *GenerateRequest) (llm.Provider, error) {
	if s.config.MaxInput > 0 && utf8.RuneCountInString(req.Input) > s.config.MaxInput {
		return nil, code.ErrorInputTooLong.WithDetails("input exceeds " + strconv.Itoa(s.config.MaxInput) + " characters")
	}
	name := req.LLM
	if name == "" {
		name = s.config.DefaultProvider
	}
	p, err := s.factory(name, s.llmConfig)
	if err != nil {
		if errors.Is(err, llm.ErrUnknownProvider) {
			return nil, code.ErrorUnknownProvider.WithDetails(name)
		}
		return nil, code.ErrorGenerateFailed.WithDetails(err.Error())
	}
	return p, nil
}

func (s *generateService) Stream(ctx context.Context, p llm.Provider, req *GenerateRequest, traceID string, emit llm.EmitFunc) (GenerateResult, error) {
	start := time.Now()
	res := GenerateResult{Provider: p.Name()}

	s.logger.Info("generate.request",
		zap.String(logger.FieldTraceID, traceID),
		zap.String(logger.FieldProvider, res.Provider),
		zap.Int("inputLength", utf8.RuneCountInString(req.Input)))

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	// emit must not run once Stream has returned: the caller's writer is gone by then
	var mu sync.Mutex
	closed := false
	guarded := func(delta string) error {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return context.Canceled
		}
		res.Chunks++
		return emit(delta)
	}

	var segments int
	err := s.pool.Submit(ctx, func(ctx context.Context) error {
		n, err := llm.StreamSegments(ctx, p, req.Input, s.config.SegmentSize, guarded)
		segments = n
		return err
	})

	mu.Lock()
	closed = true
	res.Segments = segments
	mu.Unlock()
	res.Duration = time.Since(start)

	if err != nil {
		metrics.GenerateRequests.WithLabelValues(res.Provider, "error").Inc()
		s.logger.Warn("generate.error",
			zap.String(logger.FieldTraceID, traceID),
			zap.String(logger.FieldProvider, res.Provider),
			zap.Int(logger.FieldChunks, res.Chunks),
			zap.Duration(logger.FieldDuration, res.Duration),
			zap.Error(err))
		return res, err
	}

	metrics.GenerateRequests.WithLabelValues(res.Provider, "ok").Inc()
	s.logger.Info("generate.complete",
		zap.String(logger.FieldTraceID, traceID),
		zap.String(logger.FieldProvider, res.Provider),
		zap.Int("segments", res.Segments),
		zap.Int(logger.FieldChunks, res.Chunks),
		zap.Duration(logger.FieldDuration, res.Duration))
	return res, nil
}
