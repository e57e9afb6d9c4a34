package api_router

import (
	"context"
	"net/http"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	"github.com/haierkeys/notegpt-sync-service/internal/middleware"
	"github.com/haierkeys/notegpt-sync-service/internal/service"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"
	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// sseRetry reconnect delay advertised to EventSource clients
const sseRetry = "retry: 1000\n\n"

// GenerateHandler AI 生成代理处理器
type GenerateHandler struct {
	*Handler
}

// NewGenerateHandler 创建 GenerateHandler 实例
func NewGenerateHandler(a *app.App) *GenerateHandler {
	return &GenerateHandler{Handler: NewHandler(a)}
}

type sseDelta struct {
	Delta string `json:"delta"`
}

type sseError struct {
	Error string `json:"error"`
}

// writeEvent writes one "data:" event and flushes it
func writeEvent(c *gin.Context, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)
	if _, err := c.Writer.Write(buf); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// Generate streams generated text as server-sent events
// Generate 以 SSE 流式返回生成内容
// @Summary AI 生成代理
// @Tags 生成
// @Security APIKey
// @Accept json
// @Produce text/event-stream
// @Param params body service.GenerateRequest true "生成参数"
// @Router /v1/generate [post]
func (h *GenerateHandler) Generate(c *gin.Context) {
	response := pkgapp.NewResponse(c)
	params := &service.GenerateRequest{}

	valid, errs := pkgapp.BindAndValid(c, params)
	if !valid {
		h.App.Logger().Warn("GenerateHandler.Generate.BindAndValid err", zap.Error(errs))
		response.ToResponse(code.ErrorInvalidParams.WithDetails(errs.ErrorsToString()).WithData(errs.MapsToString()))
		return
	}

	// provider errors surface as a regular JSON error before the stream starts
	provider, err := h.App.GenerateService.Prepare(params)
	if err != nil {
		var codeErr *code.Code
		if errors.As(err, &codeErr) {
			response.ToResponse(codeErr)
		} else {
			response.ToResponse(code.ErrorGenerateFailed.WithDetails(err.Error()))
		}
		return
	}

	ctx := c.Request.Context()
	traceID := middleware.GetTraceID(ctx)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if _, err := c.Writer.WriteString(sseRetry); err != nil {
		return
	}
	c.Writer.Flush()

	_, err = h.App.GenerateService.Stream(ctx, provider, params, traceID, func(delta string) error {
		return writeEvent(c, sseDelta{Delta: delta})
	})
	if err == nil || errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	if werr := writeEvent(c, sseError{Error: err.Error()}); werr != nil {
		h.logError(ctx, "GenerateHandler.Generate.writeError", werr)
	}
}
