package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shaiso/piper/internal/agent"
	"github.com/shaiso/piper/internal/metapipeline"
	"github.com/shaiso/piper/internal/orchestrator"
)

// maxBodyBytes — предельный размер тела запроса с текстом pipeline.
const maxBodyBytes = 1 << 20

var startTime = time.Now()

// HealthResponse — ответ /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Info
}

// Health сообщает, что агент жив.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(startTime).Round(time.Second).String(),
		Info:   h.info,
	})
}

// RunPipeline выполняет pipeline и возвращает результат.
// POST /api/v1/pipelines/run
//
// Неудачный run — ответ 200 со статусом FAILED. Ошибки возвращаются,
// только если pipeline не удалось запустить.
func (h *Handler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var req agent.RunRequest
	if !decodeSource(w, r, &req, &req.Source) {
		return
	}

	ctx := orchestrator.WithTrigger(r.Context(), "http")
	resp, err := h.service.Run(ctx, req)
	switch {
	case err == nil:
		Success(w, resp)
	case errors.Is(err, agent.ErrInvalidPipeline), errors.Is(err, metapipeline.ErrStillMeta):
		InvalidPipeline(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		Unavailable(w, "request cancelled")
	default:
		InternalError(w, h.logger, err)
	}
}

// CheckRequest — запрос на проверку pipeline.
type CheckRequest struct {
	Source string `json:"source"`
}

// CheckPipeline проверяет pipeline без выполнения.
// POST /api/v1/pipelines/check
func (h *Handler) CheckPipeline(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if !decodeSource(w, r, &req, &req.Source) {
		return
	}

	Success(w, h.service.Check(req.Source))
}

// decodeSource читает JSON тело и проверяет, что текст pipeline не пуст.
func decodeSource(w http.ResponseWriter, r *http.Request, dst any, source *string) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		BadRequest(w, "invalid request body")
		return false
	}
	if *source == "" {
		BadRequest(w, "source is required")
		return false
	}
	return true
}
