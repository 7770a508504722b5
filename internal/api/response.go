package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/piper/internal/repo"
)

// ErrorCode — машиночитаемый код ошибки API. Каждому коду соответствует
// один HTTP статус.
type ErrorCode string

const (
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInvalidPipeline ErrorCode = "INVALID_PIPELINE"
	ErrCodeUnavailable     ErrorCode = "UNAVAILABLE"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

var codeStatus = map[ErrorCode]int{
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeNotFound:        http.StatusNotFound,
	ErrCodeInvalidPipeline: http.StatusUnprocessableEntity,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
	ErrCodeInternal:        http.StatusInternalServerError,
}

// Status возвращает HTTP статус кода. Неизвестный код — 500.
func (c ErrorCode) Status() int {
	if s, ok := codeStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Конверты ответов:
//
//	{"data": ...}
//	{"data": [...], "total": N}
//	{"error": {"code": "...", "message": "..."}}
type (
	DataResponse struct {
		Data any `json:"data"`
	}

	ListResponse struct {
		Data  any `json:"data"`
		Total int `json:"total,omitempty"`
	}

	ErrorResponse struct {
		Error ErrorDetail `json:"error"`
	}

	ErrorDetail struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	}
)

// JSON пишет v с заданным статусом.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Success пишет 200 с {"data": data}.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// List пишет 200 со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error пишет ошибку; статус определяется кодом.
func Error(w http.ResponseWriter, code ErrorCode, message string) {
	JSON(w, code.Status(), ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, ErrCodeBadRequest, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, ErrCodeNotFound, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Error(w, ErrCodeUnauthorized, message)
}

// InvalidPipeline — исходный текст не разобран или pipeline не собран (422).
func InvalidPipeline(w http.ResponseWriter, message string) {
	Error(w, ErrCodeInvalidPipeline, message)
}

// Unavailable — запрос отменён или агент останавливается (503).
func Unavailable(w http.ResponseWriter, message string) {
	Error(w, ErrCodeUnavailable, message)
}

// InternalError логирует err и отвечает 500 без деталей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, ErrCodeInternal, "internal server error")
}

// HandleRepoError пишет ответ для ошибки хранилища истории.
// Возвращает false, если err == nil и обработка продолжается.
func HandleRepoError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, repo.ErrNotFound):
		NotFound(w, notFoundMsg)
	default:
		InternalError(w, logger, err)
	}
	return true
}
