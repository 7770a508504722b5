package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/piper/internal/telemetry"
)

type Middleware func(http.Handler) http.Handler

// Chain(a, b)(h) == a(b(h)): первый middleware внешний.
func Chain(middlewares ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// Observe пишет строку access log и увеличивает
// piper_agent_http_requests_total. Логгер запроса с method и route
// доступен обработчикам через telemetry.FromContext.
//
// Метрика размечается шаблоном маршрута (r.Pattern), а не путём:
// иначе каждый run id давал бы отдельную серию.
func Observe(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}
			reqLogger := logger.With("method", r.Method, "route", route)

			sw := &statusWriter{ResponseWriter: w}
			started := time.Now()
			next.ServeHTTP(sw, r.WithContext(telemetry.WithLogger(r.Context(), reqLogger)))

			status := sw.Status()
			telemetry.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()

			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			reqLogger.Log(r.Context(), level, "http request",
				"path", r.URL.Path,
				"status", status,
				"bytes", sw.written,
				"elapsed", time.Since(started),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// Recovery превращает панику обработчика в 500. Если заголовки уже
// отправлены, ответ просто обрывается.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw, ok := w.(*statusWriter)
			if !ok {
				sw = &statusWriter{ResponseWriter: w}
			}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("handler panic", "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
				if !sw.wroteHeader {
					InternalError(w, logger, fmt.Errorf("panic: %v", v))
				}
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

// Auth требует "Authorization: Bearer <key>". С пустым key запросы
// пропускаются без проверки.
func Auth(key string) Middleware {
	if key == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	want := []byte(key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, _ := strings.Cut(r.Header.Get("Authorization"), " ")
			if !strings.EqualFold(scheme, "Bearer") || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="piper"`)
				Unauthorized(w, "missing or invalid auth key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusWriter запоминает статус и размер ответа.
type statusWriter struct {
	http.ResponseWriter
	status      int
	written     int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += n
	return n, err
}

// Status — статус ответа; 200, если обработчик ничего не записал.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
