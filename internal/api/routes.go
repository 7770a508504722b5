package api

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	public := Chain(Observe(h.logger), Recovery(h.logger))
	protected := Chain(public, Auth(h.authKey))

	mux.Handle("GET /healthz", public(http.HandlerFunc(h.Health)))

	// Pipelines
	mux.Handle("POST /api/v1/pipelines/run", protected(http.HandlerFunc(h.RunPipeline)))
	mux.Handle("POST /api/v1/pipelines/check", protected(http.HandlerFunc(h.CheckPipeline)))

	// Runs
	mux.Handle("GET /api/v1/runs", protected(http.HandlerFunc(h.ListRuns)))
	mux.Handle("GET /api/v1/runs/{id}", protected(http.HandlerFunc(h.GetRun)))
	mux.Handle("GET /api/v1/runs/{id}/tasks", protected(http.HandlerFunc(h.ListRunTasks)))
}

// Router возвращает http.Handler со всеми маршрутами и трассировкой запросов.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return otelhttp.NewHandler(mux, "piper-agent",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
