// Package api содержит HTTP API piper-agent.
//
// Структура:
//   - handler.go          — Handler с DI (service, история run, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (auth, logging, metrics, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects для истории run
//   - pipeline_handler.go — обработчики для /pipelines
//   - run_handler.go      — обработчики для /runs
//
// Все маршруты /api/v1 требуют заголовок Authorization: Bearer <key>,
// если агенту задан ключ. /healthz доступен без ключа.
package api
