// Package repo хранит историю запусков pipeline в PostgreSQL (pgx).
//
// Таблицы runs и task_runs создаются EnsureSchema. Recorder подключается
// к orchestrator.Interpreter и записывает run и выполнения задач по мере
// их завершения.
package repo
