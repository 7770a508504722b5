// Package orchestrator выполняет скомпилированные pipeline.
//
// Interpreter обходит flow pipeline:
//   - Sequential — элементы по порядку, первая ошибка прерывает остальные
//   - Parallel — элементы конкурентно (errgroup), ошибка элемента не
//     отменяет соседей; результат — ParallelError со всеми ошибками
//   - Conditional — условие вычисляется один раз, выполняется одна ветка
//
// Ветки Parallel работают с копиями контекста (engine.Context.Fork).
// После завершения всех веток их записи применяются к контексту
// в порядке объявления: при конфликте побеждает ветка, объявленная позже.
//
// Отмена контекста проверяется между элементами flow (ErrCancelled),
// выполняющаяся задача получает ctx и прерывается сама.
//
// События выполнения передаются Recorder (история в PostgreSQL,
// прогресс в CLI), метрики и спаны — в пакет telemetry.
package orchestrator
