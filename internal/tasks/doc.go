// Package tasks содержит контракт задач и их реализации.
//
// # Контракт
//
// Каждая задача реализует интерфейс Task:
//
//	type Task interface {
//	    Validate() error
//	    Execute(ctx context.Context, vars *engine.Context, sink *ResultSink) error
//	    Describe() Metadata
//	}
//
// Validate вызывается до Execute и не имеет побочных эффектов.
// Execute пишет поля результата (status, timestamp, task_type и поля
// конкретного типа) в ResultSink и может задать основной результат
// через SetOutput. Интерпретатор сохраняет поля под именем задачи,
// а основной результат — в переменную из аргумента output.
//
// # Ошибки
//
// Все ошибки задач — *TaskError с видом, проверяемым через errors.Is:
//   - ErrValidation — аргументы невалидны, Execute не вызывался
//   - ErrExecution — задача выполнилась с ошибкой
//   - ErrContext — не удалось прочитать или записать контекст
//   - ErrDuplicateTaskName — повторная регистрация типа в Registry
//
// # Registry
//
// Registry связывает domain.TaskType с фабрикой задачи:
//
//	registry := tasks.DefaultRegistry(tasks.Options{})
//	task, err := registry.Build(tasks.NewSpec("build", domain.TaskTypeCmd, args, nil))
//
// Задачи генерации (meta_task, generate_tasks, generate_flow) не имеют
// реализации: Build возвращает ErrValidation, пока мета-пайплайн не
// материализован.
//
// # Типы задач
//
//   - cmd.go     — команда оболочки (stdout, stderr, exit_code)
//   - http.go    — HTTP запрос (status_code, headers, body)
//   - notify.go  — webhook с аргументами задачи в JSON
//   - set_var.go — запись переменной
//   - lua.go     — Lua скрипт (gopher-lua) с таблицей ctx
//   - script.go  — JavaScript (goja) с объектом ctx
//   - llm.go     — запрос к языковой модели
package tasks
