package orchestrator

import (
	"sync"

	"github.com/shaiso/piper/internal/domain"
)

// RunResult — результат выполнения pipeline.
//
// Содержит:
//   - Run с итоговым статусом и ошибкой
//   - записи о выполнении задач в порядке запуска
//   - итоговое состояние переменных run
type RunResult struct {
	// Run — запись о run.
	Run *domain.Run `json:"run"`

	// Tasks — выполнения задач в порядке запуска.
	// Задача, на которую flow ссылается дважды, встречается дважды.
	Tasks []*domain.TaskRun `json:"tasks"`

	// Vars — переменные run после завершения.
	Vars map[string]any `json:"vars"`

	// Err — ошибка, завершившая run. Nil при успехе.
	Err error `json:"-"`

	mu sync.Mutex
}

func newRunResult(run *domain.Run) *RunResult {
	return &RunResult{Run: run}
}

// addTask регистрирует запуск задачи.
func (r *RunResult) addTask(tr *domain.TaskRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tasks = append(r.Tasks, tr)
}

// Task возвращает последнее выполнение задачи с указанным именем.
func (r *RunResult) Task(name string) *domain.TaskRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Tasks) - 1; i >= 0; i-- {
		if r.Tasks[i].TaskName == name {
			return r.Tasks[i]
		}
	}
	return nil
}

// Order возвращает имена задач в порядке запуска.
func (r *RunResult) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.Tasks))
	for i, tr := range r.Tasks {
		names[i] = tr.TaskName
	}
	return names
}

// Failed возвращает упавшие выполнения задач.
func (r *RunResult) Failed() []*domain.TaskRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []*domain.TaskRun
	for _, tr := range r.Tasks {
		if tr.Status == domain.TaskStatusFailed {
			failed = append(failed, tr)
		}
	}
	return failed
}

// Succeeded возвращает true, если run завершился успешно.
func (r *RunResult) Succeeded() bool {
	return r.Run.Status == domain.RunStatusSucceeded
}
