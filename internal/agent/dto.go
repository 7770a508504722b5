package agent

import (
	"github.com/shaiso/piper/internal/orchestrator"
)

// RunRequest — запрос на выполнение pipeline.
type RunRequest struct {
	// Source — текст pipeline.
	Source string `json:"source"`

	// Params — значения параметров.
	Params map[string]any `json:"params,omitempty"`

	// Regenerate — заново сгенерировать мета-пайплайн.
	Regenerate bool `json:"regenerate,omitempty"`
}

// RunResponse — результат выполнения.
type RunResponse struct {
	RunID      string         `json:"run_id"`
	Pipeline   string         `json:"pipeline"`
	Status     string         `json:"status"`
	Trigger    string         `json:"trigger"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Tasks      []TaskResponse `json:"tasks"`
	Vars       map[string]any `json:"vars,omitempty"`
}

// TaskResponse — результат выполнения задачи.
type TaskResponse struct {
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Status     string         `json:"status"`
	Fields     map[string]any `json:"fields,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// Succeeded возвращает true, если run завершился успешно.
func (r *RunResponse) Succeeded() bool {
	return r.Status == "SUCCEEDED"
}

// NewRunResponse строит ответ из результата Interpreter.
func NewRunResponse(result *orchestrator.RunResult) *RunResponse {
	resp := &RunResponse{
		RunID:      result.Run.ID.String(),
		Pipeline:   result.Run.PipelineName,
		Status:     string(result.Run.Status),
		Trigger:    result.Run.Trigger,
		Error:      result.Run.Error,
		DurationMs: result.Run.Duration().Milliseconds(),
		Tasks:      make([]TaskResponse, 0, len(result.Tasks)),
		Vars:       result.Vars,
	}

	for _, tr := range result.Tasks {
		resp.Tasks = append(resp.Tasks, TaskResponse{
			Name:       tr.TaskName,
			Type:       string(tr.Type),
			Status:     string(tr.Status),
			Fields:     tr.Fields,
			Error:      tr.Error,
			DurationMs: tr.Duration().Milliseconds(),
		})
	}
	return resp
}

// CheckResponse — результат проверки pipeline без выполнения.
type CheckResponse struct {
	Valid    bool     `json:"valid"`
	Pipeline string   `json:"pipeline,omitempty"`
	Meta     bool     `json:"meta"`
	Tasks    []string `json:"tasks,omitempty"`
	Flow     string   `json:"flow,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
