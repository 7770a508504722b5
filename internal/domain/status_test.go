package domain

import (
	"testing"
)

func TestParseRunStatus(t *testing.T) {
	tests := []struct {
		input     string
		expected  RunStatus
		expectErr bool
	}{
		{input: "FAILED", expected: RunStatusFailed},
		{input: "succeeded", expected: RunStatusSucceeded},
		{input: " Running ", expected: RunStatusRunning},
		{input: "done", expectErr: true},
		{input: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRunStatus(tt.input)
			if tt.expectErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	for _, s := range runStatuses {
		want := s != RunStatusPending && s != RunStatusRunning
		if s.IsTerminal() != want {
			t.Errorf("%s: IsTerminal = %v", s, s.IsTerminal())
		}
	}

	if TaskStatusQueued.IsTerminal() || TaskStatusRunning.IsTerminal() {
		t.Error("queued/running tasks are not terminal")
	}
	if !TaskStatusSkipped.IsTerminal() {
		t.Error("skipped task is terminal")
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Run("failed after running", func(t *testing.T) {
		r := NewRun("deploy", nil, "cli")
		if r.Status != RunStatusPending {
			t.Fatalf("new run status = %s", r.Status)
		}

		r.MarkRunning()
		r.MarkFailed("boom")

		if r.Status != RunStatusFailed || r.Error != "boom" {
			t.Errorf("got %s %q", r.Status, r.Error)
		}
		if !r.Status.IsTerminal() || r.FinishedAt == nil {
			t.Error("failed run must be finished")
		}
		if r.Duration() < 0 {
			t.Errorf("negative duration %v", r.Duration())
		}
	})

	// Отмена до старта: StartedAt всё равно заполняется.
	t.Run("cancelled before start", func(t *testing.T) {
		r := NewRun("deploy", nil, "http")
		r.MarkCancelled()

		if r.StartedAt == nil || r.FinishedAt == nil {
			t.Fatal("timestamps must be set")
		}
		if r.Duration() != 0 {
			t.Errorf("expected zero duration, got %v", r.Duration())
		}
	})

	t.Run("task", func(t *testing.T) {
		tr := NewTaskRun(NewRun("p", nil, "").ID, "build", "shell")
		tr.MarkRunning()
		tr.MarkSucceeded(map[string]any{"out": "ok"})

		if !tr.Status.IsTerminal() || tr.Fields["out"] != "ok" {
			t.Errorf("unexpected task state: %+v", tr)
		}
	})
}
