package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ключи meta, которые включают запуск по расписанию:
//
//	meta { schedule: "0 9 * * *", timezone: "Europe/Moscow" }
//	meta { interval_sec: 300, params: { env: "prod" } }
const (
	MetaSchedule    = "schedule"
	MetaIntervalSec = "interval_sec"
	MetaTimezone    = "timezone"
	MetaParams      = "params"
)

// Schedule — расписание одного файла pipeline. CronExpr важнее
// IntervalSec, если заданы оба.
type Schedule struct {
	PipelineName string         `json:"pipeline"`
	Path         string         `json:"path"`
	CronExpr     string         `json:"cron_expr,omitempty"`
	IntervalSec  int            `json:"interval_sec,omitempty"`
	Timezone     string         `json:"timezone"`
	Params       map[string]any `json:"params,omitempty"`

	// Enabled сбрасывается, если следующий запуск нельзя вычислить.
	Enabled bool `json:"enabled"`

	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`
}

// ScheduleFromPipeline читает расписание из meta. nil — pipeline
// запускается только вручную.
func ScheduleFromPipeline(p *Pipeline, path string) *Schedule {
	s := &Schedule{
		PipelineName: p.Name,
		Path:         path,
		CronExpr:     p.MetadataString(MetaSchedule),
		Timezone:     p.MetadataString(MetaTimezone),
		Enabled:      true,
	}
	if n, ok := p.Metadata[MetaIntervalSec].(Number); ok {
		s.IntervalSec = int(n)
	}
	if !s.IsCron() && !s.IsInterval() {
		return nil
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if obj, ok := p.Metadata[MetaParams].(Object); ok {
		if params, ok := Literal(obj).(map[string]any); ok {
			s.Params = params
		}
	}
	return s
}

func (s *Schedule) IsCron() bool { return s.CronExpr != "" }

func (s *Schedule) IsInterval() bool { return s.CronExpr == "" && s.IntervalSec > 0 }

// IsDue — расписание включено и NextDueAt не позже now.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.Enabled && s.NextDueAt != nil && !now.Before(*s.NextDueAt)
}

// RecordRun запоминает запуск runID и следующий срок.
func (s *Schedule) RecordRun(runID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt, s.LastRunID, s.NextDueAt = &now, &runID, &nextDue
}

// Literal переводит литеральное значение в Go (string, float64, bool,
// map[string]any, []any). Выражения и ссылки на переменные дают nil.
func Literal(v Value) any {
	switch v := v.(type) {
	case String:
		return string(v)
	case MultilineString:
		return string(v)
	case Number:
		return float64(v)
	case Boolean:
		return bool(v)
	case Object:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Literal(item)
		}
		return out
	case Array:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Literal(item)
		}
		return out
	default:
		return nil
	}
}
