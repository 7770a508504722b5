package metapipeline

import "errors"

var (
	// ErrInvalidGeneration — генератор вернул текст, который не является
	// корректным конкретным pipeline.
	ErrInvalidGeneration = errors.New("generated pipeline is invalid")

	// ErrStillMeta — материализованный pipeline снова содержит задачи генерации.
	ErrStillMeta = errors.New("materialized pipeline still contains meta tasks")
)
