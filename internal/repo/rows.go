package repo

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound — записи с таким ID нет.
var ErrNotFound = errors.New("not found")

// Пустая строка хранится как NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// decodeJSON разбирает JSONB колонку; NULL оставляет dst без изменений.
func decodeJSON(column string, data []byte, dst any) error {
	if data == nil {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", column, err)
	}
	return nil
}
