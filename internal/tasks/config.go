package tasks

import (
	"strconv"
	"strings"

	"github.com/shaiso/piper/internal/engine"
)

// GetConfigString извлекает строковое значение из аргументов.
// Числа и булевы значения приводятся к строке.
func GetConfigString(config map[string]any, key string) string {
	return toString(config[key])
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case map[string]any, []any:
		return ""
	default:
		return engine.Stringify(s)
	}
}

// GetConfigInt извлекает числовое значение из аргументов.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(n))
			if err == nil {
				return i
			}
		}
	}
	return 0
}

// GetConfigFloat извлекает дробное значение. Второй результат — задано ли оно.
func GetConfigFloat(config map[string]any, key string) (float64, bool) {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// GetConfigBool извлекает булево значение из аргументов.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed
			}
		}
	}
	return defaultVal
}

// GetConfigMap извлекает map из аргументов.
func GetConfigMap(config map[string]any, key string) map[string]any {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}

// GetConfigMapString извлекает map[string]string из аргументов.
// Нестроковые значения приводятся к строке.
func GetConfigMapString(config map[string]any, key string) map[string]string {
	if v, ok := config[key]; ok {
		switch m := v.(type) {
		case map[string]string:
			return m
		case map[string]any:
			result := make(map[string]string, len(m))
			for k, val := range m {
				result[k] = toString(val)
			}
			return result
		}
	}
	return nil
}
