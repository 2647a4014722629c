package utils

import (
	"reflect"
	"strconv"
	"strings"
	"time"
)

// UpdatesFromPtrDTO builds a map[string]any containing only non-nil *fields from a pointer DTO.
// The `json` tag (before any comma options) is the column name unless renames maps it,
// e.g. {"low_stock": "low_stock_threshold"}.
func UpdatesFromPtrDTO(dto any, renames map[string]string) map[string]any {
	res := make(map[string]any)
	s, ok := structElem(dto)
	if !ok {
		return res
	}
	t := s.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		fv := s.Field(i)
		if fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		jsonTag := sf.Tag.Get("json")
		if jsonTag == "" || jsonTag == "-" {
			continue
		}
		name := strings.Split(jsonTag, ",")[0]
		if alt, ok := renames[name]; ok && alt != "" {
			name = alt
		}
		res[name] = fv.Elem().Interface()
	}
	return res
}

// ParseIntDefault parses a non-negative int, returning def for anything else.
func ParseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 {
		return v
	}
	return def
}

// ParseDateRange reads from/to query values as YYYY-MM-DD. A missing or malformed
// bound falls back to the zero time; to is made inclusive of the whole day.
func ParseDateRange(from, to string) (time.Time, time.Time) {
	var start, end time.Time
	if t, err := time.Parse(time.DateOnly, strings.TrimSpace(from)); err == nil {
		start = t.UTC()
	}
	if t, err := time.Parse(time.DateOnly, strings.TrimSpace(to)); err == nil {
		end = t.UTC().Add(24*time.Hour - time.Nanosecond)
	}
	return start, end
}
