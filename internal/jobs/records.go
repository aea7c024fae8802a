package jobs

import (
	"strings"

	"github.com/leo-cloudarbitration/functions/pkg/warehouse"
)

// lookup walks nested objects: lookup(rec, "metrics", "costMicros").
func lookup(rec map[string]any, path ...string) any {
	var cur any = rec
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func stringOf(v any) string {
	return warehouse.CoerceValue(warehouse.TypeString, v).(string)
}

func intOf(v any) int64 {
	return warehouse.CoerceValue(warehouse.TypeInteger, v).(int64)
}

func floatOf(v any) float64 {
	return warehouse.CoerceValue(warehouse.TypeFloat, v).(float64)
}

// micros converts a micros amount to units.
func micros(v any) float64 {
	return floatOf(v) / 1e6
}

// cleanID trims an identifier and drops the ".0" left by spreadsheet numbers.
func cleanID(v any) string {
	s := strings.TrimSpace(stringOf(v))
	if i := strings.Index(s, "."); i > 0 && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}
	return s
}
