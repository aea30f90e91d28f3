package domain

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// durationOverride reads a numeric-hours field out of a metadata JSON blob.
// It never errors: absent or malformed overrides simply report ok=false so
// callers fall back to configuration.
func durationOverride(meta datatypes.JSON, key string) (time.Duration, bool) {
	if len(meta) == 0 {
		return 0, false
	}
	var m map[string]any
	if err := json.Unmarshal(meta, &m); err != nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Hour)), true
	case int:
		return time.Duration(n) * time.Hour, true
	default:
		return 0, false
	}
}
