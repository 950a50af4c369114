package percolate

import (
	"fmt"
	"strconv"
)

// Index setting keys understood by ParseSettings.
const (
	SettingMapUnmappedFieldsAsText = "index.percolator.map_unmapped_fields_as_text"
	SettingMaxClauseCount          = "index.query.bool.max_clause_count"
)

// Settings are percolator settings expressed as index settings. Nil fields are
// unset and leave the configured value alone.
type Settings struct {
	MapUnmappedFieldsAsText *bool
	MaxClauseCount          *int
}

// ParseSettings reads the percolator keys from flat index settings. Other keys are
// ignored.
func ParseSettings(kv map[string]string) (Settings, error) {
	var s Settings
	if v, ok := kv[SettingMapUnmappedFieldsAsText]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Settings{}, fmt.Errorf("setting %s: %w", SettingMapUnmappedFieldsAsText, err)
		}
		s.MapUnmappedFieldsAsText = &b
	}
	if v, ok := kv[SettingMaxClauseCount]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Settings{}, fmt.Errorf("setting %s: %w", SettingMaxClauseCount, err)
		}
		if n < 1 {
			return Settings{}, fmt.Errorf("setting %s: must be at least 1, got %d", SettingMaxClauseCount, n)
		}
		s.MaxClauseCount = &n
	}
	return s, nil
}

// WithSettings applies parsed settings.
func WithSettings(s Settings) Option {
	return func(o *options) {
		if s.MapUnmappedFieldsAsText != nil {
			o.mapUnmappedAsText = *s.MapUnmappedFieldsAsText
		}
		if s.MaxClauseCount != nil {
			o.maxClauseCount = *s.MaxClauseCount
		}
	}
}
