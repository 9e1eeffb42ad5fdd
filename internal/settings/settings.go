// Package settings holds the runtime settings of the data privacy service.
package settings

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrSettingNotFound is returned when a setting has never been stored.
var ErrSettingNotFound = errors.New("setting not found")

// Setting keys.
const (
	// KeyContactDPOEnabled allows users to contact the privacy officer directly.
	KeyContactDPOEnabled = "contact_dpo_enabled"

	// KeyDPORoleIDs lists the roles whose holders act as data protection officers.
	KeyDPORoleIDs = "dpo_role_ids"

	// KeyDefaultPurposeID is the system-wide default purpose.
	KeyDefaultPurposeID = "default_purpose_id"

	// KeyDefaultCategoryID is the system-wide default category.
	KeyDefaultCategoryID = "default_category_id"
)

// Setting is a single stored value.
type Setting struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BoolValue returns the value as a boolean, or defaultValue.
func (s *Setting) BoolValue(defaultValue bool) bool {
	if s == nil {
		return defaultValue
	}
	switch v := s.Value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return defaultValue
	}
}

// StringValue returns the value as a string, or defaultValue.
func (s *Setting) StringValue(defaultValue string) string {
	if s == nil {
		return defaultValue
	}
	if v, ok := s.Value.(string); ok {
		return v
	}
	return defaultValue
}

// StringsValue returns the value as a string list. JSON arrays decode to []any.
func (s *Setting) StringsValue() []string {
	if s == nil {
		return nil
	}
	switch v := s.Value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

// JSONValue decodes the value into target.
func (s *Setting) JSONValue(target any) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// Defaults returns the values used when a setting is not stored.
func Defaults() map[string]*Setting {
	now := time.Now()
	return map[string]*Setting{
		KeyContactDPOEnabled: {Key: KeyContactDPOEnabled, Value: true, UpdatedAt: now},
		KeyDPORoleIDs:        {Key: KeyDPORoleIDs, Value: []string{}, UpdatedAt: now},
	}
}

// SystemDefaults are the system-wide purpose and category.
type SystemDefaults struct {
	PurposeID  string
	CategoryID string
}

// Complete reports whether both defaults are configured.
func (d SystemDefaults) Complete() bool {
	return d.PurposeID != "" && d.CategoryID != ""
}
