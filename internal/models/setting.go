package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Well-known system setting keys.
const (
	SettingCatalogSyncEnabled   = "catalog_sync_enabled"
	SettingCatalogSyncFrequency = "catalog_sync_frequency_hours"
)

// JSONValue stores an arbitrary JSON document in a text column.
type JSONValue struct {
	Raw json.RawMessage
}

func (v JSONValue) Value() (driver.Value, error) {
	if len(v.Raw) == 0 {
		return "null", nil
	}
	return string(v.Raw), nil
}

func (v *JSONValue) Scan(value any) error {
	if value == nil {
		v.Raw = nil
		return nil
	}
	switch raw := value.(type) {
	case []byte:
		v.Raw = append(json.RawMessage(nil), raw...)
	case string:
		v.Raw = json.RawMessage(raw)
	default:
		return fmt.Errorf("unsupported type for JSONValue: %T", value)
	}
	return nil
}

func (v JSONValue) MarshalJSON() ([]byte, error) {
	if len(v.Raw) == 0 {
		return []byte("null"), nil
	}
	return v.Raw, nil
}

func (v *JSONValue) UnmarshalJSON(data []byte) error {
	v.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// SystemSetting is a key/value row holding portal configuration that can be
// changed at runtime. Values are JSON documents.
type SystemSetting struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Key       string    `gorm:"uniqueIndex;not null" json:"key"`
	Value     JSONValue `gorm:"type:text" json:"value"`
}

// Bool interprets the setting value as a boolean, returning def when the
// value is absent or not a boolean.
func (s *SystemSetting) Bool(def bool) bool {
	var b bool
	if err := json.Unmarshal(s.Value.Raw, &b); err != nil {
		return def
	}
	return b
}

// Int interprets the setting value as an integer, returning def when the
// value is absent or not numeric.
func (s *SystemSetting) Int(def int) int {
	var n int
	if err := json.Unmarshal(s.Value.Raw, &n); err != nil {
		return def
	}
	return n
}
