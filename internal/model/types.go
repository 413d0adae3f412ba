package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnixMillis is a nullable instant persisted as UTC unix milliseconds so the
// same column works on Postgres and SQLite.
type UnixMillis struct {
	Time  time.Time
	Valid bool
}

// MillisOf wraps t as a valid UnixMillis truncated to millisecond precision.
func MillisOf(t time.Time) UnixMillis {
	return UnixMillis{Time: time.UnixMilli(t.UnixMilli()).UTC(), Valid: true}
}

// Scan implements sql.Scanner.
func (m *UnixMillis) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = UnixMillis{}
		return nil
	case int64:
		*m = UnixMillis{Time: time.UnixMilli(v).UTC(), Valid: true}
		return nil
	case []byte:
		return m.parse(string(v))
	case string:
		return m.parse(v)
	default:
		return fmt.Errorf("unix millis: unsupported type %T", src)
	}
}

func (m *UnixMillis) parse(s string) error {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("unix millis: %w", err)
	}
	*m = UnixMillis{Time: time.UnixMilli(v).UTC(), Valid: true}
	return nil
}

// Value implements driver.Valuer.
func (m UnixMillis) Value() (driver.Value, error) {
	if !m.Valid {
		return nil, nil
	}
	return m.Time.UTC().UnixMilli(), nil
}

// MarshalJSON renders RFC 3339 or null.
func (m UnixMillis) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Time.UTC().Format(time.RFC3339))
}

// Ptr returns the instant or nil.
func (m UnixMillis) Ptr() *time.Time {
	if !m.Valid {
		return nil
	}
	t := m.Time
	return &t
}

// IntList is a list of small integers stored as a comma separated string.
type IntList []int

// Scan implements sql.Scanner.
func (l *IntList) Scan(src any) error {
	raw, err := asString(src)
	if err != nil {
		return fmt.Errorf("int list: %w", err)
	}
	*l = nil
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("int list: %w", err)
		}
		*l = append(*l, v)
	}
	return nil
}

// Value implements driver.Valuer.
func (l IntList) Value() (driver.Value, error) {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ","), nil
}

// Contains reports whether v is in the list.
func (l IntList) Contains(v int) bool {
	for _, x := range l {
		if x == v {
			return true
		}
	}
	return false
}

// StringList is a list of tokens stored as a comma separated string.
type StringList []string

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	raw, err := asString(src)
	if err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	*l = nil
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	return strings.Join(l, ","), nil
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, x := range l {
		if x == s {
			return true
		}
	}
	return false
}

func asString(src any) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported type %T", src)
	}
}

func scanJSON(src any, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		return json.Unmarshal([]byte(v), dest)
	case []byte:
		return json.Unmarshal(v, dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}
