package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode json column: %w", err)
	}
	return string(data), nil
}

// encodeNullableJSON stores nil values as SQL NULL
func encodeNullableJSON(v interface{}, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	s, err := encodeJSON(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: s, Valid: true}, nil
}

func decodeMap(raw string) (map[string]interface{}, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode json column: %w", err)
	}
	return m, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// now returns the current time in UTC truncated to microseconds so values
// survive a round trip through SQLite text timestamps unchanged.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
