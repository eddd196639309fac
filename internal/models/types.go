package models

import (
	"database/sql/driver"
	"strings"

	"github.com/google/uuid"
)

// StringArray is a custom type for PostgreSQL text[] that implements Scanner and Valuer.
// SQLite stores the same literal as text, so tests can use it unchanged.
type StringArray []string

// Scan implements the sql.Scanner interface for reading from database
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	// PostgreSQL returns text[] as a string like "{value1,value2,value3}"
	str, ok := value.(string)
	if !ok {
		if bytes, ok := value.([]byte); ok {
			str = string(bytes)
		} else {
			*a = nil
			return nil
		}
	}

	str = strings.TrimPrefix(str, "{")
	str = strings.TrimSuffix(str, "}")

	if str == "" {
		*a = []string{}
		return nil
	}

	// Ids never contain commas, so a plain split is enough
	*a = strings.Split(str, ",")
	return nil
}

// Value implements the driver.Valuer interface for writing to database
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	if len(a) == 0 {
		return "{}", nil
	}
	return "{" + strings.Join(a, ",") + "}", nil
}

// Contains reports whether s is in the array
func (a StringArray) Contains(s string) bool {
	for _, v := range a {
		if v == s {
			return true
		}
	}
	return false
}

func generateUUID() string {
	return uuid.New().String()
}
