package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueViolation reports whether any error in the chain references a
// unique constraint violation. When constraintName is provided, the helper
// looks for the constraint text in the error messages, which also covers
// SQLite's "UNIQUE constraint failed: table.column" form used by package
// tests. The walk matters because service layers wrap driver errors with
// messages that drop the cause text.
func IsUniqueViolation(err error, constraintName string) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return true
		}
		msg := err.Error()
		if constraintName != "" && strings.Contains(msg, constraintName) {
			return true
		}
		if strings.Contains(msg, "duplicate key value") ||
			strings.Contains(msg, "UNIQUE constraint failed") {
			return true
		}
	}
	return false
}
