// Package repository implements the data access layer for the application.
package repository

import (
	"errors"
	"strings"
)

// Sentinel outcomes of conditional writes. Services translate these into
// AppErrors; they never reach a handler directly.
var (
	ErrRosterFull         = errors.New("event roster is full")
	ErrEventEnded         = errors.New("event has ended")
	ErrAlreadyParticipant = errors.New("user already on roster")
	ErrNotParticipant     = errors.New("user not on roster")
	ErrAlreadyFollowing   = errors.New("follow edge already exists")
	ErrNotFollowing       = errors.New("follow edge does not exist")
	ErrDuplicatePair      = errors.New("private chat already exists for pair")
)

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// PostgreSQL unique violation SQLSTATE 23505
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
