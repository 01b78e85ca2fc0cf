// Package repository internal/domain/repository/preference_repository.go
package repository

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no preference is stored under a key
var ErrNotFound = errors.New("preference not found")

// PreferenceRepository defines the interface for user preference storage
type PreferenceRepository interface {
	// Get returns the stored value or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value under key
	Set(ctx context.Context, key, value string) error
}
