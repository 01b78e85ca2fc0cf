package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/damon-houk/waybill-pricing/internal/domain/repository"
	"github.com/dgraph-io/badger/v3"
)

const preferencePrefix = "pref:"

// BadgerPreferenceRepository implements the preference repository interface using BadgerDB
type BadgerPreferenceRepository struct {
	db *badger.DB
}

var _ repository.PreferenceRepository = (*BadgerPreferenceRepository)(nil)

// NewBadgerPreferenceRepository creates a new BadgerDB preference repository
func NewBadgerPreferenceRepository(db *badger.DB) *BadgerPreferenceRepository {
	return &BadgerPreferenceRepository{db: db}
}

// Get retrieves the value stored under key
func (r *BadgerPreferenceRepository) Get(ctx context.Context, key string) (string, error) {
	var value string

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(preferencePrefix + key))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", repository.ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("failed to retrieve preference %s: %w", key, err)
	}

	return value, nil
}

// Set stores value under key
func (r *BadgerPreferenceRepository) Set(ctx context.Context, key, value string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(preferencePrefix+key), []byte(value))
	})

	if err != nil {
		return fmt.Errorf("failed to store preference %s: %w", key, err)
	}

	return nil
}
