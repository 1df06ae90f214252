package gsckit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryAccountStore is an in-memory store intended for tests and dev runs.
type MemoryAccountStore struct {
	mutex   sync.Mutex
	records map[string]AccountRecord
}

// NewMemoryAccountStore creates an empty in-memory account store.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{records: make(map[string]AccountRecord)}
}

// Load returns the record for the user, or ErrAccountNotLinked.
func (store *MemoryAccountStore) Load(ctx context.Context, userID string) (AccountRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.records[userID]
	if !ok {
		return AccountRecord{}, fmt.Errorf("account_store.load.memory: %w", ErrAccountNotLinked)
	}
	return record, nil
}

// Save replaces the stored record for the user wholesale.
func (store *MemoryAccountStore) Save(ctx context.Context, record AccountRecord) error {
	if record.UserID == "" {
		return fmt.Errorf("account_store.save.memory: %w", errEmptyUserID)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.records[record.UserID] = record
	return nil
}
