// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/boardstream/boardstream/internal/metrics"
)

// AcquireLock takes the processing lock for an event. The existence check
// and the write share one transaction, so exactly one of any number of
// concurrent claimants wins. The lease TTL bounds how long a crashed
// worker can hold the lock; after expiry Badger drops the key and the
// event becomes claimable again.
//
// The token identifies the holder; only the matching ReleaseLock call
// frees the lock early.
func (s *Store) AcquireLock(eventID, token string, lease time.Duration) (bool, error) {
	acquired := false
	err := s.update(func(txn *badger.Txn) error {
		acquired = false
		key := lockKey(eventID)
		_, err := txn.Get(key)
		if err == nil {
			return nil // held by someone else
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check event lock: %w", err)
		}

		if lease <= 0 {
			lease = 2 * time.Minute
		}
		entry := badger.NewEntry(key, []byte(token)).WithTTL(lease)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set event lock: %w", err)
		}
		acquired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !acquired {
		metrics.LockContention.Inc()
	}
	return acquired, nil
}

// ReleaseLock frees the lock if and only if token still owns it. A release
// after lease expiry, when another worker may have re-acquired, is a no-op
// rather than an error.
func (s *Store) ReleaseLock(eventID, token string) error {
	return s.update(func(txn *badger.Txn) error {
		key := lockKey(eventID)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("check event lock: %w", err)
		}

		var holder []byte
		holder, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read event lock holder: %w", err)
		}
		if string(holder) != token {
			return nil
		}
		return txn.Delete(key)
	})
}

func lockKey(eventID string) []byte {
	return []byte(lockKeyPrefix + eventID)
}
