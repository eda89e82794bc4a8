// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package eventprocessor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// redeliveryTTL bounds how long a delivery count survives. A message the
// broker has stopped redelivering does not need its counter forever.
const redeliveryTTL = 24 * time.Hour

// RedeliveryTracker counts deliveries per message UUID in Badger so the
// count survives restarts. Without it a crash loop could requeue a poison
// message indefinitely.
type RedeliveryTracker struct {
	db     *badger.DB
	prefix []byte
}

// NewRedeliveryTracker opens the tracking store at dir.
func NewRedeliveryTracker(dir string) (*RedeliveryTracker, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open redelivery store: %w", err)
	}
	return &RedeliveryTracker{db: db, prefix: []byte("redelivery:")}, nil
}

// Record increments and returns the delivery count for the message.
// The first delivery returns 1.
func (t *RedeliveryTracker) Record(messageUUID string) (int, error) {
	var count uint64
	err := t.db.Update(func(txn *badger.Txn) error {
		key := t.key(messageUUID)

		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			count = 1
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				if len(val) == 8 {
					count = binary.BigEndian.Uint64(val)
				}
				return nil
			}); err != nil {
				return err
			}
			count++
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		entry := badger.NewEntry(key, buf).WithTTL(redeliveryTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return 0, fmt.Errorf("record delivery for %s: %w", messageUUID, err)
	}
	return int(count), nil
}

// Clear removes the counter after successful processing.
func (t *RedeliveryTracker) Clear(messageUUID string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(t.key(messageUUID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("clear delivery count for %s: %w", messageUUID, err)
	}
	return nil
}

// Close releases the store.
func (t *RedeliveryTracker) Close() error {
	return t.db.Close()
}

func (t *RedeliveryTracker) key(messageUUID string) []byte {
	return append(append([]byte{}, t.prefix...), messageUUID...)
}
