// Package eventcache keeps a local, per-vault copy of every reconciled
// ledger event. A warm start replays the cache into the projection before
// the node answers; because the fold is idempotent by order key, replaying
// cached events ahead of the ledger is always safe.
package eventcache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"vaultsync/blockchain/types"
)

// Cache is a badger-backed event cache.
type Cache struct {
	db     *badger.DB
	logger *logrus.Logger
}

// New opens (or creates) the cache at path.
func New(path string, logger *logrus.Logger) (*Cache, error) {
	if logger == nil {
		logger = logrus.New()
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open event cache at '%s': %w", path, err)
	}
	return &Cache{db: db, logger: logger}, nil
}

// key layout: vault address | height (8 bytes BE) | log index (4 bytes BE).
// Iterating a vault prefix therefore yields events in order-key order.
func key(vault common.Address, k types.OrderKey) []byte {
	buf := make([]byte, 0, 20+12)
	buf = append(buf, vault.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, k.Height)
	buf = binary.BigEndian.AppendUint32(buf, uint32(k.LogIndex))
	return buf
}

// Put persists one reconciled event.
func (c *Cache) Put(vault common.Address, ev types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(vault, ev.OrderKey()), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write event cache: %w", err)
	}
	return nil
}

// Events returns every cached event of a vault in order-key order.
func (c *Cache) Events(vault common.Address) ([]types.Event, error) {
	var events []types.Event
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := vault.Bytes()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var ev types.Event
				if err := json.Unmarshal(val, &ev); err != nil {
					// A corrupt entry is dropped rather than poisoning the
					// warm start; replay will restore it.
					c.logger.WithError(err).Warn("Dropping undecodable cache entry")
					return nil
				}
				events = append(events, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read event cache: %w", err)
	}
	return events, nil
}

// Purge removes every cached event of a vault.
func (c *Cache) Purge(vault common.Address) error {
	return c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		defer it.Close()
		prefix := vault.Bytes()
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}
