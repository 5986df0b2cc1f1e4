// Package storage persists market state in Pebble. Values are JSON
// encoded; keys are prefixed per record type, with numeric ids
// zero-padded so prefix scans return records in id order.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openwatt/gridmarket/pkg/market/book"
	"github.com/openwatt/gridmarket/pkg/market/installation"
	"github.com/openwatt/gridmarket/pkg/market/settle"
)

const (
	prefixOrder        = "o:"
	prefixAccount      = "a:"
	prefixInstallation = "i:"
)

// orderKey format: "o:{id}" with a zero-padded id so lexicographic key
// order equals placement order. Match scan order depends on that.
func orderKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func accountKey(addr common.Address) []byte {
	return []byte(prefixAccount + addr.Hex())
}

func installationKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixInstallation, id))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Store is the single Pebble database holding orders, accounts and
// installations. Writes are synchronous: once an operation returns to
// the caller its state change is durable.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveOrder persists one order by id.
func (s *Store) SaveOrder(o book.Order) error {
	return s.put(orderKey(o.ID), o, "order")
}

// LoadOrders returns all persisted orders sorted by id.
func (s *Store) LoadOrders() ([]book.Order, error) {
	var orders []book.Order
	err := s.scan([]byte(prefixOrder), func(val []byte) error {
		var o book.Order
		if err := json.Unmarshal(val, &o); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		orders = append(orders, o)
		return nil
	})
	return orders, err
}

// SaveAccount persists one ledger account.
func (s *Store) SaveAccount(acc settle.Account) error {
	return s.put(accountKey(acc.Address), acc, "account")
}

// LoadAccounts returns all persisted accounts.
func (s *Store) LoadAccounts() ([]settle.Account, error) {
	var accounts []settle.Account
	err := s.scan([]byte(prefixAccount), func(val []byte) error {
		var acc settle.Account
		if err := json.Unmarshal(val, &acc); err != nil {
			return fmt.Errorf("failed to unmarshal account: %w", err)
		}
		accounts = append(accounts, acc)
		return nil
	})
	return accounts, err
}

// SaveInstallation persists one installation by id.
func (s *Store) SaveInstallation(inst installation.Installation) error {
	return s.put(installationKey(inst.ID), inst, "installation")
}

// LoadInstallations returns all persisted installations sorted by id.
func (s *Store) LoadInstallations() ([]installation.Installation, error) {
	var installs []installation.Installation
	err := s.scan([]byte(prefixInstallation), func(val []byte) error {
		var inst installation.Installation
		if err := json.Unmarshal(val, &inst); err != nil {
			return fmt.Errorf("failed to unmarshal installation: %w", err)
		}
		installs = append(installs, inst)
		return nil
	})
	return installs, err
}

func (s *Store) put(key []byte, v any, kind string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save %s: %w", kind, err)
	}
	return nil
}

func (s *Store) scan(prefix []byte, fn func(val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

var (
	_ settle.AccountStore = (*Store)(nil)
	_ installation.Store  = (*Store)(nil)
)
