// Package installation records registered generation capacity. The
// registry is independent bookkeeping: the order book never consults it
// for matching or settlement.
package installation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidCapacity     = errors.New("invalid capacity")
	ErrInvalidOwner        = errors.New("invalid owner")
	ErrInsufficientPayment = errors.New("insufficient registration payment")
	ErrNotInstalled        = errors.New("installation not installed")
)

// Installation is one registered generation capacity record.
type Installation struct {
	ID        int64          `json:"id"`
	Owner     common.Address `json:"owner"`
	Capacity  int64          `json:"capacity"` // energy units
	Installed bool           `json:"installed"`
}

// Store persists installations. A nil store keeps the registry in
// memory only.
type Store interface {
	SaveInstallation(inst Installation) error
}

// Registry owns the installation arena. Like the order book it is
// append-only with stable integer ids.
type Registry struct {
	mu       sync.Mutex
	installs []*Installation
	unitRate int64 // upfront payment required per unit of capacity
	store    Store
}

// NewRegistry creates an empty registry charging unitRate per capacity
// unit at registration.
func NewRegistry(unitRate int64, store Store) *Registry {
	return &Registry{unitRate: unitRate, store: store}
}

// Register records a new installation for owner. The payment must cover
// capacity × unit rate; it is a minimum, not an exact price.
func (r *Registry) Register(owner common.Address, capacity, payment int64) (int64, error) {
	if owner == (common.Address{}) {
		return 0, fmt.Errorf("%w: owner is unset", ErrInvalidOwner)
	}
	if capacity <= 0 {
		return 0, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidCapacity, capacity)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	required := capacity * r.unitRate
	if payment < required {
		return 0, fmt.Errorf("%w: need at least %d for capacity %d, got %d",
			ErrInsufficientPayment, required, capacity, payment)
	}

	inst := &Installation{
		ID:        int64(len(r.installs)),
		Owner:     owner,
		Capacity:  capacity,
		Installed: true,
	}

	// Persist before the record becomes visible: a rejected write must
	// not leave a registered installation behind.
	if r.store != nil {
		if err := r.store.SaveInstallation(*inst); err != nil {
			return 0, fmt.Errorf("failed to persist installation %d: %w", inst.ID, err)
		}
	}

	r.installs = append(r.installs, inst)
	return inst.ID, nil
}

// Get returns a copy of the installation with the given id. Unknown ids
// and records that never completed installation both report
// ErrNotInstalled.
func (r *Registry) Get(id int64) (Installation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= int64(len(r.installs)) {
		return Installation{}, fmt.Errorf("%w: id %d", ErrNotInstalled, id)
	}
	inst := r.installs[id]
	if !inst.Installed {
		return Installation{}, fmt.Errorf("%w: id %d", ErrNotInstalled, id)
	}
	return *inst, nil
}

// Count returns the number of registered installations.
func (r *Registry) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.installs))
}

// UnitRate returns the configured payment rate per capacity unit.
func (r *Registry) UnitRate() int64 { return r.unitRate }

// Restore rebuilds the arena from persisted installations, which must
// arrive sorted by id with no holes.
func (r *Registry) Restore(installs []Installation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.installs) != 0 {
		return fmt.Errorf("cannot restore into a non-empty registry (%d records)", len(r.installs))
	}
	for i := range installs {
		if installs[i].ID != int64(i) {
			return fmt.Errorf("installation id gap during restore: position %d holds id %d", i, installs[i].ID)
		}
		inst := installs[i]
		r.installs = append(r.installs, &inst)
	}
	return nil
}
