package settle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountFrozen     = errors.New("account frozen")
)

// Account is one participant's funds record. A frozen account rejects
// incoming transfers, which is the external failure the gateway has to
// contain.
type Account struct {
	Address common.Address `json:"address"`
	Balance int64          `json:"balance"`
	Frozen  bool           `json:"frozen"`
}

// AccountStore persists accounts. A nil store keeps the ledger purely
// in memory, which is what tests use.
type AccountStore interface {
	SaveAccount(acc Account) error
}

// Ledger tracks participant balances. All funds in the market flow
// through here: deposits, the escrow that backs executions, and
// settlement payouts. Accounts are created on first touch.
type Ledger struct {
	mu       sync.Mutex
	accounts map[common.Address]*Account
	store    AccountStore
}

// NewLedger creates an empty ledger. store may be nil.
func NewLedger(store AccountStore) *Ledger {
	return &Ledger{
		accounts: make(map[common.Address]*Account),
		store:    store,
	}
}

// Deposit credits amount to addr, creating the account if needed.
func (l *Ledger) Deposit(addr common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit must be positive, got %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.getLocked(addr)
	next := *acc
	next.Balance += amount
	if err := l.persistLocked(&next); err != nil {
		return err
	}
	acc.Balance = next.Balance
	return nil
}

// Withdraw debits amount from addr.
func (l *Ledger) Withdraw(addr common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdrawal must be positive, got %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.getLocked(addr)
	if acc.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, acc.Balance, amount)
	}
	next := *acc
	next.Balance -= amount
	if err := l.persistLocked(&next); err != nil {
		return err
	}
	acc.Balance = next.Balance
	return nil
}

// Move transfers amount from one account to another. It fails when the
// source lacks funds, the recipient is frozen or the store rejects the
// write; on failure neither balance changes. Updated balances are
// persisted before they become visible, so a reported failure never
// hides a completed move.
func (l *Ledger) Move(from, to common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer must be positive, got %d", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.getLocked(from)
	dst := l.getLocked(to)

	if src.Balance < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, from.Hex(), src.Balance, amount)
	}
	if dst.Frozen {
		return fmt.Errorf("%w: %s rejects incoming funds", ErrAccountFrozen, to.Hex())
	}

	srcNext := *src
	dstNext := *dst
	srcNext.Balance -= amount
	dstNext.Balance += amount

	if err := l.persistLocked(&srcNext); err != nil {
		return err
	}
	if err := l.persistLocked(&dstNext); err != nil {
		return err
	}

	src.Balance = srcNext.Balance
	dst.Balance = dstNext.Balance
	return nil
}

// Balance returns addr's balance; unknown accounts have zero.
func (l *Ledger) Balance(addr common.Address) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return acc.Balance
}

// Freeze makes addr reject incoming transfers until unfrozen.
func (l *Ledger) Freeze(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getLocked(addr).Frozen = true
}

// Unfreeze lifts a freeze.
func (l *Ledger) Unfreeze(addr common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.getLocked(addr).Frozen = false
}

// Account returns a copy of addr's record and whether it exists.
func (l *Ledger) Account(addr common.Address) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[addr]
	if !ok {
		return Account{}, false
	}
	return *acc, true
}

// Accounts returns a snapshot copy of every account ever touched.
func (l *Ledger) Accounts() []Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, *acc)
	}
	return out
}

// Count returns the number of accounts ever touched.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.accounts)
}

// Restore loads persisted accounts into an empty ledger.
func (l *Ledger) Restore(accounts []Account) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range accounts {
		acc := accounts[i]
		l.accounts[acc.Address] = &acc
	}
}

// getLocked returns the account for addr, creating it if needed.
// Assumes the lock is held.
func (l *Ledger) getLocked(addr common.Address) *Account {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &Account{Address: addr}
		l.accounts[addr] = acc
	}
	return acc
}

// persistLocked writes acc through the store, if one is configured.
func (l *Ledger) persistLocked(acc *Account) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.SaveAccount(*acc); err != nil {
		return fmt.Errorf("failed to persist account %s: %w", acc.Address.Hex(), err)
	}
	return nil
}
