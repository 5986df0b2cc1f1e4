package settle

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	payer  = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	payee  = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	escrow = common.HexToAddress("0x0000000000000000000000000000000000000e5c")
)

func TestLedger_DepositWithdraw(t *testing.T) {
	l := NewLedger(nil)

	if err := l.Deposit(payer, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := l.Balance(payer); got != 100 {
		t.Errorf("balance = %d, want 100", got)
	}

	if err := l.Withdraw(payer, 40); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := l.Balance(payer); got != 60 {
		t.Errorf("balance = %d, want 60", got)
	}

	if err := l.Withdraw(payer, 61); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overdraw err = %v, want ErrInsufficientFunds", err)
	}
	if err := l.Deposit(payer, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero deposit err = %v, want ErrInvalidAmount", err)
	}
	if err := l.Withdraw(payer, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative withdraw err = %v, want ErrInvalidAmount", err)
	}
}

func TestLedger_Move(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(l *Ledger)
		amount  int64
		wantErr error
	}{
		{
			name:   "funded source",
			setup:  func(l *Ledger) { l.Deposit(payer, 100) },
			amount: 100,
		},
		{
			name:    "underfunded source",
			setup:   func(l *Ledger) { l.Deposit(payer, 99) },
			amount:  100,
			wantErr: ErrInsufficientFunds,
		},
		{
			name: "frozen recipient",
			setup: func(l *Ledger) {
				l.Deposit(payer, 100)
				l.Freeze(payee)
			},
			amount:  100,
			wantErr: ErrAccountFrozen,
		},
		{
			name:    "non-positive amount",
			setup:   func(l *Ledger) { l.Deposit(payer, 100) },
			amount:  0,
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(nil)
			tt.setup(l)
			before := l.Balance(payer) + l.Balance(payee)

			err := l.Move(payer, payee, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Move() err = %v, want %v", err, tt.wantErr)
			}

			if after := l.Balance(payer) + l.Balance(payee); after != before {
				t.Errorf("total balance changed: before %d, after %d", before, after)
			}
			if tt.wantErr != nil && l.Balance(payee) != 0 {
				t.Errorf("failed move credited recipient: %d", l.Balance(payee))
			}
		})
	}
}

func TestLedger_MoveUnfreezeRecovers(t *testing.T) {
	l := NewLedger(nil)
	l.Deposit(payer, 100)
	l.Freeze(payee)

	if err := l.Move(payer, payee, 50); !errors.Is(err, ErrAccountFrozen) {
		t.Fatalf("expected frozen recipient rejection, got %v", err)
	}

	l.Unfreeze(payee)
	if err := l.Move(payer, payee, 50); err != nil {
		t.Fatalf("move after unfreeze: %v", err)
	}
	if got := l.Balance(payee); got != 50 {
		t.Errorf("payee balance = %d, want 50", got)
	}
}

func TestLedger_Restore(t *testing.T) {
	l := NewLedger(nil)
	l.Restore([]Account{
		{Address: payer, Balance: 70},
		{Address: payee, Balance: 30, Frozen: true},
	})

	if got := l.Balance(payer); got != 70 {
		t.Errorf("payer balance = %d, want 70", got)
	}
	acc, ok := l.Account(payee)
	if !ok || !acc.Frozen {
		t.Errorf("payee account = %+v (ok=%v), want frozen", acc, ok)
	}
	if got := l.Count(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
	if got := len(l.Accounts()); got != 2 {
		t.Errorf("accounts snapshot = %d entries, want 2", got)
	}
}

// failingAccountStore rejects writes on demand.
type failingAccountStore struct {
	fail bool
}

func (s *failingAccountStore) SaveAccount(Account) error {
	if s.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestLedger_StoreFailureLeavesBalancesUntouched(t *testing.T) {
	store := &failingAccountStore{}
	l := NewLedger(store)
	if err := l.Deposit(payer, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	store.fail = true

	if err := l.Deposit(payer, 10); err == nil {
		t.Fatal("deposit with failing store should error")
	}
	if err := l.Withdraw(payer, 10); err == nil {
		t.Fatal("withdraw with failing store should error")
	}
	if err := l.Move(payer, payee, 60); err == nil {
		t.Fatal("move with failing store should error")
	}
	if got, want := l.Balance(payer), int64(100); got != want {
		t.Errorf("payer balance = %d, want %d after failed writes", got, want)
	}
	if got := l.Balance(payee); got != 0 {
		t.Errorf("payee balance = %d, a failed move must not credit the recipient", got)
	}

	// Once the store recovers a retry pays exactly once.
	store.fail = false
	if err := l.Move(payer, payee, 60); err != nil {
		t.Fatalf("move after store recovery: %v", err)
	}
	if got := l.Balance(payee); got != 60 {
		t.Errorf("payee balance = %d, want 60", got)
	}
}

func TestGateway_TransferReportsStoreFailure(t *testing.T) {
	store := &failingAccountStore{}
	l := NewLedger(store)
	if err := l.Deposit(escrow, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	g := NewGateway(l, escrow, nil)

	store.fail = true
	if g.Transfer(payee, 60) {
		t.Fatal("transfer must report failure when the write is rejected")
	}
	if l.Balance(escrow) != 100 || l.Balance(payee) != 0 {
		t.Errorf("balances = %d/%d after failed transfer, want 100/0",
			l.Balance(escrow), l.Balance(payee))
	}

	store.fail = false
	if !g.Transfer(payee, 60) {
		t.Fatal("transfer after store recovery should succeed")
	}
	if got := l.Balance(payee); got != 60 {
		t.Errorf("payee balance = %d, want 60 (paid exactly once)", got)
	}
}

func TestGateway_Transfer(t *testing.T) {
	l := NewLedger(nil)
	g := NewGateway(l, escrow, nil)

	// Escrow starts empty; the payout must fail without touching state.
	if g.Transfer(payee, 100) {
		t.Fatal("transfer from empty escrow should fail")
	}
	if got := l.Balance(payee); got != 0 {
		t.Errorf("payee balance = %d, want 0 after failed transfer", got)
	}

	l.Deposit(escrow, 150)
	if !g.Transfer(payee, 100) {
		t.Fatal("funded transfer should succeed")
	}
	if got := l.Balance(payee); got != 100 {
		t.Errorf("payee balance = %d, want 100", got)
	}
	if got := l.Balance(escrow); got != 50 {
		t.Errorf("escrow balance = %d, want 50", got)
	}

	// A frozen recipient rejects funds; the gateway reports, not panics.
	l.Freeze(payee)
	if g.Transfer(payee, 50) {
		t.Fatal("transfer to frozen recipient should fail")
	}
}
