package storage

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openwatt/gridmarket/pkg/market/book"
	"github.com/openwatt/gridmarket/pkg/market/installation"
	"github.com/openwatt/gridmarket/pkg/market/settle"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "market.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_OrdersRoundTripInIDOrder(t *testing.T) {
	s := openTestStore(t)

	// Save out of order; load must come back sorted by id.
	orders := []book.Order{
		{ID: 2, Seller: bob, Quantity: 50, Price: 30, MatchedOrder: book.NoMatch},
		{ID: 0, Buyer: alice, Quantity: 100, Price: 50, Matched: true, MatchedOrder: 1},
		{ID: 1, Seller: bob, Buyer: alice, Quantity: 100, Price: 40, Matched: true, MatchedOrder: 0},
	}
	for _, o := range orders {
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("save order %d: %v", o.ID, err)
		}
	}

	loaded, err := s.LoadOrders()
	if err != nil {
		t.Fatalf("load orders: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded %d orders, want 3", len(loaded))
	}
	for i, o := range loaded {
		if o.ID != int64(i) {
			t.Errorf("position %d holds id %d", i, o.ID)
		}
	}
	if loaded[0].MatchedOrder != 1 || !loaded[0].Matched {
		t.Errorf("order 0 lost match state: %+v", loaded[0])
	}
}

func TestStore_SaveOrderOverwrites(t *testing.T) {
	s := openTestStore(t)

	o := book.Order{ID: 0, Buyer: alice, Quantity: 100, Price: 50, MatchedOrder: book.NoMatch}
	if err := s.SaveOrder(o); err != nil {
		t.Fatal(err)
	}
	o.Matched = true
	o.Price = 40
	o.MatchedOrder = 1
	if err := s.SaveOrder(o); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadOrders()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].Price != 40 || !loaded[0].Matched {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestStore_AccountsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveAccount(settle.Account{Address: alice, Balance: 900}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAccount(settle.Account{Address: bob, Balance: 100, Frozen: true}); err != nil {
		t.Fatal(err)
	}

	accounts, err := s.LoadAccounts()
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 {
		t.Fatalf("loaded %d accounts, want 2", len(accounts))
	}
	byAddr := make(map[common.Address]settle.Account)
	for _, acc := range accounts {
		byAddr[acc.Address] = acc
	}
	if byAddr[alice].Balance != 900 {
		t.Errorf("alice balance = %d", byAddr[alice].Balance)
	}
	if !byAddr[bob].Frozen {
		t.Error("bob lost frozen flag")
	}
}

func TestStore_InstallationsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	for i := int64(0); i < 3; i++ {
		inst := installation.Installation{ID: i, Owner: alice, Capacity: 100 * (i + 1), Installed: true}
		if err := s.SaveInstallation(inst); err != nil {
			t.Fatal(err)
		}
	}

	installs, err := s.LoadInstallations()
	if err != nil {
		t.Fatal(err)
	}
	if len(installs) != 3 {
		t.Fatalf("loaded %d installations, want 3", len(installs))
	}
	for i, inst := range installs {
		if inst.ID != int64(i) || inst.Capacity != 100*(int64(i)+1) {
			t.Errorf("position %d: %+v", i, inst)
		}
	}
}
