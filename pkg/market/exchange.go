// Package market wires the order book, settlement ledger, installation
// registry and notification log into one self-contained session. There
// are no package-level singletons: every Exchange owns its state
// outright, so tests can run any number of independent instances.
package market

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openwatt/gridmarket/pkg/events"
	"github.com/openwatt/gridmarket/pkg/market/book"
	"github.com/openwatt/gridmarket/pkg/market/installation"
	"github.com/openwatt/gridmarket/pkg/market/settle"
)

// Store is the persistence surface the exchange needs. *storage.Store
// satisfies it; a nil Store keeps everything in memory.
type Store interface {
	SaveOrder(o book.Order) error
	LoadOrders() ([]book.Order, error)
	SaveAccount(acc settle.Account) error
	LoadAccounts() ([]settle.Account, error)
	SaveInstallation(inst installation.Installation) error
	LoadInstallations() ([]installation.Installation, error)
}

// Config carries the tunables an Exchange needs at construction.
type Config struct {
	// UnitRate is the upfront payment required per unit of installation
	// capacity.
	UnitRate int64
	// Escrow is the ledger account holding funds paid in by executing
	// buyers until they are settled to sellers.
	Escrow common.Address
	// Store persists state across restarts; nil means in-memory only.
	Store Store
	// EventLogPath, when set, mirrors the notification log to a JSONL
	// file.
	EventLogPath string
}

// Exchange is one market session. Operations run one logical step at a
// time; each mutating call persists its state change before returning.
type Exchange struct {
	logger *zap.Logger
	store  Store
	escrow common.Address

	book     *book.Book
	ledger   *settle.Ledger
	registry *installation.Registry
	events   *events.Log
}

// New builds an exchange and, when a store is configured, restores
// orders, accounts and installations from it. Orders reload in id order
// so the match scan order is reproduced exactly.
func New(cfg Config, logger *zap.Logger) (*Exchange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Escrow == (common.Address{}) {
		return nil, fmt.Errorf("escrow account must be set")
	}

	var evlog *events.Log
	if cfg.EventLogPath != "" {
		l, err := events.NewLogWithFile(logger, cfg.EventLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log %s: %w", cfg.EventLogPath, err)
		}
		evlog = l
	} else {
		evlog = events.NewLog(logger)
	}

	var accountStore settle.AccountStore
	var installStore installation.Store
	if cfg.Store != nil {
		accountStore = cfg.Store
		installStore = cfg.Store
	}

	ledger := settle.NewLedger(accountStore)
	gateway := settle.NewGateway(ledger, cfg.Escrow, logger)

	ex := &Exchange{
		logger:   logger,
		store:    cfg.Store,
		escrow:   cfg.Escrow,
		book:     book.New(gateway),
		ledger:   ledger,
		registry: installation.NewRegistry(cfg.UnitRate, installStore),
		events:   evlog,
	}

	if cfg.Store != nil {
		if err := ex.restore(); err != nil {
			return nil, err
		}
	}
	return ex, nil
}

func (ex *Exchange) restore() error {
	orders, err := ex.store.LoadOrders()
	if err != nil {
		return fmt.Errorf("failed to load orders: %w", err)
	}
	if err := ex.book.Restore(orders); err != nil {
		return err
	}

	accounts, err := ex.store.LoadAccounts()
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	ex.ledger.Restore(accounts)

	installs, err := ex.store.LoadInstallations()
	if err != nil {
		return fmt.Errorf("failed to load installations: %w", err)
	}
	if err := ex.registry.Restore(installs); err != nil {
		return err
	}

	ex.logger.Info("state_restored",
		zap.Int("orders", len(orders)),
		zap.Int("accounts", len(accounts)),
		zap.Int("installations", len(installs)),
	)
	return nil
}

// PlaceBuyOrder appends a buy order and returns its id.
func (ex *Exchange) PlaceBuyOrder(buyer common.Address, quantity, price int64) (int64, error) {
	id, err := ex.book.PlaceBuy(buyer, quantity, price)
	if err != nil {
		return 0, err
	}
	ex.afterPlace(id)
	return id, nil
}

// PlaceSellOrder appends a sell order and returns its id.
func (ex *Exchange) PlaceSellOrder(seller common.Address, quantity, price int64) (int64, error) {
	id, err := ex.book.PlaceSell(seller, quantity, price)
	if err != nil {
		return 0, err
	}
	ex.afterPlace(id)
	return id, nil
}

func (ex *Exchange) afterPlace(id int64) {
	o, err := ex.book.Get(id)
	if err != nil {
		return
	}
	ex.persistOrder(o)
	ex.events.Emit(events.NewOrderPlaced(o.ID, o.Buyer, o.Seller, o.Quantity, o.Price))
	ex.logger.Info("order_placed",
		zap.Int64("order_id", o.ID),
		zap.Int64("quantity", o.Quantity),
		zap.Int64("price", o.Price),
	)
}

// MatchOrder runs the first-fit scan for the given buy order. A nil
// error with no match notification means no candidate was found; that
// leaves the buy order unmatched and is not a failure.
func (ex *Exchange) MatchOrder(buyID int64) error {
	res, err := ex.book.Match(buyID)
	if err != nil {
		return err
	}
	if res == nil {
		ex.logger.Info("no_match_found", zap.Int64("order_id", buyID))
		return nil
	}

	ex.persistOrderID(res.BuyID)
	ex.persistOrderID(res.SellID)

	ex.events.Emit(events.NewMatchConfirmed(res.Buyer, res.Seller, res.Quantity, res.Price))
	ex.logger.Info("match_confirmed",
		zap.Int64("buy_id", res.BuyID),
		zap.Int64("sell_id", res.SellID),
		zap.Int64("quantity", res.Quantity),
		zap.Int64("settlement_price", res.Price),
	)
	return nil
}

// ExecuteOrder settles a matched order. The payment is first moved from
// the caller's ledger account into the market escrow, modelling funds
// arriving with the call. The book then validates and drives the
// settlement transfer to the seller.
//
// Validation and state-conflict errors refund the escrowed payment. A
// failed settlement transfer does not: those funds stay in escrow with
// no refund path, and any excess over the settlement amount is likewise
// retained on success. Both behaviors are deliberate carriers of the
// original settlement semantics; see DESIGN.md before "fixing" them.
func (ex *Exchange) ExecuteOrder(id, payment int64, caller common.Address) error {
	if err := ex.ledger.Move(caller, ex.escrow, payment); err != nil {
		return fmt.Errorf("payment not received: %w", err)
	}

	settlement, err := ex.book.Execute(id, payment, caller)
	if err != nil {
		if errors.Is(err, book.ErrTransferFailed) {
			// Recognized gap: the caller's payment is stranded in escrow.
			ex.logger.Warn("payment_stranded_in_escrow",
				zap.Int64("order_id", id),
				zap.Int64("payment", payment),
				zap.String("caller", caller.Hex()),
			)
			return err
		}
		if refundErr := ex.ledger.Move(ex.escrow, caller, payment); refundErr != nil {
			ex.logger.Error("refund_failed",
				zap.Int64("order_id", id),
				zap.String("caller", caller.Hex()),
				zap.Error(refundErr),
			)
		}
		return err
	}

	ex.persistOrderID(settlement.OrderID)
	ex.persistOrderID(settlement.MatchedID)

	ex.events.Emit(events.NewPaymentReceived(settlement.Buyer, payment))
	ex.events.Emit(events.NewPaymentSent(settlement.Seller, settlement.Amount))
	ex.logger.Info("order_executed",
		zap.Int64("order_id", settlement.OrderID),
		zap.Int64("matched_id", settlement.MatchedID),
		zap.Int64("amount", settlement.Amount),
	)
	return nil
}

// RegisterInstallation debits the registration payment from the owner's
// ledger account and records the installation.
func (ex *Exchange) RegisterInstallation(owner common.Address, capacity, payment int64) (int64, error) {
	if err := ex.ledger.Move(owner, ex.escrow, payment); err != nil {
		return 0, fmt.Errorf("registration payment not received: %w", err)
	}

	id, err := ex.registry.Register(owner, capacity, payment)
	if err != nil {
		if refundErr := ex.ledger.Move(ex.escrow, owner, payment); refundErr != nil {
			ex.logger.Error("refund_failed", zap.String("owner", owner.Hex()), zap.Error(refundErr))
		}
		return 0, err
	}

	ex.events.Emit(events.NewInstallationRegistered(id, owner, capacity))
	ex.logger.Info("installation_registered",
		zap.Int64("installation_id", id),
		zap.String("owner", owner.Hex()),
		zap.Int64("capacity", capacity),
	)
	return id, nil
}

// Deposit credits funds to a participant's ledger account.
func (ex *Exchange) Deposit(addr common.Address, amount int64) error {
	if err := ex.ledger.Deposit(addr, amount); err != nil {
		return err
	}
	ex.logger.Info("deposit", zap.String("address", addr.Hex()), zap.Int64("amount", amount))
	return nil
}

// Balance returns a participant's ledger balance.
func (ex *Exchange) Balance(addr common.Address) int64 {
	return ex.ledger.Balance(addr)
}

// Accounts returns a snapshot of every ledger account.
func (ex *Exchange) Accounts() []settle.Account {
	return ex.ledger.Accounts()
}

// Order returns a copy of the order with the given id.
func (ex *Exchange) Order(id int64) (book.Order, error) {
	return ex.book.Get(id)
}

// OrderCount returns the number of orders ever placed.
func (ex *Exchange) OrderCount() int64 {
	return ex.book.Len()
}

// Orders returns a snapshot of the whole book in id order.
func (ex *Exchange) Orders() []book.Order {
	return ex.book.Orders()
}

// Installation returns the installation with the given id.
func (ex *Exchange) Installation(id int64) (installation.Installation, error) {
	return ex.registry.Get(id)
}

// InstallationCount returns the number of registered installations.
func (ex *Exchange) InstallationCount() int64 {
	return ex.registry.Count()
}

// Ledger exposes the settlement ledger for administrative operations
// (freezing a misbehaving recipient, querying accounts).
func (ex *Exchange) Ledger() *settle.Ledger {
	return ex.ledger
}

// Subscribe returns a channel of market notifications.
func (ex *Exchange) Subscribe(buffer int) <-chan events.Event {
	return ex.events.Subscribe(buffer)
}

// EventHistory returns every notification emitted so far.
func (ex *Exchange) EventHistory() []events.Event {
	return ex.events.History()
}

// Close releases the event log's file sink. The store is owned by the
// caller and closed separately.
func (ex *Exchange) Close() error {
	return ex.events.Close()
}

func (ex *Exchange) persistOrderID(id int64) {
	o, err := ex.book.Get(id)
	if err != nil {
		return
	}
	ex.persistOrder(o)
}

func (ex *Exchange) persistOrder(o book.Order) {
	if ex.store == nil {
		return
	}
	if err := ex.store.SaveOrder(o); err != nil {
		ex.logger.Error("order_persist_failed", zap.Int64("order_id", o.ID), zap.Error(err))
	}
}
