package book

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Gateway moves a settlement amount to a recipient. Implementations
// report failure with a false return and must not panic across this
// boundary; the book checks the result and aborts its own state change
// when the transfer fails.
type Gateway interface {
	Transfer(to common.Address, amount int64) bool
}

// GatewayFunc adapts a plain function to the Gateway interface.
type GatewayFunc func(to common.Address, amount int64) bool

func (f GatewayFunc) Transfer(to common.Address, amount int64) bool { return f(to, amount) }

// MatchResult describes a confirmed pairing between a buy and a sell
// order. Price is the settlement price: the sell order's original
// quote, adopted by the buy order.
type MatchResult struct {
	BuyID    int64
	SellID   int64
	Buyer    common.Address
	Seller   common.Address
	Quantity int64
	Price    int64
}

// Settlement describes a completed funds move for a matched pair.
type Settlement struct {
	OrderID   int64
	MatchedID int64
	Buyer     common.Address
	Seller    common.Address
	Amount    int64 // quantity × settlement price
}

// Book owns the order arena and the matching/settlement state machine.
// The arena is append-only: orders are never removed and ids are never
// reused, so an order's id is its position in submission order. That
// ordering also determines the scan order for Match and must be
// preserved exactly across restarts.
//
// One logical operation runs at a time; the mutex serializes Place,
// Match and Execute so no intermediate state is ever observable.
type Book struct {
	mu      sync.Mutex
	orders  []*Order
	gateway Gateway
}

// New creates an empty book settling through the given gateway.
func New(gw Gateway) *Book {
	return &Book{gateway: gw}
}

// PlaceBuy appends a buy order for quantity units at the given bid
// price and returns its id. No payment is taken at placement; quantity
// and price are commitments, not deposits.
func (b *Book) PlaceBuy(buyer common.Address, quantity, price int64) (int64, error) {
	return b.place(buyer, common.Address{}, quantity, price)
}

// PlaceSell appends a sell order quoting the given ask price.
func (b *Book) PlaceSell(seller common.Address, quantity, price int64) (int64, error) {
	return b.place(common.Address{}, seller, quantity, price)
}

func (b *Book) place(buyer, seller common.Address, quantity, price int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, quantity)
	}
	if price < 0 {
		return 0, fmt.Errorf("%w: price cannot be negative, got %d", ErrInvalidOrder, price)
	}
	if buyer == (common.Address{}) && seller == (common.Address{}) {
		return 0, fmt.Errorf("%w: initiating party is unset", ErrInvalidOrder)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o := &Order{
		ID:           int64(len(b.orders)),
		Buyer:        buyer,
		Seller:       seller,
		Quantity:     quantity,
		Price:        price,
		MatchedOrder: NoMatch,
	}
	b.orders = append(b.orders, o)
	return o.ID, nil
}

// Match pairs the buy order buyID with the first compatible sell order
// in insertion order: a pure sell, not yet matched, with exactly equal
// quantity and a quote no higher than the bid. On a hit both legs are
// linked, marked matched, and the buy order's price is overwritten with
// the sell order's quote: the buyer pays the seller's price, not their
// own bid. The scan stops at the first candidate; there is no partial
// matching and no best-price selection.
//
// A nil, nil return means no candidate was found and the buy order
// remains unmatched; that is a no-op, not an error.
func (b *Book) Match(buyID int64) (*MatchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buy, err := b.get(buyID)
	if err != nil {
		return nil, err
	}
	if buy.Executed {
		return nil, fmt.Errorf("%w: order %d", ErrAlreadyExecuted, buyID)
	}
	if !buy.isBuy() {
		if buy.Matched {
			return nil, fmt.Errorf("%w: order %d already has a counterparty", ErrAlreadyMatched, buyID)
		}
		return nil, fmt.Errorf("%w: order %d", ErrNotBuyOrder, buyID)
	}

	for _, sell := range b.orders {
		if !sell.isSell() || sell.Matched {
			continue
		}
		if sell.Quantity != buy.Quantity || sell.Price > buy.Price {
			continue
		}

		buy.Seller = sell.Seller
		sell.Buyer = buy.Buyer
		buy.MatchedOrder = sell.ID
		sell.MatchedOrder = buy.ID
		buy.Matched = true
		sell.Matched = true
		buy.Price = sell.Price // settlement price

		return &MatchResult{
			BuyID:    buy.ID,
			SellID:   sell.ID,
			Buyer:    buy.Buyer,
			Seller:   buy.Seller,
			Quantity: buy.Quantity,
			Price:    buy.Price,
		}, nil
	}

	return nil, nil
}

// Execute finalizes a matched order: it moves quantity × settlement
// price from buyer to seller through the gateway and flips both legs to
// executed in the same critical section, so the pair is never partially
// executed from the caller's perspective.
//
// Payment must be strictly greater than the settlement amount; any
// excess is retained, not refunded. A failed transfer aborts the call
// with no order-state change, though funds the caller already paid in
// stay in escrow. Both are long-standing gaps in the settlement
// semantics, kept so observable behavior does not change.
func (b *Book) Execute(id, payment int64, caller common.Address) (*Settlement, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, err := b.get(id)
	if err != nil {
		return nil, err
	}
	if !o.Matched {
		return nil, fmt.Errorf("%w: order %d", ErrNotMatched, id)
	}
	if o.Executed {
		return nil, fmt.Errorf("%w: order %d", ErrAlreadyExecuted, id)
	}
	if caller != o.Buyer {
		return nil, fmt.Errorf("%w: only %s may execute order %d", ErrNotBuyer, o.Buyer.Hex(), id)
	}
	amount := o.SettlementAmount()
	if payment <= amount {
		return nil, fmt.Errorf("%w: need more than %d, got %d", ErrInsufficientPayment, amount, payment)
	}

	counterpart := b.orders[o.MatchedOrder]

	if !b.gateway.Transfer(o.Seller, amount) {
		return nil, fmt.Errorf("%w: %d to %s", ErrTransferFailed, amount, o.Seller.Hex())
	}

	o.Executed = true
	counterpart.Executed = true

	return &Settlement{
		OrderID:   o.ID,
		MatchedID: counterpart.ID,
		Buyer:     o.Buyer,
		Seller:    o.Seller,
		Amount:    amount,
	}, nil
}

// Len returns the number of orders ever placed.
func (b *Book) Len() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.orders))
}

// Get returns a copy of the order with the given id.
func (b *Book) Get(id int64) (Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, err := b.get(id)
	if err != nil {
		return Order{}, err
	}
	return *o, nil
}

// Orders returns a snapshot copy of the whole arena in id order.
func (b *Book) Orders() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = *o
	}
	return out
}

// Restore rebuilds the arena from persisted orders. Orders must arrive
// sorted by id with no holes so that scan order is reproduced exactly.
func (b *Book) Restore(orders []Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.orders) != 0 {
		return fmt.Errorf("cannot restore into a non-empty book (%d orders)", len(b.orders))
	}
	for i := range orders {
		if orders[i].ID != int64(i) {
			return fmt.Errorf("order id gap during restore: position %d holds id %d", i, orders[i].ID)
		}
		o := orders[i]
		b.orders = append(b.orders, &o)
	}
	return nil
}

// get assumes the lock is held.
func (b *Book) get(id int64) (*Order, error) {
	if id < 0 || id >= int64(len(b.orders)) {
		return nil, fmt.Errorf("%w: id %d out of range [0,%d)", ErrUnknownOrder, id, len(b.orders))
	}
	return b.orders[id], nil
}
