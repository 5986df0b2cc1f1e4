package book

import "github.com/ethereum/go-ethereum/common"

// NoMatch is the sentinel for an order that has not been paired yet.
const NoMatch int64 = -1

// Order is one resting buy or sell intent in the book arena.
//
// Exactly one of Buyer/Seller is set at placement (the zero address
// means "no party"); the missing side is filled in when the order is
// matched, after which both parties stay fixed. Price is rewritten at
// most once, at match time, when a buy order adopts the matched sell
// order's quote as the settlement price.
type Order struct {
	ID           int64          `json:"id"` // arena index, never reused
	Buyer        common.Address `json:"buyer"`
	Seller       common.Address `json:"seller"`
	Quantity     int64          `json:"quantity"` // energy units
	Price        int64          `json:"price"`    // per unit
	Matched      bool           `json:"matched"`
	Executed     bool           `json:"executed"`
	MatchedOrder int64          `json:"matchedOrder"` // NoMatch until paired
}

// isBuy reports whether the order is a pure buy intent, i.e. the seller
// side has not been populated yet.
func (o *Order) isBuy() bool { return o.Seller == (common.Address{}) }

// isSell reports whether the order is a pure sell intent.
func (o *Order) isSell() bool { return o.Buyer == (common.Address{}) }

// SettlementAmount returns what the buyer owes once the order is
// matched: quantity times the settlement price.
func (o *Order) SettlementAmount() int64 { return o.Quantity * o.Price }
