// Package events is the market's one-way notification surface. The
// core appends events and never waits for, or fails because of, a
// consumer.
package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"
)

// Type tags one kind of market notification.
type Type string

const (
	TypeOrderPlaced            Type = "order-placed"
	TypeMatchConfirmed         Type = "match-confirmed"
	TypePaymentSent            Type = "payment-sent"
	TypePaymentReceived        Type = "payment-received"
	TypeInstallationRegistered Type = "installation-registered"
)

// Event is one observable market notification. IDs are ULIDs, so the
// lexicographic order of ids is also emission order.
type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds

	Buyer          string `json:"buyer,omitempty"`
	Seller         string `json:"seller,omitempty"`
	Party          string `json:"party,omitempty"` // payer or recipient on payment events
	OrderID        int64  `json:"orderId,omitempty"`
	InstallationID int64  `json:"installationId,omitempty"`
	Quantity       int64  `json:"quantity,omitempty"`
	Price          int64  `json:"price,omitempty"`
	Amount         int64  `json:"amount,omitempty"`
	Capacity       int64  `json:"capacity,omitempty"`
}

func newEvent(t Type) Event {
	return Event{
		ID:        ulid.Make().String(),
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewOrderPlaced records a new resting order.
func NewOrderPlaced(orderID int64, buyer, seller common.Address, quantity, price int64) Event {
	e := newEvent(TypeOrderPlaced)
	e.OrderID = orderID
	e.Buyer = hexOrEmpty(buyer)
	e.Seller = hexOrEmpty(seller)
	e.Quantity = quantity
	e.Price = price
	return e
}

// NewMatchConfirmed records a confirmed pairing at the settlement price.
func NewMatchConfirmed(buyer, seller common.Address, quantity, price int64) Event {
	e := newEvent(TypeMatchConfirmed)
	e.Buyer = buyer.Hex()
	e.Seller = seller.Hex()
	e.Quantity = quantity
	e.Price = price
	return e
}

// NewPaymentSent records settlement funds reaching a recipient.
func NewPaymentSent(recipient common.Address, amount int64) Event {
	e := newEvent(TypePaymentSent)
	e.Party = recipient.Hex()
	e.Amount = amount
	return e
}

// NewPaymentReceived records funds arriving from a payer.
func NewPaymentReceived(payer common.Address, amount int64) Event {
	e := newEvent(TypePaymentReceived)
	e.Party = payer.Hex()
	e.Amount = amount
	return e
}

// NewInstallationRegistered records a new capacity record.
func NewInstallationRegistered(id int64, owner common.Address, capacity int64) Event {
	e := newEvent(TypeInstallationRegistered)
	e.InstallationID = id
	e.Party = owner.Hex()
	e.Capacity = capacity
	return e
}

func hexOrEmpty(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}
