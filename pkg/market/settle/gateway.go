package settle

import (
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/openwatt/gridmarket/pkg/market/book"
)

// Gateway pays settlement amounts out of the market escrow account.
// It holds no state of its own beyond the ledger reference: Transfer is
// a single blocking call whose outcome the book checks synchronously.
type Gateway struct {
	ledger *Ledger
	escrow common.Address
	logger *zap.Logger
}

// NewGateway creates a gateway paying out of the given escrow account.
func NewGateway(ledger *Ledger, escrow common.Address, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{ledger: ledger, escrow: escrow, logger: logger}
}

// Transfer moves amount from escrow to the recipient. Failure (escrow
// underfunded, recipient rejecting funds) is reported with a false
// return and never escapes as a panic, so a failed transfer can never
// leave the order book in an executed state.
func (g *Gateway) Transfer(to common.Address, amount int64) bool {
	if err := g.ledger.Move(g.escrow, to, amount); err != nil {
		g.logger.Warn("settlement_transfer_failed",
			zap.String("to", to.Hex()),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return false
	}
	g.logger.Info("settlement_transfer",
		zap.String("to", to.Hex()),
		zap.Int64("amount", amount),
	)
	return true
}

var _ book.Gateway = (*Gateway)(nil)
