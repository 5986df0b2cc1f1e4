package api

// REST request/response types. Prices and amounts are integers in the
// market's smallest unit; quantities are energy units.

// PlaceOrderRequest is the payload for POST /api/v1/orders.
type PlaceOrderRequest struct {
	Side     string `json:"side"`  // "buy" or "sell"
	Party    string `json:"party"` // initiator address (0x...)
	Quantity int64  `json:"quantity"`
	Price    int64  `json:"price"`
}

// PlaceOrderResponse returns the assigned order id.
type PlaceOrderResponse struct {
	OrderID int64 `json:"orderId"`
}

// MatchResponse reports the outcome of a match attempt. "no-match" is a
// successful call that found no candidate.
type MatchResponse struct {
	Status string `json:"status"` // "matched" or "no-match"
}

// ExecuteOrderRequest is the payload for POST /api/v1/orders/{id}/execute.
type ExecuteOrderRequest struct {
	Caller  string `json:"caller"` // must be the order's buyer
	Payment int64  `json:"payment"`
}

// OrderInfo is the read model for one order.
type OrderInfo struct {
	ID           int64  `json:"id"`
	Buyer        string `json:"buyer,omitempty"`
	Seller       string `json:"seller,omitempty"`
	Quantity     int64  `json:"quantity"`
	Price        int64  `json:"price"`
	Matched      bool   `json:"matched"`
	Executed     bool   `json:"executed"`
	MatchedOrder *int64 `json:"matchedOrder,omitempty"` // absent until matched
}

// OrderCountResponse is the read model for the order count.
type OrderCountResponse struct {
	Count int64 `json:"count"`
}

// RegisterInstallationRequest is the payload for POST /api/v1/installations.
type RegisterInstallationRequest struct {
	Owner    string `json:"owner"`
	Capacity int64  `json:"capacity"`
	Payment  int64  `json:"payment"`
}

// RegisterInstallationResponse returns the assigned installation id.
type RegisterInstallationResponse struct {
	InstallationID int64 `json:"installationId"`
}

// InstallationInfo is the read model for one installation.
type InstallationInfo struct {
	ID        int64  `json:"id"`
	Owner     string `json:"owner"`
	Capacity  int64  `json:"capacity"`
	Installed bool   `json:"installed"`
}

// InstallationCountResponse is the read model for the installation count.
type InstallationCountResponse struct {
	Count int64 `json:"count"`
}

// DepositRequest is the payload for POST /api/v1/accounts/deposit.
type DepositRequest struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// AccountInfo is the read model for one ledger account.
type AccountInfo struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WSSubscribeRequest is sent by a WebSocket client; the only supported
// op is "subscribe" with event type names, or no message at all to
// receive everything.
type WSSubscribeRequest struct {
	Op    string   `json:"op"`
	Types []string `json:"types"`
}
