// Package api exposes the market over REST and streams notifications
// over WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/openwatt/gridmarket/pkg/market"
	"github.com/openwatt/gridmarket/pkg/market/book"
	"github.com/openwatt/gridmarket/pkg/market/installation"
	"github.com/openwatt/gridmarket/pkg/market/settle"
)

// Server handles the REST API and WebSocket connections for one
// exchange instance.
type Server struct {
	ex     *market.Exchange
	router *mux.Router
	hub    *Hub
	logger *zap.Logger
}

// NewServer creates an API server for the given exchange.
func NewServer(ex *market.Exchange, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order book
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders/count", s.handleOrderCount).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}/match", s.handleMatchOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/execute", s.handleExecuteOrder).Methods("POST")

	// Installations
	api.HandleFunc("/installations", s.handleRegisterInstallation).Methods("POST")
	api.HandleFunc("/installations/count", s.handleInstallationCount).Methods("GET")
	api.HandleFunc("/installations/{id:[0-9]+}", s.handleGetInstallation).Methods("GET")

	// Accounts
	api.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	api.HandleFunc("/accounts/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")

	// Event stream
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start begins serving on addr. Blocks until the listener fails.
func (s *Server) Start(addr string, allowedOrigins []string) error {
	go s.hub.Run(s.ex.Subscribe(256))

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.logger.Info("api_server_starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// Handler returns the HTTP handler, for tests and custom servers.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	party, ok := parseAddress(w, req.Party)
	if !ok {
		return
	}

	var (
		id  int64
		err error
	)
	switch req.Side {
	case "buy":
		id, err = s.ex.PlaceBuyOrder(party, req.Quantity, req.Price)
	case "sell":
		id, err = s.ex.PlaceSellOrder(party, req.Quantity, req.Price)
	default:
		respondError(w, http.StatusBadRequest, "invalid side", "side must be \"buy\" or \"sell\"")
		return
	}
	if err != nil {
		respondMarketError(w, err)
		return
	}

	respondJSON(w, PlaceOrderResponse{OrderID: id})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.ex.Orders()
	out := make([]OrderInfo, len(orders))
	for i := range orders {
		out[i] = orderInfo(orders[i])
	}
	respondJSON(w, out)
}

func (s *Server) handleOrderCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, OrderCountResponse{Count: s.ex.OrderCount()})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	o, err := s.ex.Order(id)
	if err != nil {
		respondMarketError(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleMatchOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.ex.MatchOrder(id); err != nil {
		respondMarketError(w, err)
		return
	}

	// The call succeeded either way; report whether a pairing happened.
	o, err := s.ex.Order(id)
	if err != nil {
		respondMarketError(w, err)
		return
	}
	status := "no-match"
	if o.Matched {
		status = "matched"
	}
	respondJSON(w, MatchResponse{Status: status})
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req ExecuteOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}

	if err := s.ex.ExecuteOrder(id, req.Payment, caller); err != nil {
		respondMarketError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "executed"})
}

func (s *Server) handleRegisterInstallation(w http.ResponseWriter, r *http.Request) {
	var req RegisterInstallationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(w, req.Owner)
	if !ok {
		return
	}

	id, err := s.ex.RegisterInstallation(owner, req.Capacity, req.Payment)
	if err != nil {
		respondMarketError(w, err)
		return
	}
	respondJSON(w, RegisterInstallationResponse{InstallationID: id})
}

func (s *Server) handleInstallationCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, InstallationCountResponse{Count: s.ex.InstallationCount()})
}

func (s *Server) handleGetInstallation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	inst, err := s.ex.Installation(id)
	if err != nil {
		respondMarketError(w, err)
		return
	}
	respondJSON(w, InstallationInfo{
		ID:        inst.ID,
		Owner:     inst.Owner.Hex(),
		Capacity:  inst.Capacity,
		Installed: inst.Installed,
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}

	if err := s.ex.Deposit(addr, req.Amount); err != nil {
		respondMarketError(w, err)
		return
	}
	respondJSON(w, AccountInfo{Address: addr.Hex(), Balance: s.ex.Balance(addr)})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.ex.Accounts()
	out := make([]AccountInfo, len(accounts))
	for i, acc := range accounts {
		out[i] = AccountInfo{Address: acc.Address.Hex(), Balance: acc.Balance}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}
	respondJSON(w, AccountInfo{Address: addr.Hex(), Balance: s.ex.Balance(addr)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func orderInfo(o book.Order) OrderInfo {
	info := OrderInfo{
		ID:       o.ID,
		Quantity: o.Quantity,
		Price:    o.Price,
		Matched:  o.Matched,
		Executed: o.Executed,
	}
	if o.Buyer != (common.Address{}) {
		info.Buyer = o.Buyer.Hex()
	}
	if o.Seller != (common.Address{}) {
		info.Seller = o.Seller.Hex()
	}
	if o.MatchedOrder != book.NoMatch {
		matched := o.MatchedOrder
		info.MatchedOrder = &matched
	}
	return info
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id", err.Error())
		return 0, false
	}
	return id, true
}

func parseAddress(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// respondMarketError maps the market's error taxonomy onto HTTP status
// codes: validation problems are 400s (404 for unknown records), stale
// state assumptions are 409, and a failed settlement transfer is 502
// because the failure sits past the validation boundary.
func respondMarketError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, book.ErrUnknownOrder), errors.Is(err, installation.ErrNotInstalled):
		status = http.StatusNotFound
	case errors.Is(err, book.ErrAlreadyMatched),
		errors.Is(err, book.ErrNotMatched),
		errors.Is(err, book.ErrAlreadyExecuted):
		status = http.StatusConflict
	case errors.Is(err, book.ErrTransferFailed):
		status = http.StatusBadGateway
	case errors.Is(err, book.ErrInvalidOrder),
		errors.Is(err, book.ErrNotBuyOrder),
		errors.Is(err, book.ErrNotBuyer),
		errors.Is(err, book.ErrInsufficientPayment),
		errors.Is(err, installation.ErrInvalidCapacity),
		errors.Is(err, installation.ErrInvalidOwner),
		errors.Is(err, installation.ErrInsufficientPayment),
		errors.Is(err, settle.ErrInvalidAmount),
		errors.Is(err, settle.ErrInsufficientFunds),
		errors.Is(err, settle.ErrAccountFrozen):
		status = http.StatusBadRequest
	}
	respondError(w, status, http.StatusText(status), err.Error())
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: message})
}
