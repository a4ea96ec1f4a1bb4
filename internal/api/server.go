// Package api is the HTTP front end of the marketplace.
// GET endpoints are public (read-only observation).
// Trade POST endpoints are rate-limited per IP.
// Admin POST endpoints require a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/bazaar/internal/account"
	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/engine"
	"github.com/talgya/bazaar/internal/market"
	"github.com/talgya/bazaar/internal/persistence"
	"github.com/talgya/bazaar/internal/wares"
)

// defaultStartBalance seeds newly opened accounts.
const defaultStartBalance = 1000

// Server serves the marketplace over HTTP.
type Server struct {
	Market *engine.Marketplace
	Eng    *engine.Engine
	Ledger *account.Ledger
	DB     *persistence.DB
	Cfg    *config.Config
	Port   int
	// AdminKey is the bearer token for admin endpoints. Empty disables
	// the admin plane.
	AdminKey string
}

// routes builds the full handler tree.
func (s *Server) routes() http.Handler {
	tradeLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/wares", s.handleWares)
	mux.HandleFunc("GET /api/v1/ware/{name}", s.handleWare)
	mux.HandleFunc("GET /api/v1/check", s.handleCheck)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	mux.HandleFunc("POST /api/v1/account", Limit(tradeLimiter, s.handleOpenAccount))
	mux.HandleFunc("POST /api/v1/trade/buy", Limit(tradeLimiter, s.handleBuy))
	mux.HandleFunc("POST /api/v1/trade/sell", Limit(tradeLimiter, s.handleSell))
	mux.HandleFunc("POST /api/v1/trade/sellall", Limit(tradeLimiter, s.handleSellAll))

	mux.HandleFunc("POST /api/v1/admin/ware", s.admin(s.handleCreateWare))
	mux.HandleFunc("DELETE /api/v1/admin/ware/{name}", s.admin(s.handleRemoveWare))
	mux.HandleFunc("POST /api/v1/admin/stock", s.admin(s.handleSetStock))

	return mux
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	mux := s.routes()
	addr := fmt.Sprintf(":%d", s.Port)
	go func() {
		slog.Info("api server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("api server stopped", "error", err)
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// admin guards a handler with the bearer token.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin plane disabled")
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.AdminKey {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.Market.Reg.Statistics()
	writeJSON(w, http.StatusOK, map[string]any{
		"tick":    s.Eng.Tick(),
		"speed":   s.Eng.Speed(),
		"running": s.Eng.Running(),
		"wares":   stats.WareCount,
	})
}

func (s *Server) handleWares(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Market.Reg.SnapshotAll())
}

func (s *Server) handleWare(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	snap, ok := s.Market.Reg.SnapshotWare(name)
	if !ok {
		msg := fmt.Sprintf("unknown ware %q", name)
		if hint := s.Market.Reg.Suggest(name); hint != "" {
			msg = fmt.Sprintf("%s (did you mean %q?)", msg, hint)
		}
		writeError(w, http.StatusNotFound, msg)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("ware")
	quantity := int64(1)
	if qs := r.URL.Query().Get("quantity"); qs != "" {
		q, err := strconv.ParseInt(qs, 10, 64)
		if err != nil || q < 0 {
			writeError(w, http.StatusBadRequest, "invalid quantity")
			return
		}
		quantity = q
	}
	quote, err := s.Market.Reg.Check(name, quantity)
	if err != nil {
		msg := err.Error()
		if hint := s.Market.Reg.Suggest(name); hint != "" {
			msg = fmt.Sprintf("%s (did you mean %q?)", msg, hint)
		}
		writeError(w, http.StatusNotFound, msg)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.Market.Reg.Statistics()
	writeJSON(w, http.StatusOK, map[string]any{
		"wareCount":           stats.WareCount,
		"averageBasePrice":    stats.AverageBasePrice,
		"medianBasePrice":     stats.MedianBasePrice,
		"medianStartQuantity": stats.MedianStartQuantity,
		"averageBasePriceStr": humanize.CommafWithDigits(stats.AverageBasePrice, 2),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if n, err := strconv.Atoi(ls); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	buffered := s.Market.RecentEvents(limit)
	if len(buffered) < limit && s.DB != nil {
		if saved, err := s.DB.RecentEvents(limit - len(buffered)); err == nil {
			buffered = append(saved, buffered...)
		}
	}
	writeJSON(w, http.StatusOK, buffered)
}

func (s *Server) handleOpenAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"playerID"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "playerID is required")
		return
	}
	e := s.Ledger.Open(req.PlayerID, defaultStartBalance)
	writeJSON(w, http.StatusOK, map[string]any{"accountID": e.ID, "balance": e.Balance})
}

type tradeRequest struct {
	PlayerID  string  `json:"playerID"`
	AccountID string  `json:"accountID"`
	Ware      string  `json:"ware"`
	Quantity  int64   `json:"quantity"`
	// UnitPriceLimit is the max acceptable unit price on buys and the
	// minimum on sells. Zero disables the guard.
	UnitPriceLimit float64 `json:"unitPriceLimit"`
	PriceMult      float64 `json:"priceMult"`
}

func (s *Server) tradeContext(w http.ResponseWriter, r *http.Request) (*tradeRequest, *account.Entry, bool) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, nil, false
	}
	if req.AccountID == "" {
		req.AccountID = req.PlayerID
	}
	acct, err := s.Ledger.Get(req.AccountID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, nil, false
	}
	return &req, acct, true
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	req, acct, ok := s.tradeContext(w, r)
	if !ok {
		return
	}
	res, err := s.Market.Reg.Buy(req.PlayerID, acct, req.Ware, req.Quantity, req.UnitPriceLimit, req.PriceMult)
	if err != nil {
		s.tradeError(w, req.Ware, err)
		return
	}
	s.Market.Emit(s.Eng.Tick(), "trade",
		fmt.Sprintf("%s bought %d %s for %s", req.PlayerID, res.Quantity, res.WareID,
			humanize.CommafWithDigits(res.TotalPrice, 2)))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	req, acct, ok := s.tradeContext(w, r)
	if !ok {
		return
	}
	res, err := s.Market.Reg.Sell(req.PlayerID, acct, req.Ware, req.Quantity, req.UnitPriceLimit, req.PriceMult)
	if err != nil {
		s.tradeError(w, req.Ware, err)
		return
	}
	s.Market.Emit(s.Eng.Tick(), "trade",
		fmt.Sprintf("%s sold %d %s for %s", req.PlayerID, res.Quantity, res.WareID,
			humanize.CommafWithDigits(res.TotalPrice, 2)))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSellAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID  string                  `json:"playerID"`
		AccountID string                  `json:"accountID"`
		Inventory []market.InventoryEntry `json:"inventory"`
		PriceMult float64                 `json:"priceMult"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AccountID == "" {
		req.AccountID = req.PlayerID
	}
	acct, err := s.Ledger.Get(req.AccountID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	res, err := s.Market.Reg.SellAll(req.PlayerID, acct, req.Inventory, req.PriceMult)
	if err != nil {
		s.tradeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// tradeError maps trade-validation failures to HTTP statuses, attaching a
// nearest-name hint for unknown wares.
func (s *Server) tradeError(w http.ResponseWriter, ware string, err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, market.ErrUnknownWare):
		if hint := s.Market.Reg.Suggest(ware); hint != "" {
			msg = fmt.Sprintf("%s (did you mean %q?)", msg, hint)
		}
		writeError(w, http.StatusNotFound, msg)
	case errors.Is(err, market.ErrNoPermission):
		writeError(w, http.StatusForbidden, msg)
	case errors.Is(err, market.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, msg)
	default:
		writeError(w, http.StatusBadRequest, msg)
	}
}

type createWareRequest struct {
	Type          string   `json:"type"`
	WareID        string   `json:"wareID"`
	Alias         string   `json:"alias"`
	PriceBase     float64  `json:"priceBase"`
	Level         int      `json:"level"`
	Quantity      *int64   `json:"quantity"`
	Yield         int      `json:"yield"`
	ComponentsIDs []string `json:"componentsIDs"`
	Ratios        []int    `json:"ratios"`
}

func (s *Server) handleCreateWare(w http.ResponseWriter, r *http.Request) {
	var req createWareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	kind, ok := wares.KindFromString(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown ware type %q", req.Type))
		return
	}

	nw := &wares.Ware{
		ID:              req.WareID,
		Alias:           req.Alias,
		Kind:            kind,
		Level:           config.Level(req.Level),
		BasePrice:       req.PriceBase,
		Yield:           req.Yield,
		ComponentIDs:    req.ComponentsIDs,
		ComponentRatios: req.Ratios,
	}
	switch kind {
	case wares.Untradeable:
		nw.Quantity = wares.QuantityInfinite
	case wares.Linked:
		// computed live
	default:
		if req.Quantity != nil {
			nw.Quantity = *req.Quantity
		} else {
			nw.Quantity = s.Cfg.QuanStartBase[nw.Level]
		}
	}
	if kind != wares.Material && kind != wares.Untradeable {
		nw.BasePrice = math.NaN() // derived from components
	}

	if err := s.Market.Reg.UpsertWare(nw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, _ := s.Market.Reg.SnapshotWare(nw.ID)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRemoveWare(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	id := s.Market.Reg.TranslateWareID(name)
	if id == "" {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown ware %q", name))
		return
	}
	if err := s.Market.Reg.RemoveWare(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

func (s *Server) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ware     string `json:"ware"`
		Quantity *int64 `json:"quantity"`
		Level    string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var err error
	switch {
	case req.Quantity != nil:
		err = s.Market.Reg.SetStockNumeric(req.Ware, *req.Quantity)
	case req.Level != "":
		err = s.Market.Reg.SetStockNamed(req.Ware, req.Level)
	default:
		writeError(w, http.StatusBadRequest, "quantity or level is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, _ := s.Market.Reg.SnapshotWare(req.Ware)
	writeJSON(w, http.StatusOK, snap)
}
