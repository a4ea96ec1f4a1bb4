// Buy/sell/check operations. Every trade is a compute-then-apply sequence
// under the registry lock: price and feasible quantity are settled against a
// consistent stock snapshot, validation failures leave no partial mutation.
package market

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/talgya/bazaar/internal/account"
	"github.com/talgya/bazaar/internal/wares"
)

// Trade-validation failures. These are user-facing no-ops, never crashes.
var (
	ErrUnknownWare       = errors.New("ware does not exist")
	ErrUntradeable       = errors.New("ware is not tradeable")
	ErrNoPermission      = errors.New("account access denied")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPriceLimit        = errors.New("price outside acceptable bound")
	ErrPriceFloor        = errors.New("sale refused at price floor")
	ErrBadQuantity       = errors.New("quantity must be positive")
)

// TradeResult reports one realized trade.
type TradeResult struct {
	ReceiptID string  `json:"receiptID"`
	WareID    string  `json:"wareID"`
	Quantity  int64   `json:"quantity"`
	// Manufactured counts units synthesized by an out-of-stock
	// manufacturing contract, included in Quantity.
	Manufactured int64   `json:"manufactured,omitempty"`
	TotalPrice   float64 `json:"totalPrice"`
	UnitPrice    float64 `json:"unitPrice"`
}

// Buy purchases quantity units of a ware for the given account. The fill is
// capped by available stock unless an out-of-stock manufacturing contract
// covers the shortfall. maxUnitPrice <= 0 disables the price guard;
// priceMult scales the total (transaction-fee hook for front ends).
func (r *Registry) Buy(playerID string, acct account.Account, wareID string, quantity int64, maxUnitPrice, priceMult float64) (TradeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.tradeTarget(playerID, acct, wareID)
	if err != nil {
		return TradeResult{}, err
	}
	if quantity <= 0 {
		return TradeResult{}, ErrBadQuantity
	}
	if priceMult <= 0 {
		priceMult = 1.0
	}

	available := w.Stock()
	fromStock := quantity
	if fromStock > available {
		fromStock = available
	}
	synthesized := int64(0)
	if fromStock < quantity && r.cfg.OutOfStockManufacture && w.Manufactured() {
		if r.manufacturable(w, make(map[string]bool)) {
			synthesized = quantity - fromStock
		}
	}
	filled := fromStock + synthesized
	if filled <= 0 {
		return TradeResult{}, fmt.Errorf("%w: %s", ErrInsufficientStock, w.ID)
	}

	total := 0.0
	if fromStock > 0 {
		total += r.priceLocked(w, fromStock, CurrentBuy)
	}
	if synthesized > 0 {
		perUnit := r.priceLocked(w, 0, CeilingBuy) * r.cfg.ManufacturingPremium
		total += perUnit * float64(synthesized)
	}
	total = truncPrice(total * priceMult)
	if math.IsNaN(total) {
		return TradeResult{}, fmt.Errorf("%w: %s has no usable price", ErrUntradeable, w.ID)
	}

	unit := total / float64(filled)
	if maxUnitPrice > 0 && unit > maxUnitPrice {
		return TradeResult{}, fmt.Errorf("%w: unit price %.2f above limit %.2f", ErrPriceLimit, unit, maxUnitPrice)
	}
	if acct.Money() < total {
		return TradeResult{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, total, acct.Money())
	}

	acct.SetMoney(acct.Money() - total)
	if fromStock > 0 {
		w.AddStock(-fromStock, r.cfg.AllowNegativeStock)
	}

	return TradeResult{
		ReceiptID:    uuid.NewString(),
		WareID:       w.ID,
		Quantity:     filled,
		Manufactured: synthesized,
		TotalPrice:   total,
		UnitPrice:    truncPrice(unit),
	}, nil
}

// Sell sells quantity units of a ware, crediting the account. Under
// no-garbage-disposing the fill stops exactly at the floor boundary: no
// sold unit may push the price to or below the configured floor.
// minUnitPrice <= 0 disables the price guard.
func (r *Registry) Sell(playerID string, acct account.Account, wareID string, quantity int64, minUnitPrice, priceMult float64) (TradeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, err := r.tradeTarget(playerID, acct, wareID)
	if err != nil {
		return TradeResult{}, err
	}
	if quantity <= 0 {
		return TradeResult{}, ErrBadQuantity
	}
	if priceMult <= 0 {
		priceMult = 1.0
	}

	fill := quantity
	if r.cfg.NoGarbageDisposing {
		room := r.floorBoundStock(w) - w.Stock()
		if room <= 0 {
			return TradeResult{}, fmt.Errorf("%w: %s", ErrPriceFloor, w.ID)
		}
		if fill > room {
			fill = room
		}
	}

	total := truncPrice(r.priceLocked(w, fill, CurrentSell) * priceMult)
	if math.IsNaN(total) {
		return TradeResult{}, fmt.Errorf("%w: %s has no usable price", ErrUntradeable, w.ID)
	}
	unit := total / float64(fill)
	if minUnitPrice > 0 && unit < minUnitPrice {
		return TradeResult{}, fmt.Errorf("%w: unit price %.2f below limit %.2f", ErrPriceLimit, unit, minUnitPrice)
	}

	acct.SetMoney(acct.Money() + total)
	w.AddStock(fill, r.cfg.AllowNegativeStock)

	return TradeResult{
		ReceiptID:  uuid.NewString(),
		WareID:     w.ID,
		Quantity:   fill,
		TotalPrice: total,
		UnitPrice:  truncPrice(unit),
	}, nil
}

// InventoryEntry is one (ware, quantity) pair handed to SellAll.
type InventoryEntry struct {
	WareID   string `json:"wareID"`
	Quantity int64  `json:"quantity"`
}

// SellAllResult aggregates a sell-all sweep.
type SellAllResult struct {
	ReceiptID  string  `json:"receiptID"`
	WaresSold  int     `json:"waresSold"`
	UnitsSold  int64   `json:"unitsSold"`
	TotalPrice float64 `json:"totalPrice"`
}

// SellAll sells each inventory entry that is individually profitable (its
// fill fetches a positive total at current prices) and reports one
// aggregate. Unknown or untradeable entries are skipped, not fatal.
func (r *Registry) SellAll(playerID string, acct account.Account, inventory []InventoryEntry, priceMult float64) (SellAllResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if acct == nil {
		return SellAllResult{}, ErrNoPermission
	}
	if !acct.HasAccess(playerID) {
		return SellAllResult{}, fmt.Errorf("%w: player %s", ErrNoPermission, playerID)
	}
	if priceMult <= 0 {
		priceMult = 1.0
	}

	res := SellAllResult{ReceiptID: uuid.NewString()}
	for _, entry := range inventory {
		w := r.wares[r.translateLocked(entry.WareID)]
		if w == nil || !w.Tradeable() || entry.Quantity <= 0 {
			continue
		}

		fill := entry.Quantity
		if r.cfg.NoGarbageDisposing {
			room := r.floorBoundStock(w) - w.Stock()
			if room <= 0 {
				continue
			}
			if fill > room {
				fill = room
			}
		}

		total := truncPrice(r.priceLocked(w, fill, CurrentSell) * priceMult)
		if math.IsNaN(total) || total <= 0 {
			continue
		}

		acct.SetMoney(acct.Money() + total)
		w.AddStock(fill, r.cfg.AllowNegativeStock)
		res.WaresSold++
		res.UnitsSold += fill
		res.TotalPrice += total
	}
	res.TotalPrice = truncPrice(res.TotalPrice)
	return res, nil
}

// Check quotes a ware without trading: unit and total buy/sell prices for
// the requested quantity at current stock.
type Quote struct {
	WareID    string  `json:"wareID"`
	Quantity  int64   `json:"quantity"`
	Stock     int64   `json:"stock"`
	UnitBuy   float64 `json:"unitBuy"`
	UnitSell  float64 `json:"unitSell"`
	TotalBuy  float64 `json:"totalBuy"`
	TotalSell float64 `json:"totalSell"`
}

// Check resolves a ware and returns its current quotes.
func (r *Registry) Check(wareID string, quantity int64) (Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.wares[r.translateLocked(wareID)]
	if w == nil {
		return Quote{}, fmt.Errorf("%w: %q", ErrUnknownWare, wareID)
	}
	return Quote{
		WareID:    w.ID,
		Quantity:  quantity,
		Stock:     w.Stock(),
		UnitBuy:   r.priceLocked(w, 0, CurrentBuy),
		UnitSell:  r.priceLocked(w, 0, CurrentSell),
		TotalBuy:  r.priceLocked(w, quantity, CurrentBuy),
		TotalSell: r.priceLocked(w, quantity, CurrentSell),
	}, nil
}

// tradeTarget validates the common preconditions of Buy and Sell. Callers
// hold the lock.
func (r *Registry) tradeTarget(playerID string, acct account.Account, wareID string) (*wares.Ware, error) {
	if acct == nil {
		return nil, ErrNoPermission
	}
	if !acct.HasAccess(playerID) {
		return nil, fmt.Errorf("%w: player %s", ErrNoPermission, playerID)
	}
	w := r.wares[r.translateLocked(wareID)]
	if w == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWare, wareID)
	}
	if !w.Tradeable() {
		return nil, fmt.Errorf("%w: %s", ErrUntradeable, w.ID)
	}
	return w, nil
}

// manufacturable reports whether an out-of-stock manufacturing contract can
// cover a ware: every component chain must bottom out in tradeable stock.
// An Untradeable component blocks outright (it cannot be bought), an empty
// tradeable component blocks unless it is itself manufacturable. The
// visited set keeps cyclic catalogs from recursing forever.
func (r *Registry) manufacturable(w *wares.Ware, visited map[string]bool) bool {
	if !w.HasComponents() || visited[w.ID] {
		return false
	}
	if len(w.Components) != len(w.ComponentIDs) {
		return false
	}
	visited[w.ID] = true
	defer delete(visited, w.ID)

	for _, c := range w.Components {
		if c.Kind == wares.Untradeable {
			return false
		}
		if c.Stock() > 0 {
			continue
		}
		if c.Manufactured() && r.manufacturable(c, visited) {
			continue
		}
		return false
	}
	return true
}
