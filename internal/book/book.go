// Package book holds the in-memory, per-instrument price-time priority index
// of resting orders. The book is a cache over the order store, owned
// exclusively by the processor; it may be rebuilt at any time from the store.
package book

import (
	"sort"

	"github.com/sasha-s/go-deadlock"
	"github.com/shopspring/decimal"

	"order-ingestion-engine/internal/models"
)

// marketKey is the sentinel level for market orders. It sorts ahead of every
// price on both sides: effectively +inf for bids, best-crossable for asks.
const marketKey = "MKT"

// priceLevel is a FIFO queue of orders at one price (or the market sentinel).
// Orders are kept sorted by created_at, ties broken by order id
// lexicographically so iteration is deterministic.
type priceLevel struct {
	price  decimal.Decimal
	market bool
	orders []*models.Order
}

func (pl *priceLevel) add(o *models.Order) {
	pl.orders = append(pl.orders, o)
	sort.SliceStable(pl.orders, func(i, j int) bool {
		a, b := pl.orders[i], pl.orders[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.OrderID < b.OrderID
	})
}

func (pl *priceLevel) remove(id int64) bool {
	for i, o := range pl.orders {
		if o.ID == id {
			pl.orders = append(pl.orders[:i], pl.orders[i+1:]...)
			return true
		}
	}
	return false
}

func (pl *priceLevel) empty() bool {
	return len(pl.orders) == 0
}

// sideBook is one side of an instrument's book: price levels plus a cached
// slice of prices sorted in match-priority order for that side.
type sideBook struct {
	side   models.OrderSide
	levels map[string]*priceLevel
	prices []decimal.Decimal
}

func newSideBook(side models.OrderSide) *sideBook {
	return &sideBook{side: side, levels: make(map[string]*priceLevel)}
}

func levelKey(o *models.Order) string {
	if o.Type == models.OrderTypeMarket {
		return marketKey
	}
	return o.LimitPrice.StringFixed(2)
}

func (sb *sideBook) add(o *models.Order) {
	key := levelKey(o)
	lvl := sb.levels[key]
	if lvl == nil {
		lvl = &priceLevel{market: key == marketKey}
		if !lvl.market {
			lvl.price = *o.LimitPrice
		}
		sb.levels[key] = lvl
		if !lvl.market {
			sb.refreshPrices()
		}
	}
	lvl.add(o)
}

func (sb *sideBook) remove(o *models.Order) {
	key := levelKey(o)
	lvl := sb.levels[key]
	if lvl == nil {
		return
	}
	if lvl.remove(o.ID) && lvl.empty() {
		delete(sb.levels, key)
		if !lvl.market {
			sb.refreshPrices()
		}
	}
}

// refreshPrices rebuilds the cached price slice in match-priority order:
// descending for bids (highest first), ascending for asks (cheapest first).
func (sb *sideBook) refreshPrices() {
	sb.prices = sb.prices[:0]
	for key, lvl := range sb.levels {
		if key == marketKey {
			continue
		}
		sb.prices = append(sb.prices, lvl.price)
	}
	sort.Slice(sb.prices, func(i, j int) bool {
		if sb.side == models.OrderSideBuy {
			return sb.prices[i].GreaterThan(sb.prices[j])
		}
		return sb.prices[i].LessThan(sb.prices[j])
	})
}

// Book is the in-memory index for a single instrument.
type Book struct {
	instrument string

	mu   deadlock.RWMutex
	bids *sideBook
	asks *sideBook
	byID map[int64]*models.Order
}

// New constructs an empty Book for the given instrument.
func New(instrument string) *Book {
	return &Book{
		instrument: instrument,
		bids:       newSideBook(models.OrderSideBuy),
		asks:       newSideBook(models.OrderSideSell),
		byID:       make(map[int64]*models.Order),
	}
}

// Instrument returns the symbol this book indexes.
func (b *Book) Instrument() string {
	return b.instrument
}

func (b *Book) sideFor(side models.OrderSide) *sideBook {
	if side == models.OrderSideBuy {
		return b.bids
	}
	return b.asks
}

// Add places an order into its side under its effective price: the limit
// price, or the market sentinel level. Re-adding a present id replaces the
// slot; the sort key (created_at, order_id) is unchanged so the order keeps
// its position in the level.
func (b *Book) Add(o *models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.byID[o.ID]; ok {
		b.sideFor(prev.Side).remove(prev)
	}
	b.sideFor(o.Side).add(o)
	b.byID[o.ID] = o
}

// Remove deletes the order from whatever level it rests in. No-op if absent.
func (b *Book) Remove(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.byID[id]
	if !ok {
		return
	}
	b.sideFor(o.Side).remove(o)
	delete(b.byID, id)
}

// Contains reports whether the order id is present in the book.
func (b *Book) Contains(id int64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.byID[id]
	return ok
}

// Len returns the number of resting orders across both sides.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// crosses reports whether a resting level is an acceptable price for the
// incoming order. Market levels and market incoming orders always cross.
func crosses(incoming *models.Order, lvl *priceLevel) bool {
	if lvl.market || incoming.Type == models.OrderTypeMarket {
		return true
	}
	if incoming.Side == models.OrderSideBuy {
		return lvl.price.LessThanOrEqual(*incoming.LimitPrice)
	}
	return lvl.price.GreaterThanOrEqual(*incoming.LimitPrice)
}

// Candidates returns the opposite-side orders the incoming order may match,
// best price first and FIFO within a price. Only OPEN and SUBMITTED orders
// are yielded. PARTIAL residuals keep resting but are skipped; they match
// only on their own pass. Entries found in a terminal state are pruned.
func (b *Book) Candidates(incoming *models.Order) []*models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	opposite := b.sideFor(incoming.Side.Opposite())

	var out []*models.Order
	var stale []*models.Order

	collect := func(lvl *priceLevel) {
		for _, o := range lvl.orders {
			if o.ID == incoming.ID || o.Status == models.OrderStatusPartial {
				continue
			}
			if !o.Status.Matchable() {
				stale = append(stale, o)
				continue
			}
			out = append(out, o)
		}
	}

	if lvl, ok := opposite.levels[marketKey]; ok && crosses(incoming, lvl) {
		collect(lvl)
	}
	for _, price := range opposite.prices {
		lvl := opposite.levels[price.StringFixed(2)]
		if lvl == nil || !crosses(incoming, lvl) {
			continue
		}
		collect(lvl)
	}

	for _, o := range stale {
		opposite.remove(o)
		delete(b.byID, o.ID)
	}
	return out
}

// CrossingPartials returns the row ids of opposite-side PARTIAL orders whose
// resting price crosses the incoming order. These are the residuals a fresh
// counterparty can revive.
func (b *Book) CrossingPartials(incoming *models.Order) []int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	opposite := b.sideFor(incoming.Side.Opposite())

	var ids []int64
	collect := func(lvl *priceLevel) {
		for _, o := range lvl.orders {
			if o.Status == models.OrderStatusPartial {
				ids = append(ids, o.ID)
			}
		}
	}

	if lvl, ok := opposite.levels[marketKey]; ok && crosses(incoming, lvl) {
		collect(lvl)
	}
	for _, price := range opposite.prices {
		lvl := opposite.levels[price.StringFixed(2)]
		if lvl == nil || !crosses(incoming, lvl) {
			continue
		}
		collect(lvl)
	}
	return ids
}

// Registry hands out per-instrument books, creating them on first use.
type Registry struct {
	mu    deadlock.RWMutex
	books map[string]*Book
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{books: make(map[string]*Book)}
}

// Get returns the book for an instrument, creating it if necessary.
func (r *Registry) Get(instrument string) *Book {
	r.mu.RLock()
	b, ok := r.books[instrument]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if b, ok = r.books[instrument]; !ok {
			b = New(instrument)
			r.books[instrument] = b
		}
		r.mu.Unlock()
	}
	return b
}

// Remove deletes the order id from whichever book holds it. Used when an
// enqueued id turns out to no longer exist in the store.
func (r *Registry) Remove(id int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.books {
		b.Remove(id)
	}
}
