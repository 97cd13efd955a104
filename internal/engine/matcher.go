package engine

import (
	"time"

	"order-ingestion-engine/internal/book"
	"order-ingestion-engine/internal/models"
)

// MatchOutcome is everything a matching pass produced: the match records to
// persist and the counterparty orders whose quantity or status changed.
type MatchOutcome struct {
	Matches []*models.Match
	Touched []*models.Order
}

// Matcher fills an incoming order against the book under price-time priority.
type Matcher struct{}

// NewMatcher returns a new Matcher instance.
func NewMatcher() *Matcher { return &Matcher{} }

// Match walks the candidates for the incoming order and executes fills until
// the order is exhausted or no candidate remains. Quantities and statuses are
// mutated in place on the incoming order and the resting counterparties;
// fully matched orders are removed from the book. Persistence is the
// caller's job.
func (m *Matcher) Match(o *models.Order, b *book.Book, now time.Time) *MatchOutcome {
	out := &MatchOutcome{}

	for _, c := range b.Candidates(o) {
		if o.Quantity == 0 {
			break
		}

		qty := min(o.Quantity, c.Quantity)
		match := &models.Match{
			MatchedQuantity: qty,
			MatchedAt:       now,
			Instrument:      o.Instrument,
		}
		if o.Side == models.OrderSideBuy {
			match.BuyOrderID, match.SellOrderID = o.ID, c.ID
		} else {
			match.BuyOrderID, match.SellOrderID = c.ID, o.ID
		}

		o.Quantity -= qty
		c.Quantity -= qty
		if c.Quantity == 0 {
			c.Status = models.OrderStatusMatched
			b.Remove(c.ID)
		} else {
			c.Status = models.OrderStatusPartial
		}

		out.Matches = append(out.Matches, match)
		out.Touched = append(out.Touched, c)
	}

	if o.Quantity == 0 {
		o.Status = models.OrderStatusMatched
		b.Remove(o.ID)
	} else if len(out.Matches) > 0 {
		o.Status = models.OrderStatusPartial
	}
	return out
}
