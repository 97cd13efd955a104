package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"order-ingestion-engine/internal/book"
	"order-ingestion-engine/internal/exchange"
	"order-ingestion-engine/internal/models"
	"order-ingestion-engine/internal/queue"
	"order-ingestion-engine/internal/store"
)

// Store opens pass-scoped transactions for the processor.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one processor pass over a dequeued order id. All writes made through
// it commit together or not at all. GetOrder returns store.ErrNotFound when
// the id no longer exists.
type Tx interface {
	GetOrder(id int64) (*models.Order, error)
	UpdateOrder(o *models.Order) error
	InsertMatch(m *models.Match) error
	Commit() error
	Rollback() error
}

// Processor is the single background consumer of the submission queue. It
// owns the order book exclusively and is the only initiator of store writes
// that change order status after initial insertion.
type Processor struct {
	store   Store
	books   *book.Registry
	matcher *Matcher
	client  exchange.Client
	queue   *queue.Queue

	maxRetries int
	retryDelay time.Duration

	// Per-order transient-failure counts. In-memory only; cleared on
	// success, exhaustion, and rollback.
	retryCounts map[int64]int
}

// NewProcessor wires a Processor. maxRetries bounds transient-failure
// replacements per order; retryDelay is slept in-worker between attempts.
func NewProcessor(st Store, books *book.Registry, client exchange.Client, q *queue.Queue, maxRetries int, retryDelay time.Duration) *Processor {
	return &Processor{
		store:       st,
		books:       books,
		matcher:     NewMatcher(),
		client:      client,
		queue:       q,
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		retryCounts: make(map[int64]int),
	}
}

// Enqueue hands an order row id to the worker.
func (p *Processor) Enqueue(id int64) {
	p.queue.Put(id)
}

// Restore rebuilds the in-memory book from a store scan and re-enqueues
// orders that were awaiting a matching attempt when the process stopped.
func (p *Processor) Restore(orders []*models.Order) {
	requeued := 0
	for _, o := range orders {
		p.books.Get(o.Instrument).Add(o)
		if o.Status.Matchable() {
			p.queue.Put(o.ID)
			requeued++
		}
	}
	log.Printf("[INFO] restored %d resting orders into the book, re-enqueued %d", len(orders), requeued)
}

// Run consumes the queue until the context is cancelled or the queue is
// closed and drained. No single order's failure terminates the worker.
func (p *Processor) Run(ctx context.Context) {
	log.Println("[INFO] processor started")
	for {
		id, ok := p.queue.Pop(ctx)
		if !ok {
			log.Println("[INFO] processor stopped")
			return
		}
		p.processOne(ctx, id)
	}
}

// processOne drives one pass: load, match, persist, place, retry.
func (p *Processor) processOne(ctx context.Context, id int64) {
	metrics.GetOrCreateCounter("orders_processed_total").Inc()

	tx, err := p.store.Begin(ctx)
	if err != nil {
		delete(p.retryCounts, id)
		metrics.GetOrCreateCounter("processor_errors_total").Inc()
		log.Printf("[ERROR] failed to begin pass for order %d: %v", id, err)
		return
	}

	order, err := tx.GetOrder(id)
	if errors.Is(err, store.ErrNotFound) {
		// The durable record is gone; trust the store, drop the cache entry.
		p.books.Remove(id)
		delete(p.retryCounts, id)
		p.commit(tx, id)
		return
	}
	if err != nil {
		p.abortPass(tx, id, err)
		return
	}

	if order.Status.Terminal() {
		p.books.Get(order.Instrument).Remove(id)
		delete(p.retryCounts, id)
		p.commit(tx, id)
		return
	}

	b := p.books.Get(order.Instrument)
	b.Add(order)

	entryStatus := order.Status
	if order.Status == models.OrderStatusSubmitted {
		// A counterparty may have arrived since the upstream submission;
		// demote for this pass so local matching is attempted first.
		order.Status = models.OrderStatusOpen
	}

	outcome := p.matcher.Match(order, b, time.Now())
	if len(outcome.Matches) > 0 {
		p.persistMatches(tx, b, order, outcome)
		return
	}

	if entryStatus == models.OrderStatusPartial {
		// Residuals rest locally and are never re-forwarded upstream.
		delete(p.retryCounts, id)
		p.commit(tx, id)
		return
	}

	p.place(ctx, tx, b, order)
}

// persistMatches writes the pass's match rows and order updates in one
// transaction and reconciles the book on success.
func (p *Processor) persistMatches(tx Tx, b *book.Book, order *models.Order, outcome *MatchOutcome) {
	for _, m := range outcome.Matches {
		if err := tx.InsertMatch(m); err != nil {
			p.abortMatched(tx, b, order, outcome, err)
			return
		}
	}
	for _, c := range outcome.Touched {
		if err := tx.UpdateOrder(c); err != nil {
			p.abortMatched(tx, b, order, outcome, err)
			return
		}
	}
	if err := tx.UpdateOrder(order); err != nil {
		p.abortMatched(tx, b, order, outcome, err)
		return
	}
	if err := tx.Commit(); err != nil {
		p.abortMatched(tx, b, order, outcome, err)
		return
	}

	delete(p.retryCounts, order.ID)
	metrics.GetOrCreateCounter("matches_recorded_total").Add(len(outcome.Matches))
	if order.Status == models.OrderStatusMatched {
		metrics.GetOrCreateCounter("orders_matched_total").Inc()
	} else {
		metrics.GetOrCreateCounter("orders_partial_total").Inc()
	}
	log.Printf("[INFO] order %s matched: %d fills, remaining quantity %d, status %s",
		order.OrderID, len(outcome.Matches), order.Quantity, order.Status)
}

// place forwards an unmatched order upstream and applies the retry policy.
func (p *Processor) place(ctx context.Context, tx Tx, b *book.Book, order *models.Order) {
	id := order.ID
	err := p.client.PlaceOrder(ctx, order)

	switch {
	case err == nil:
		order.Status = models.OrderStatusSubmitted
		if uerr := tx.UpdateOrder(order); uerr != nil {
			p.abort(tx, b, order, uerr)
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			p.abort(tx, b, order, cerr)
			return
		}
		delete(p.retryCounts, id)
		metrics.GetOrCreateCounter(`placements_total{result="ok"}`).Inc()
		log.Printf("[INFO] order %s submitted to exchange without match", order.OrderID)
		p.requeueCrossingPartials(b, order)

	case exchange.IsTransient(err) && p.retryCounts[id] < p.maxRetries:
		p.retryCounts[id]++
		attempt := p.retryCounts[id]
		if uerr := tx.UpdateOrder(order); uerr != nil {
			p.abort(tx, b, order, uerr)
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			p.abort(tx, b, order, cerr)
			return
		}
		metrics.GetOrCreateCounter(`placements_total{result="transient"}`).Inc()
		metrics.GetOrCreateCounter("placement_retries_total").Inc()
		log.Printf("[WARN] transient placement failure for order %s (attempt %d/%d): %v; re-enqueuing after %s",
			order.OrderID, attempt, p.maxRetries, err, p.retryDelay)
		time.Sleep(p.retryDelay)
		p.queue.Put(id)

	default:
		retries := p.retryCounts[id]
		order.Status = models.OrderStatusFailed
		if uerr := tx.UpdateOrder(order); uerr != nil {
			p.abort(tx, b, order, uerr)
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			p.abort(tx, b, order, cerr)
			return
		}
		b.Remove(id)
		delete(p.retryCounts, id)
		metrics.GetOrCreateCounter(`placements_total{result="failed"}`).Inc()
		log.Printf("[ERROR] placement failed for order %s after %d retries: %v", order.OrderID, retries, err)
	}
}

// requeueCrossingPartials revives opposite-side residuals that can now match
// the freshly resting order.
func (p *Processor) requeueCrossingPartials(b *book.Book, order *models.Order) {
	for _, id := range b.CrossingPartials(order) {
		p.queue.Put(id)
		log.Printf("[INFO] re-enqueued partial order %d against fresh %s on %s", id, order.Side, order.Instrument)
	}
}

func (p *Processor) commit(tx Tx, id int64) {
	if err := tx.Commit(); err != nil {
		metrics.GetOrCreateCounter("processor_errors_total").Inc()
		log.Printf("[ERROR] failed to commit pass for order %d: %v", id, err)
	}
}

// abort rolls back a pass whose order is known. The order leaves the book:
// its in-memory state no longer reflects the store, and the book can always
// be rebuilt from the store.
func (p *Processor) abort(tx Tx, b *book.Book, order *models.Order, err error) {
	if rbErr := tx.Rollback(); rbErr != nil {
		log.Printf("[ERROR] rollback failed for order %d: %v", order.ID, rbErr)
	}
	b.Remove(order.ID)
	delete(p.retryCounts, order.ID)
	metrics.GetOrCreateCounter("processor_errors_total").Inc()
	log.Printf("[ERROR] pass for order %s rolled back: %v", order.OrderID, err)
}

// abortMatched additionally evicts the touched counterparties, whose
// in-memory quantities were mutated by the failed pass.
func (p *Processor) abortMatched(tx Tx, b *book.Book, order *models.Order, outcome *MatchOutcome, err error) {
	for _, c := range outcome.Touched {
		b.Remove(c.ID)
	}
	p.abort(tx, b, order, err)
}

func (p *Processor) abortPass(tx Tx, id int64, err error) {
	if rbErr := tx.Rollback(); rbErr != nil {
		log.Printf("[ERROR] rollback failed for order %d: %v", id, rbErr)
	}
	delete(p.retryCounts, id)
	metrics.GetOrCreateCounter("processor_errors_total").Inc()
	log.Printf("[ERROR] pass for order %d rolled back: %v", id, err)
}
