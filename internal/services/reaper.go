package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"
)

const (
	defaultReaperInterval = 2 * time.Minute
	defaultReaperBatch    = 100
	expiredCloseReason    = "expired"
	maxReaperDeferral     = time.Hour
)

// deferral - запрос, который не удалось перевести в EXPIRED; до until его пропускают.
type deferral struct {
	failures int
	until    time.Time
}

// ExpiryReaper переводит просроченные открытые запросы в EXPIRED.
// Несколько реплик могут работать одновременно: каждый запрос забирает только одна из них.
type ExpiryReaper struct {
	tx       repository.Transactor
	rfqs     repository.RfqRepository
	quotes   repository.QuoteRepository
	outbox   repository.OutboxRepository
	clock    clock.Clock
	interval time.Duration
	batch    int

	mu       sync.Mutex
	deferred map[string]deferral
}

// ReaperOption настраивает ExpiryReaper.
type ReaperOption func(*ExpiryReaper)

func WithReaperInterval(d time.Duration) ReaperOption {
	return func(r *ExpiryReaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithReaperBatch(n int) ReaperOption {
	return func(r *ExpiryReaper) {
		if n > 0 {
			r.batch = n
		}
	}
}

// NewExpiryReaper создает новый экземпляр ExpiryReaper.
func NewExpiryReaper(tx repository.Transactor, rfqs repository.RfqRepository, quotes repository.QuoteRepository,
	outbox repository.OutboxRepository, clk clock.Clock, opts ...ReaperOption) *ExpiryReaper {
	r := &ExpiryReaper{
		tx:       tx,
		rfqs:     rfqs,
		quotes:   quotes,
		outbox:   outbox,
		clock:    clk,
		interval: defaultReaperInterval,
		batch:    defaultReaperBatch,
		deferred: make(map[string]deferral),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run запускает периодическую очистку до отмены контекста.
func (r *ExpiryReaper) Run(ctx context.Context) error {
	ctx = logging.WithAttrs(ctx, slog.String("component", "expiry_reaper"))
	logging.Info(ctx, "expiry reaper started", slog.Duration("interval", r.interval))

	runEvery(ctx, r.interval, func(ctx context.Context) {
		expired, err := r.SweepOnce(ctx)
		if err != nil {
			logging.Error(ctx, "expiry sweep failed", logging.Err(err))
			return
		}
		if expired > 0 {
			logging.Info(ctx, "expired rfqs", slog.Int("count", expired))
		}
	})

	logging.Info(ctx, "expiry reaper stopped")
	return nil
}

// SweepOnce обрабатывает одну пачку просроченных запросов и возвращает число истекших.
// Запрос с ошибкой откладывается с растущей паузой, чтобы не занимать пачку при каждом запуске.
func (r *ExpiryReaper) SweepOnce(ctx context.Context) (int, error) {
	now := r.clock.Now()
	candidates, err := r.rfqs.ListExpirable(ctx, now, r.deferredIDs(now), r.batch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, rfq := range candidates {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		ok, err := r.expire(ctx, rfq.ID, now)
		if err != nil {
			until := r.deferFailed(rfq.ID, now)
			logging.Warn(ctx, "failed to expire rfq", slog.String("rfq_id", rfq.ID),
				slog.Time("retry_after", until), logging.Err(err))
			continue
		}
		r.forget(rfq.ID)
		if ok {
			expired++
		}
	}
	return expired, nil
}

func (r *ExpiryReaper) expire(ctx context.Context, rfqID string, now time.Time) (bool, error) {
	claimed := false
	reason := expiredCloseReason

	err := r.tx.WithTx(ctx, func(txCtx context.Context) error {
		ok, rfq, err := r.rfqs.Transition(txCtx, rfqID, []models.RfqStatus{models.OpenRfq}, repository.RfqChange{
			Next:        models.ExpiredRfq,
			CloseReason: &reason,
			At:          now,
		})
		if err != nil || !ok {
			return err
		}
		claimed = true

		closed, err := r.quotes.ClosePending(txCtx, rfqID, repository.QuoteChange{
			Next:   models.ExpiredQuote,
			Reason: models.ReasonRfqExpired,
			At:     now,
		})
		if err != nil {
			return err
		}

		messages := make([]models.OutboxMessage, 0, len(closed)+1)
		for _, q := range closed {
			messages = append(messages, models.NewOutboxMessage(newID(), q.ProviderID, models.RfqExpired, rfqID, now))
		}
		messages = append(messages, models.NewOutboxMessage(newID(), rfq.ConsumerID, models.RfqExpired, rfqID, now))
		return r.outbox.Enqueue(txCtx, messages...)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// deferredIDs возвращает запросы, чья пауза после ошибки еще не истекла, и забывает давно истекшие.
func (r *ExpiryReaper) deferredIDs(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.deferred))
	for id, d := range r.deferred {
		if d.until.After(now) {
			ids = append(ids, id)
			continue
		}
		if now.Sub(d.until) > maxReaperDeferral {
			delete(r.deferred, id)
		}
	}
	return ids
}

func (r *ExpiryReaper) deferFailed(rfqID string, now time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.deferred[rfqID]
	d.failures++
	d.until = now.Add(reaperDeferral(r.interval, d.failures))
	r.deferred[rfqID] = d
	return d.until
}

func (r *ExpiryReaper) forget(rfqID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deferred, rfqID)
}

// reaperDeferral удваивает паузу с каждой ошибкой подряд, но не больше maxReaperDeferral.
func reaperDeferral(interval time.Duration, failures int) time.Duration {
	d := interval
	for i := 1; i < failures && d < maxReaperDeferral; i++ {
		d *= 2
	}
	if d > maxReaperDeferral {
		d = maxReaperDeferral
	}
	return d
}
