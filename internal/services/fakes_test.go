package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"

	"github.com/shopspring/decimal"
)

var errInjected = errors.New("injected failure")

type fakeTxKey struct{}

// memDB - хранилище в памяти с сериализованными транзакциями и откатом при ошибке.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	rfqs      map[string]models.Rfq
	quotes    map[string]models.Quote
	outbox    map[string]models.OutboxMessage
	inbox     map[string]models.Notification
	matches   map[string]map[string]models.MatchCandidate
	ratings   map[string]models.Rating
	summaries map[string]models.RatingSummary

	failOn map[string]error
}

func newMemDB() *memDB {
	return &memDB{
		rfqs:      map[string]models.Rfq{},
		quotes:    map[string]models.Quote{},
		outbox:    map[string]models.OutboxMessage{},
		inbox:     map[string]models.Notification{},
		matches:   map[string]map[string]models.MatchCandidate{},
		ratings:   map[string]models.Rating{},
		summaries: map[string]models.RatingSummary{},
		failOn:    map[string]error{},
	}
}

type memSnapshot struct {
	rfqs      map[string]models.Rfq
	quotes    map[string]models.Quote
	outbox    map[string]models.OutboxMessage
	inbox     map[string]models.Notification
	matches   map[string]map[string]models.MatchCandidate
	ratings   map[string]models.Rating
	summaries map[string]models.RatingSummary
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (db *memDB) snapshot() memSnapshot {
	matches := make(map[string]map[string]models.MatchCandidate, len(db.matches))
	for k, v := range db.matches {
		matches[k] = copyMap(v)
	}
	return memSnapshot{
		rfqs:      copyMap(db.rfqs),
		quotes:    copyMap(db.quotes),
		outbox:    copyMap(db.outbox),
		inbox:     copyMap(db.inbox),
		matches:   matches,
		ratings:   copyMap(db.ratings),
		summaries: copyMap(db.summaries),
	}
}

func (db *memDB) restore(s memSnapshot) {
	db.rfqs, db.quotes, db.outbox, db.inbox = s.rfqs, s.quotes, s.outbox, s.inbox
	db.matches, db.ratings, db.summaries = s.matches, s.ratings, s.summaries
}

func (db *memDB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snap := db.snapshot()
	db.mu.Unlock()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		db.mu.Lock()
		db.restore(snap)
		db.mu.Unlock()
		return err
	}
	return nil
}

// failWith заставляет операцию op возвращать err.
func (db *memDB) failWith(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failOn[op] = err
}

func (db *memDB) injected(op string) error {
	return db.failOn[op]
}

func (db *memDB) rfq(id string) models.Rfq {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rfqs[id]
}

func (db *memDB) quote(id string) models.Quote {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.quotes[id]
}

func (db *memDB) quotesOf(rfqID string) []models.Quote {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.quotesByRfqLocked(rfqID, "")
}

func (db *memDB) quotesByRfqLocked(rfqID string, status models.QuoteStatus) []models.Quote {
	out := make([]models.Quote, 0)
	for _, q := range db.quotes {
		if q.RfqID == rfqID && (status == "" || q.Status == status) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// outboxFor возвращает сообщения исходящего ящика по получателю и типу.
func (db *memDB) outboxFor(userID string, typ models.NotificationType) []models.OutboxMessage {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]models.OutboxMessage, 0)
	for _, m := range db.outbox {
		if m.UserID == userID && m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (db *memDB) outboxLen() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.outbox)
}

func (db *memDB) rfqCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.rfqs)
}

func (db *memDB) inboxLen() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.inbox)
}

type fakeRfqRepo struct{ db *memDB }

func (r fakeRfqRepo) Create(_ context.Context, rfq models.Rfq) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.injected("rfqs.Create"); err != nil {
		return err
	}
	r.db.rfqs[rfq.ID] = rfq
	return nil
}

func (r fakeRfqRepo) GetByID(_ context.Context, id string) (*models.Rfq, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	rfq, ok := r.db.rfqs[id]
	if !ok {
		return nil, models.ErrRfqNotFound
	}
	return &rfq, nil
}

func (r fakeRfqRepo) GetByIDForShare(ctx context.Context, id string) (*models.Rfq, error) {
	return r.GetByID(ctx, id)
}

func (r fakeRfqRepo) ListByConsumer(_ context.Context, consumerID string, filter models.RfqFilter) ([]models.Rfq, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Rfq, 0)
	for _, rfq := range r.db.rfqs {
		if rfq.ConsumerID != consumerID || (filter.Status != nil && rfq.Status != *filter.Status) {
			continue
		}
		out = append(out, rfq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

func (r fakeRfqRepo) ListExpirable(_ context.Context, now time.Time, exclude []string, limit int) ([]models.Rfq, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	out := make([]models.Rfq, 0)
	for _, rfq := range r.db.rfqs {
		if _, ok := skip[rfq.ID]; ok {
			continue
		}
		if rfq.Status == models.OpenRfq && rfq.ExpiresAt.Before(now) {
			out = append(out, rfq)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, 0), nil
}

func (r fakeRfqRepo) Transition(_ context.Context, id string, expected []models.RfqStatus, change repository.RfqChange) (bool, *models.Rfq, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.injected("rfqs.Transition"); err != nil {
		return false, nil, err
	}
	rfq, ok := r.db.rfqs[id]
	if !ok {
		return false, nil, models.ErrRfqNotFound
	}
	if !containsStatus(expected, rfq.Status) {
		return false, &rfq, nil
	}
	rfq.Status = change.Next
	if change.AcceptedQuoteID != nil {
		rfq.AcceptedQuoteID = change.AcceptedQuoteID
	}
	if change.CloseReason != nil {
		rfq.CloseReason = change.CloseReason
	}
	rfq.UpdatedAt = change.At
	rfq.Version++
	r.db.rfqs[id] = rfq
	return true, &rfq, nil
}

type fakeQuoteRepo struct{ db *memDB }

func (r fakeQuoteRepo) Create(_ context.Context, quote models.Quote) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.rfqs[quote.RfqID]; !ok {
		return errors.New("foreign key violation")
	}
	for _, q := range r.db.quotes {
		if q.RfqID == quote.RfqID && q.ProviderID == quote.ProviderID && q.Status == models.PendingQuote {
			return models.NewConflictError("provider already has a pending quote for this rfq")
		}
	}
	r.db.quotes[quote.ID] = quote
	return nil
}

func (r fakeQuoteRepo) GetByID(_ context.Context, id string) (*models.Quote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	q, ok := r.db.quotes[id]
	if !ok {
		return nil, models.ErrQuoteNotFound
	}
	return &q, nil
}

func (r fakeQuoteRepo) ListByRfq(_ context.Context, rfqID string) ([]models.Quote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.quotesByRfqLocked(rfqID, ""), nil
}

func (r fakeQuoteRepo) Transition(_ context.Context, id string, expected []models.QuoteStatus, change repository.QuoteChange) (bool, *models.Quote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	q, ok := r.db.quotes[id]
	if !ok {
		return false, nil, models.ErrQuoteNotFound
	}
	if !containsStatus(expected, q.Status) {
		return false, &q, nil
	}
	if change.Next == models.AcceptedQuote {
		for _, other := range r.db.quotes {
			if other.RfqID == q.RfqID && other.Status == models.AcceptedQuote {
				return false, nil, models.NewConflictError("rfq already has an accepted quote")
			}
		}
	}
	applyQuoteChange(&q, change)
	r.db.quotes[id] = q
	return true, &q, nil
}

func (r fakeQuoteRepo) ClosePending(_ context.Context, rfqID string, change repository.QuoteChange) ([]models.Quote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.injected("quotes.ClosePending"); err != nil {
		return nil, err
	}
	closed := r.db.quotesByRfqLocked(rfqID, models.PendingQuote)
	for i := range closed {
		applyQuoteChange(&closed[i], change)
		r.db.quotes[closed[i].ID] = closed[i]
	}
	return closed, nil
}

func applyQuoteChange(q *models.Quote, change repository.QuoteChange) {
	q.Status = change.Next
	q.StatusReason = nil
	if change.Reason != "" {
		reason := change.Reason
		q.StatusReason = &reason
	}
	q.UpdatedAt = change.At
	q.Version++
}

type fakeOutboxRepo struct{ db *memDB }

func (r fakeOutboxRepo) Enqueue(_ context.Context, messages ...models.OutboxMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.injected("outbox.Enqueue"); err != nil {
		return err
	}
	for _, msg := range messages {
		duplicate := false
		for _, existing := range r.db.outbox {
			if existing.DedupeKey == msg.DedupeKey {
				duplicate = true
				break
			}
		}
		if !duplicate {
			r.db.outbox[msg.ID] = msg
		}
	}
	return nil
}

func (r fakeOutboxRepo) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	due := make([]models.OutboxMessage, 0)
	for _, m := range r.db.outbox {
		if m.DeliveredAt == nil && !m.NextAttemptAt.After(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	due = page(due, limit, 0)
	for i := range due {
		due[i].NextAttemptAt = now.Add(lease)
		r.db.outbox[due[i].ID] = due[i]
	}
	return due, nil
}

func (r fakeOutboxRepo) MarkDelivered(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m := r.db.outbox[id]
	m.DeliveredAt = &at
	m.LastError = ""
	r.db.outbox[id] = m
	return nil
}

func (r fakeOutboxRepo) MarkFailed(_ context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m := r.db.outbox[id]
	m.Attempts += attempts
	m.NextAttemptAt = nextAttemptAt
	m.LastError = lastError
	r.db.outbox[id] = m
	return nil
}

type fakeNotificationRepo struct{ db *memDB }

func (r fakeNotificationRepo) Insert(_ context.Context, n models.Notification) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.injected("inbox.Insert"); err != nil {
		return false, err
	}
	if _, ok := r.db.inbox[n.ID]; ok {
		return false, nil
	}
	r.db.inbox[n.ID] = n
	return true, nil
}

func (r fakeNotificationRepo) GetByID(_ context.Context, id string) (*models.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n, ok := r.db.inbox[id]
	if !ok {
		return nil, models.ErrNotificationNotFound
	}
	return &n, nil
}

func (r fakeNotificationRepo) List(_ context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, n := range r.db.inbox {
		if n.UserID != userID || (filter.UnreadOnly && n.Read) || (filter.Type != nil && n.Type != *filter.Type) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r fakeNotificationRepo) MarkRead(_ context.Context, id string) (*models.Notification, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n, ok := r.db.inbox[id]
	if !ok {
		return nil, models.ErrNotificationNotFound
	}
	if !n.Read {
		n.Read = true
		n.Version++
		r.db.inbox[id] = n
	}
	return &n, nil
}

type fakeMatchRepo struct{ db *memDB }

func (r fakeMatchRepo) Record(_ context.Context, rfqID string, candidates []models.MatchCandidate, _ time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	set, ok := r.db.matches[rfqID]
	if !ok {
		set = map[string]models.MatchCandidate{}
		r.db.matches[rfqID] = set
	}
	for _, c := range candidates {
		if _, exists := set[c.ProviderID]; !exists {
			set[c.ProviderID] = c
		}
	}
	return nil
}

func (r fakeMatchRepo) IsMatched(_ context.Context, rfqID, providerID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, ok := r.db.matches[rfqID][providerID]
	return ok, nil
}

func (r fakeMatchRepo) ListByRfq(_ context.Context, rfqID string) ([]models.MatchCandidate, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.MatchCandidate, 0, len(r.db.matches[rfqID]))
	for _, c := range r.db.matches[rfqID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

type fakeRatingRepo struct{ db *memDB }

func (r fakeRatingRepo) HasAcceptedDeal(_ context.Context, consumerID, providerID string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, q := range r.db.quotes {
		if q.Status == models.AcceptedQuote && q.ProviderID == providerID && r.db.rfqs[q.RfqID].ConsumerID == consumerID {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeRatingRepo) Create(_ context.Context, rating models.Rating) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.ratings {
		if existing.RfqID == rating.RfqID && existing.AuthorID == rating.AuthorID && existing.TargetType == rating.TargetType {
			return models.NewConflictError("rating for this rfq already submitted")
		}
	}
	r.db.ratings[rating.ID] = rating
	return nil
}

func (r fakeRatingRepo) IncrementProviderSummary(_ context.Context, providerID string, stars int, _ time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s := r.db.summaries[providerID]
	s.ProviderID = providerID
	s.RatingCount++
	s.RatingTotal += stars
	r.db.summaries[providerID] = s
	return nil
}

func (r fakeRatingRepo) ProviderSummary(_ context.Context, providerID string) (models.RatingSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s := r.db.summaries[providerID]
	s.ProviderID = providerID
	if s.RatingCount > 0 {
		s.Average = float64(s.RatingTotal) / float64(s.RatingCount)
	}
	return s, nil
}

func containsStatus[S comparable](statuses []S, s S) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// stubDirectory - справочник с заданными ответами.
type stubDirectory struct {
	catalog   map[string]models.CatalogListing
	consumers map[string]models.GeoPoint
	providers map[string][]models.ProviderCandidate
	err       error
}

func (d *stubDirectory) GetCatalog(_ context.Context, catalogID string) (*models.CatalogListing, error) {
	if d.err != nil {
		return nil, d.err
	}
	item, ok := d.catalog[catalogID]
	if !ok {
		return nil, models.ErrCatalogNotFound
	}
	return &item, nil
}

func (d *stubDirectory) GetConsumerLocation(_ context.Context, consumerID string) (*models.GeoPoint, error) {
	if d.err != nil {
		return nil, d.err
	}
	p, ok := d.consumers[consumerID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (d *stubDirectory) ProvidersByCategory(_ context.Context, category string) ([]models.ProviderCandidate, error) {
	if d.err != nil {
		return nil, d.err
	}
	return append([]models.ProviderCandidate(nil), d.providers[category]...), nil
}

type testEnv struct {
	db    *memDB
	clock *clock.Manual
	dir   *stubDirectory

	rfqs          fakeRfqRepo
	quotes        fakeQuoteRepo
	outbox        fakeOutboxRepo
	inbox         fakeNotificationRepo
	matches       fakeMatchRepo
	ratings       fakeRatingRepo
	engine        *MatchingEngine
	rfqService    *RfqService
	quoteService  *QuoteService
	coordinator   *AcceptanceCoordinator
	reaper        *ExpiryReaper
	notifications *NotificationService
	ratingGate    *RatingGate
}

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newMemDB()
	env := &testEnv{
		db:      db,
		clock:   clock.NewManual(testNow),
		dir:     &stubDirectory{},
		rfqs:    fakeRfqRepo{db},
		quotes:  fakeQuoteRepo{db},
		outbox:  fakeOutboxRepo{db},
		inbox:   fakeNotificationRepo{db},
		matches: fakeMatchRepo{db},
		ratings: fakeRatingRepo{db},
	}
	env.engine = NewMatchingEngine(db, env.dir, env.matches, env.outbox, env.clock, WithFanout(3), WithRadiusKm(50))
	env.rfqService = NewRfqService(env.rfqs, env.quotes, env.matches, env.engine, env.clock, WithRfqTTL(72*time.Hour))
	env.quoteService = NewQuoteService(db, env.rfqs, env.quotes, env.outbox, env.clock)
	env.coordinator = NewAcceptanceCoordinator(db, env.rfqs, env.quotes, env.outbox, env.clock)
	env.reaper = NewExpiryReaper(db, env.rfqs, env.quotes, env.outbox, env.clock, WithReaperBatch(10))
	env.notifications = NewNotificationService(env.inbox)
	env.ratingGate = NewRatingGate(db, env.ratings, env.rfqs, env.quotes, env.clock)
	return env
}

func actor(id string) models.Actor {
	return models.Actor{ID: id}
}

func strPtr(s string) *string {
	return &s
}

func (env *testEnv) openRfq(t *testing.T, consumerID string) *models.Rfq {
	t.Helper()
	rfq, err := env.rfqService.CreateRfq(context.Background(), actor(consumerID), models.RfqRequest{
		Quantity: 10,
		Unit:     "pcs",
		Message:  "need pipes",
	})
	if err != nil {
		t.Fatalf("create rfq: %v", err)
	}
	return rfq
}

func (env *testEnv) submitQuote(t *testing.T, providerID, rfqID string, price int64) *models.Quote {
	t.Helper()
	quote, err := env.quoteService.SubmitQuote(context.Background(), actor(providerID), rfqID, models.QuoteRequest{
		Price:    decimal.NewFromInt(price),
		Currency: "usd",
	})
	if err != nil {
		t.Fatalf("submit quote: %v", err)
	}
	return quote
}

// checkInvariants проверяет инварианты над всем состоянием.
func (env *testEnv) checkInvariants(t *testing.T) {
	t.Helper()
	env.db.mu.Lock()
	defer env.db.mu.Unlock()

	for _, rfq := range env.db.rfqs {
		quotes := env.db.quotesByRfqLocked(rfq.ID, "")
		accepted := 0
		pending := map[string]int{}
		for _, q := range quotes {
			switch q.Status {
			case models.AcceptedQuote:
				accepted++
				if rfq.Status != models.AcceptedRfq || rfq.AcceptedQuoteID == nil || *rfq.AcceptedQuoteID != q.ID {
					t.Fatalf("accepted quote %s on rfq %s in status %s", q.ID, rfq.ID, rfq.Status)
				}
			case models.PendingQuote:
				pending[q.ProviderID]++
				if rfq.Status != models.OpenRfq {
					t.Fatalf("pending quote %s on closed rfq %s", q.ID, rfq.ID)
				}
			}
		}
		if accepted > 1 {
			t.Fatalf("rfq %s has %d accepted quotes", rfq.ID, accepted)
		}
		if rfq.Status == models.AcceptedRfq && accepted != 1 {
			t.Fatalf("accepted rfq %s has %d accepted quotes", rfq.ID, accepted)
		}
		for provider, n := range pending {
			if n > 1 {
				t.Fatalf("provider %s has %d pending quotes on rfq %s", provider, n, rfq.ID)
			}
		}
	}
}
