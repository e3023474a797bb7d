package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/directory"
	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"
)

const (
	defaultMatchFanout   = 20
	defaultMatchRadiusKm = 50.0
)

// MatchingEngine подбирает поставщиков для открытого запроса и уведомляет их.
type MatchingEngine struct {
	tx       repository.Transactor
	dir      Directory
	matches  repository.MatchRepository
	outbox   repository.OutboxRepository
	clock    clock.Clock
	fanout   int
	radiusKm float64
}

// MatchingOption настраивает MatchingEngine.
type MatchingOption func(*MatchingEngine)

// WithFanout ограничивает число поставщиков при рассылке по категории.
func WithFanout(n int) MatchingOption {
	return func(e *MatchingEngine) {
		if n > 0 {
			e.fanout = n
		}
	}
}

// WithRadiusKm задает радиус поиска поставщиков вокруг потребителя.
func WithRadiusKm(km float64) MatchingOption {
	return func(e *MatchingEngine) {
		if km > 0 {
			e.radiusKm = km
		}
	}
}

func NewMatchingEngine(tx repository.Transactor, dir Directory, matches repository.MatchRepository,
	outbox repository.OutboxRepository, clk clock.Clock, opts ...MatchingOption) *MatchingEngine {
	e := &MatchingEngine{
		tx:       tx,
		dir:      dir,
		matches:  matches,
		outbox:   outbox,
		clock:    clk,
		fanout:   defaultMatchFanout,
		radiusKm: defaultMatchRadiusKm,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Match подбирает кандидатов, записывает их и ставит уведомления RfqMatched в исходящий ящик.
// Повторный вызов не дублирует уведомления.
func (e *MatchingEngine) Match(ctx context.Context, rfq *models.Rfq) ([]models.MatchCandidate, error) {
	if rfq.Status != models.OpenRfq {
		return nil, rfqStateError(rfq)
	}

	candidates, err := e.Candidates(ctx, rfq)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		logging.Info(ctx, "no providers matched", slog.String("rfq_id", rfq.ID))
		return candidates, nil
	}

	now := e.clock.Now()
	messages := make([]models.OutboxMessage, 0, len(candidates))
	for _, c := range candidates {
		messages = append(messages, models.NewOutboxMessage(newID(), c.ProviderID, models.RfqMatched, rfq.ID, now))
	}

	err = e.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := e.matches.Record(txCtx, rfq.ID, candidates, now); err != nil {
			return err
		}
		return e.outbox.Enqueue(txCtx, messages...)
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "rfq matched", slog.String("rfq_id", rfq.ID), slog.Int("candidates", len(candidates)))
	return candidates, nil
}

// Candidates вычисляет кандидатов без записи.
func (e *MatchingEngine) Candidates(ctx context.Context, rfq *models.Rfq) ([]models.MatchCandidate, error) {
	if rfq.IsDirected() {
		if *rfq.TargetProviderID == rfq.ConsumerID {
			return []models.MatchCandidate{}, nil
		}
		return []models.MatchCandidate{{ProviderID: *rfq.TargetProviderID, Rank: 1}}, nil
	}

	location, err := e.dir.GetConsumerLocation(ctx, rfq.ConsumerID)
	if err != nil {
		return nil, err
	}

	category := ""
	if rfq.Category != nil {
		category = *rfq.Category
	}

	if rfq.CatalogID != nil && *rfq.CatalogID != "" {
		item, err := e.dir.GetCatalog(ctx, *rfq.CatalogID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			logging.Warn(ctx, "catalog item not found, falling back to category",
				slog.String("rfq_id", rfq.ID), slog.String("catalog_id", *rfq.CatalogID))
		case err != nil:
			return nil, err
		default:
			if catalogFits(item, rfq, location) {
				return []models.MatchCandidate{{ProviderID: item.ProviderID, Rank: 1}}, nil
			}
			if category == "" {
				category = item.Category
			}
		}
	}

	if category == "" {
		return []models.MatchCandidate{}, nil
	}
	return e.broadcast(ctx, rfq, category, location)
}

func catalogFits(item *models.CatalogListing, rfq *models.Rfq, location *models.GeoPoint) bool {
	if item.ProviderID == rfq.ConsumerID || !item.InStock || rfq.Quantity < item.Moq {
		return false
	}
	if location == nil {
		return true
	}
	return directory.DistanceKm(*location, item.ProviderLocation) <= item.DeliveryRadiusKm
}

func (e *MatchingEngine) broadcast(ctx context.Context, rfq *models.Rfq, category string, location *models.GeoPoint) ([]models.MatchCandidate, error) {
	providers, err := e.dir.ProvidersByCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	eligible := make([]models.ProviderCandidate, 0, len(providers))
	for _, p := range providers {
		if p.ID == rfq.ConsumerID {
			continue
		}
		if location != nil {
			p.DistanceKm = directory.DistanceKm(*location, p.Location)
			if p.DistanceKm > e.radiusKm {
				continue
			}
		}
		eligible = append(eligible, p)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.TrustScore != b.TrustScore {
			return a.TrustScore > b.TrustScore
		}
		if a.AvgResponseMinutes != b.AvgResponseMinutes {
			return a.AvgResponseMinutes < b.AvgResponseMinutes
		}
		return a.ID < b.ID
	})
	if len(eligible) > e.fanout {
		eligible = eligible[:e.fanout]
	}

	candidates := make([]models.MatchCandidate, len(eligible))
	for i, p := range eligible {
		candidates[i] = models.MatchCandidate{ProviderID: p.ID, Rank: i + 1}
	}
	return candidates, nil
}
