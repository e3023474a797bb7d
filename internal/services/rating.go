package services

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"
)

// RatingGate решает, может ли действующее лицо оставить отзыв, и принимает отзывы.
type RatingGate struct {
	tx      repository.Transactor
	ratings repository.RatingRepository
	rfqs    repository.RfqRepository
	quotes  repository.QuoteRepository
	clock   clock.Clock
}

// NewRatingGate создает новый экземпляр RatingGate.
func NewRatingGate(tx repository.Transactor, ratings repository.RatingRepository, rfqs repository.RfqRepository,
	quotes repository.QuoteRepository, clk clock.Clock) *RatingGate {
	return &RatingGate{tx: tx, ratings: ratings, rfqs: rfqs, quotes: quotes, clock: clk}
}

// CanRate проверяет, что между действующим лицом и целью есть завершенная сделка.
// Только чтение.
func (g *RatingGate) CanRate(ctx context.Context, actorID string, targetType models.RatingTargetType, targetID string) (bool, error) {
	if targetID == "" {
		return false, models.NewValidationError("target id is required")
	}
	switch targetType {
	case models.ProviderTarget:
		return g.ratings.HasAcceptedDeal(ctx, actorID, targetID)
	case models.ConsumerTarget:
		return g.ratings.HasAcceptedDeal(ctx, targetID, actorID)
	default:
		return false, models.NewValidationError("unknown rating target type")
	}
}

// SubmitRating сохраняет отзыв по запросу с принятым предложением.
func (g *RatingGate) SubmitRating(ctx context.Context, actor models.Actor, req models.RatingRequest) (*models.Rating, error) {
	if req.Stars < 1 || req.Stars > 5 {
		return nil, models.NewValidationError("stars must be between 1 and 5")
	}
	if utf8.RuneCountInString(req.Comment) > maxMessageLength {
		return nil, models.NewValidationError("comment is too long")
	}
	if req.TargetType != models.ProviderTarget && req.TargetType != models.ConsumerTarget {
		return nil, models.NewValidationError("unknown rating target type")
	}

	rfq, err := g.rfqs.GetByID(ctx, req.RfqID)
	if err != nil {
		return nil, err
	}
	if rfq.Status != models.AcceptedRfq || rfq.AcceptedQuoteID == nil {
		return nil, models.NewConflictError("rfq has no accepted quote")
	}
	winner, err := g.quotes.GetByID(ctx, *rfq.AcceptedQuoteID)
	if err != nil {
		return nil, err
	}

	var targetID string
	switch req.TargetType {
	case models.ProviderTarget:
		if actor.ID != rfq.ConsumerID {
			return nil, models.NewForbiddenError("only the rfq consumer can rate the provider")
		}
		targetID = winner.ProviderID
	case models.ConsumerTarget:
		if actor.ID != winner.ProviderID {
			return nil, models.NewForbiddenError("only the accepted provider can rate the consumer")
		}
		targetID = rfq.ConsumerID
	}
	if req.TargetID != "" && req.TargetID != targetID {
		return nil, models.NewForbiddenError("target did not take part in this deal")
	}

	rating := models.Rating{
		ID:         newID(),
		RfqID:      rfq.ID,
		AuthorID:   actor.ID,
		TargetType: req.TargetType,
		TargetID:   targetID,
		Stars:      req.Stars,
		Comment:    strings.TrimSpace(req.Comment),
		CreatedAt:  g.clock.Now(),
	}

	err = g.tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := g.ratings.Create(txCtx, rating); err != nil {
			return err
		}
		if rating.TargetType != models.ProviderTarget {
			return nil
		}
		return g.ratings.IncrementProviderSummary(txCtx, rating.TargetID, rating.Stars, rating.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "rating submitted", slog.String("rfq_id", rfq.ID), slog.String("target_type", string(rating.TargetType)))
	return &rating, nil
}

// ProviderSummary возвращает агрегат оценок поставщика.
func (g *RatingGate) ProviderSummary(ctx context.Context, providerID string) (models.RatingSummary, error) {
	return g.ratings.ProviderSummary(ctx, providerID)
}
