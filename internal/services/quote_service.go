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

	"github.com/shopspring/decimal"
)

// Цена хранится в NUMERIC(18,4).
const priceScale = 4

var maxPrice = decimal.New(1, 18-priceScale)

// QuoteService - сервис для подачи и просмотра предложений.
type QuoteService struct {
	tx     repository.Transactor
	rfqs   repository.RfqRepository
	quotes repository.QuoteRepository
	outbox repository.OutboxRepository
	clock  clock.Clock
}

// NewQuoteService создает новый экземпляр QuoteService.
func NewQuoteService(tx repository.Transactor, rfqs repository.RfqRepository, quotes repository.QuoteRepository,
	outbox repository.OutboxRepository, clk clock.Clock) *QuoteService {
	return &QuoteService{tx: tx, rfqs: rfqs, quotes: quotes, outbox: outbox, clock: clk}
}

// SubmitQuote сохраняет предложение поставщика по открытому запросу и уведомляет потребителя.
func (s *QuoteService) SubmitQuote(ctx context.Context, actor models.Actor, rfqID string, req models.QuoteRequest) (*models.Quote, error) {
	currency, err := validateQuoteRequest(actor, req)
	if err != nil {
		return nil, err
	}

	rfq, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.ConsumerID == actor.ID {
		return nil, models.NewForbiddenError("consumer cannot quote on own rfq")
	}
	if rfq.IsDirected() && *rfq.TargetProviderID != actor.ID {
		return nil, models.NewForbiddenError("rfq is directed to another provider")
	}

	now := s.clock.Now()
	quote := models.Quote{
		ID:              newID(),
		RfqID:           rfq.ID,
		ProviderID:      actor.ID,
		Price:           req.Price,
		Currency:        currency,
		DeliveryEtaDays: req.DeliveryEtaDays,
		Notes:           req.Notes,
		Status:          models.PendingQuote,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}

	err = s.tx.WithTx(ctx, func(txCtx context.Context) error {
		current, err := s.rfqs.GetByIDForShare(txCtx, rfqID)
		if err != nil {
			return err
		}
		if current.Status != models.OpenRfq {
			return rfqStateError(current)
		}
		if now.After(current.ExpiresAt) {
			return models.NewExpiredError("rfq has expired")
		}
		if err := s.quotes.Create(txCtx, quote); err != nil {
			return err
		}
		return s.outbox.Enqueue(txCtx,
			models.NewOutboxMessage(newID(), current.ConsumerID, models.QuoteReceived, quote.ID, now))
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "quote submitted", slog.String("rfq_id", rfqID), slog.String("quote_id", quote.ID))
	return &quote, nil
}

func validateQuoteRequest(actor models.Actor, req models.QuoteRequest) (string, error) {
	if err := validateIdentifier("user id", actor.ID); err != nil {
		return "", err
	}
	if !req.Price.IsPositive() {
		return "", models.NewValidationError("price must be positive")
	}
	if req.Price.GreaterThanOrEqual(maxPrice) {
		return "", models.NewValidationError("price is too large")
	}
	if !req.Price.Equal(req.Price.Truncate(priceScale)) {
		return "", models.NewValidationError("price must have at most 4 decimal places")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(currency) != 3 {
		return "", models.NewValidationError("currency must be a 3-letter ISO code")
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", models.NewValidationError("currency must be a 3-letter ISO code")
		}
	}
	if req.DeliveryEtaDays != nil && *req.DeliveryEtaDays < 0 {
		return "", models.NewValidationError("delivery eta must not be negative")
	}
	if utf8.RuneCountInString(req.Notes) > maxMessageLength {
		return "", models.NewValidationError("notes are too long")
	}
	return currency, nil
}

// ListQuotes возвращает потребителю все предложения, а поставщику только его собственные.
func (s *QuoteService) ListQuotes(ctx context.Context, actor models.Actor, rfqID string) ([]models.Quote, error) {
	rfq, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	quotes, err := s.quotes.ListByRfq(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.ConsumerID == actor.ID {
		return quotes, nil
	}

	own := make([]models.Quote, 0, 1)
	for _, q := range quotes {
		if q.ProviderID == actor.ID {
			own = append(own, q)
		}
	}
	return own, nil
}
