package services

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"
)

const (
	defaultRfqTTL       = 30 * 24 * time.Hour
	maxMessageLength    = 2000
	maxIdentifierLength = 100
	maxUnitLength       = 50
)

// RfqService - сервис для работы с запросами котировок.
type RfqService struct {
	rfqs    repository.RfqRepository
	quotes  repository.QuoteRepository
	matches repository.MatchRepository
	engine  *MatchingEngine
	clock   clock.Clock
	ttl     time.Duration
}

// RfqServiceOption настраивает RfqService.
type RfqServiceOption func(*RfqService)

// WithRfqTTL задает срок жизни запроса без желаемой даты.
func WithRfqTTL(d time.Duration) RfqServiceOption {
	return func(s *RfqService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// NewRfqService создает новый экземпляр RfqService.
func NewRfqService(rfqs repository.RfqRepository, quotes repository.QuoteRepository, matches repository.MatchRepository,
	engine *MatchingEngine, clk clock.Clock, opts ...RfqServiceOption) *RfqService {
	s := &RfqService{
		rfqs:    rfqs,
		quotes:  quotes,
		matches: matches,
		engine:  engine,
		clock:   clk,
		ttl:     defaultRfqTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRfq создает открытый запрос и запускает подбор поставщиков.
// Ошибка подбора не отменяет создание.
func (s *RfqService) CreateRfq(ctx context.Context, actor models.Actor, req models.RfqRequest) (*models.Rfq, error) {
	now := s.clock.Now()
	if err := validateRfqRequest(actor, req, now); err != nil {
		return nil, err
	}

	rfq := models.Rfq{
		ID:               newID(),
		ConsumerID:       actor.ID,
		CatalogID:        trimmedOrNil(req.CatalogID),
		Category:         trimmedOrNil(req.Category),
		TargetProviderID: trimmedOrNil(req.TargetProviderID),
		Quantity:         req.Quantity,
		Unit:             strings.TrimSpace(req.Unit),
		Message:          req.Message,
		PreferredDate:    req.PreferredDate,
		ExpiresAt:        now.Add(s.ttl),
		Status:           models.OpenRfq,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	if req.PreferredDate != nil {
		rfq.ExpiresAt = req.PreferredDate.UTC()
	}

	if err := s.rfqs.Create(ctx, rfq); err != nil {
		return nil, err
	}
	logging.Info(ctx, "rfq created", slog.String("rfq_id", rfq.ID), slog.String("consumer_id", rfq.ConsumerID))

	if _, err := s.engine.Match(ctx, &rfq); err != nil {
		logging.Error(ctx, "matching failed", slog.String("rfq_id", rfq.ID), logging.Err(err))
	}
	return &rfq, nil
}

func validateRfqRequest(actor models.Actor, req models.RfqRequest, now time.Time) error {
	if req.Quantity <= 0 {
		return models.NewValidationError("quantity must be positive")
	}
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		return models.NewValidationError("unit is required")
	}
	if utf8.RuneCountInString(unit) > maxUnitLength {
		return models.NewValidationError("unit is too long")
	}
	if err := validateIdentifier("user id", actor.ID); err != nil {
		return err
	}
	for name, value := range map[string]*string{
		"catalog id":         req.CatalogID,
		"category":           req.Category,
		"target provider id": req.TargetProviderID,
	} {
		if v := trimmedOrNil(value); v != nil {
			if err := validateIdentifier(name, *v); err != nil {
				return err
			}
		}
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLength {
		return models.NewValidationError("message is too long")
	}
	if req.PreferredDate != nil && req.PreferredDate.Before(now) {
		return models.NewValidationError("preferred date must not be in the past")
	}
	if target := trimmedOrNil(req.TargetProviderID); target != nil && *target == actor.ID {
		return models.NewValidationError("rfq cannot be directed to its own consumer")
	}
	return nil
}

// validateIdentifier проверяет, что идентификатор помещается в колонку VARCHAR(100).
func validateIdentifier(name, value string) error {
	if utf8.RuneCountInString(value) > maxIdentifierLength {
		return models.NewValidationError(name + " is too long")
	}
	return nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// GetRfq возвращает запрос владельцу, подобранным поставщикам и поставщикам, приславшим предложение.
func (s *RfqService) GetRfq(ctx context.Context, actor models.Actor, rfqID string) (*models.Rfq, error) {
	rfq, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.ConsumerID == actor.ID {
		return rfq, nil
	}
	if rfq.IsDirected() && *rfq.TargetProviderID == actor.ID {
		return rfq, nil
	}

	matched, err := s.matches.IsMatched(ctx, rfqID, actor.ID)
	if err != nil {
		return nil, err
	}
	if matched {
		return rfq, nil
	}

	quotes, err := s.quotes.ListByRfq(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		if q.ProviderID == actor.ID {
			return rfq, nil
		}
	}
	return nil, models.NewForbiddenError("not enough rights to view this rfq")
}

// ListMyRfqs возвращает запросы потребителя.
func (s *RfqService) ListMyRfqs(ctx context.Context, actor models.Actor, filter models.RfqFilter) ([]models.Rfq, error) {
	if filter.Status != nil && !models.ValidRfqStatus(*filter.Status) {
		return nil, models.NewValidationError("invalid status filter")
	}
	return s.rfqs.ListByConsumer(ctx, actor.ID, filter)
}

// Rematch повторно запускает подбор поставщиков по открытому запросу владельца.
func (s *RfqService) Rematch(ctx context.Context, actor models.Actor, rfqID string) ([]models.MatchCandidate, error) {
	rfq, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.ConsumerID != actor.ID {
		return nil, models.NewForbiddenError("only the rfq consumer can run matching")
	}
	return s.engine.Match(ctx, rfq)
}

// ListMatches возвращает потребителю поставщиков, подобранных для его запроса, в порядке ранга.
func (s *RfqService) ListMatches(ctx context.Context, actor models.Actor, rfqID string) ([]models.MatchCandidate, error) {
	rfq, err := s.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.ConsumerID != actor.ID {
		return nil, models.NewForbiddenError("only the rfq consumer can view matched providers")
	}
	return s.matches.ListByRfq(ctx, rfqID)
}
