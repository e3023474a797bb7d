package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/utils"
)

// RfqUseCases - операции над запросами, нужные обработчикам.
type RfqUseCases interface {
	CreateRfq(ctx context.Context, actor models.Actor, req models.RfqRequest) (*models.Rfq, error)
	GetRfq(ctx context.Context, actor models.Actor, rfqID string) (*models.Rfq, error)
	ListMyRfqs(ctx context.Context, actor models.Actor, filter models.RfqFilter) ([]models.Rfq, error)
	Rematch(ctx context.Context, actor models.Actor, rfqID string) ([]models.MatchCandidate, error)
	ListMatches(ctx context.Context, actor models.Actor, rfqID string) ([]models.MatchCandidate, error)
}

// QuoteUseCases - операции над предложениями, нужные обработчикам.
type QuoteUseCases interface {
	SubmitQuote(ctx context.Context, actor models.Actor, rfqID string, req models.QuoteRequest) (*models.Quote, error)
	ListQuotes(ctx context.Context, actor models.Actor, rfqID string) ([]models.Quote, error)
}

// Coordinator - переходы, закрывающие запрос или предложение.
type Coordinator interface {
	Accept(ctx context.Context, actor models.Actor, rfqID, quoteID string) (*models.Quote, error)
	Withdraw(ctx context.Context, actor models.Actor, quoteID string) (*models.Quote, error)
	Cancel(ctx context.Context, actor models.Actor, rfqID, reason string) (*models.Rfq, error)
}

// NotificationUseCases - операции входящего ящика.
type NotificationUseCases interface {
	ListNotifications(ctx context.Context, actor models.Actor, filter models.NotificationFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, actor models.Actor, notificationID string) (*models.Notification, error)
}

// RatingUseCases - операции с отзывами.
type RatingUseCases interface {
	CanRate(ctx context.Context, actorID string, targetType models.RatingTargetType, targetID string) (bool, error)
	SubmitRating(ctx context.Context, actor models.Actor, req models.RatingRequest) (*models.Rating, error)
	ProviderSummary(ctx context.Context, providerID string) (models.RatingSummary, error)
}

// base - общие зависимости обработчиков.
type base struct {
	Logger  *slog.Logger
	Timeout time.Duration
}

func (b base) context(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := r.Context()
	if b.Logger != nil {
		ctx = logging.WithLogger(ctx, b.Logger)
	}
	if b.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.Timeout)
}

// fail переводит ошибку сервиса в HTTP-ответ; неизвестные ошибки логируются и скрываются за fallback.
func (b base) fail(ctx context.Context, w http.ResponseWriter, err error, fallback string) {
	var errorResponse *models.ErrorResponse
	if errors.As(err, &errorResponse) {
		logging.Info(ctx, "request rejected", slog.Int("status", errorResponse.StatusCode), logging.Err(err))
		utils.SendErrorResponse(w, errorResponse.StatusCode, errorResponse.Message)
		return
	}
	logging.Error(ctx, fallback, logging.Err(err))
	if errors.Is(err, context.DeadlineExceeded) {
		utils.SendErrorResponse(w, http.StatusGatewayTimeout, "request timed out")
		return
	}
	utils.SendErrorResponse(w, http.StatusInternalServerError, fallback)
}

func (b base) respond(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	if err := utils.SendJSON(w, status, body); err != nil {
		logging.Warn(ctx, "failed to write response", logging.Err(err))
	}
}

func actorFrom(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := models.ActorFromContext(r.Context())
	if !ok {
		utils.SendErrorResponse(w, http.StatusUnauthorized, "user identity is required")
	}
	return actor, ok
}

// decodeBody разбирает JSON-тело; пустое тело допустимо, только если optional.
func decodeBody(r *http.Request, dst interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	return err
}
