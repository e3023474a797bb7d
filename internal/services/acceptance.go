package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/senyabanana/rfq-service/internal/clock"
	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"
)

// AcceptanceCoordinator выполняет переходы, которые закрывают запрос или отзывают предложение.
// Каждый переход атомарен: запрос, предложения и исходящий ящик меняются в одной транзакции.
type AcceptanceCoordinator struct {
	tx     repository.Transactor
	rfqs   repository.RfqRepository
	quotes repository.QuoteRepository
	outbox repository.OutboxRepository
	clock  clock.Clock
}

// NewAcceptanceCoordinator создает новый экземпляр AcceptanceCoordinator.
func NewAcceptanceCoordinator(tx repository.Transactor, rfqs repository.RfqRepository, quotes repository.QuoteRepository,
	outbox repository.OutboxRepository, clk clock.Clock) *AcceptanceCoordinator {
	return &AcceptanceCoordinator{tx: tx, rfqs: rfqs, quotes: quotes, outbox: outbox, clock: clk}
}

// Accept выбирает предложение: запрос становится ACCEPTED, остальные ожидающие предложения отклоняются.
// Из N одновременных вызовов успешен ровно один, остальные получают конфликт.
func (c *AcceptanceCoordinator) Accept(ctx context.Context, actor models.Actor, rfqID, quoteID string) (*models.Quote, error) {
	rfq, err := c.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.ConsumerID != actor.ID {
		return nil, models.NewForbiddenError("only the rfq consumer can accept a quote")
	}
	quote, err := c.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.RfqID != rfq.ID {
		return nil, models.NewNotFoundError("quote does not belong to this rfq")
	}
	if rfq.Status != models.OpenRfq {
		return nil, rfqStateError(rfq)
	}

	now := c.clock.Now()
	var accepted *models.Quote
	var rejected []models.Quote

	err = c.tx.WithTx(ctx, func(txCtx context.Context) error {
		ok, current, err := c.rfqs.Transition(txCtx, rfqID, []models.RfqStatus{models.OpenRfq}, repository.RfqChange{
			Next:            models.AcceptedRfq,
			AcceptedQuoteID: &quoteID,
			At:              now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return rfqStateError(current)
		}

		ok, winner, err := c.quotes.Transition(txCtx, quoteID, []models.QuoteStatus{models.PendingQuote}, repository.QuoteChange{
			Next: models.AcceptedQuote,
			At:   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return models.NewConflictError(fmt.Sprintf("quote is already %s", winner.Status))
		}

		rejected, err = c.quotes.ClosePending(txCtx, rfqID, repository.QuoteChange{
			Next:   models.RejectedQuote,
			Reason: models.ReasonNotSelected,
			At:     now,
		})
		if err != nil {
			return err
		}

		messages := []models.OutboxMessage{
			models.NewOutboxMessage(newID(), winner.ProviderID, models.QuoteAccepted, winner.ID, now),
		}
		messages = append(messages, rejectionMessages(rejected, now)...)
		accepted = winner
		return c.outbox.Enqueue(txCtx, messages...)
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "quote accepted",
		slog.String("rfq_id", rfqID),
		slog.String("quote_id", quoteID),
		slog.Int("rejected", len(rejected)))
	return accepted, nil
}

// Withdraw отзывает ожидающее предложение поставщика, пока запрос открыт.
func (c *AcceptanceCoordinator) Withdraw(ctx context.Context, actor models.Actor, quoteID string) (*models.Quote, error) {
	quote, err := c.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.ProviderID != actor.ID {
		return nil, models.NewForbiddenError("only the quote provider can withdraw it")
	}
	if quote.Status != models.PendingQuote {
		return nil, models.NewConflictError(fmt.Sprintf("quote is already %s", quote.Status))
	}

	now := c.clock.Now()
	var withdrawn *models.Quote
	err = c.tx.WithTx(ctx, func(txCtx context.Context) error {
		rfq, err := c.rfqs.GetByIDForShare(txCtx, quote.RfqID)
		if err != nil {
			return err
		}
		if rfq.Status != models.OpenRfq {
			return rfqStateError(rfq)
		}

		ok, current, err := c.quotes.Transition(txCtx, quoteID, []models.QuoteStatus{models.PendingQuote}, repository.QuoteChange{
			Next:   models.WithdrawnQuote,
			Reason: models.ReasonWithdrawn,
			At:     now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return models.NewConflictError(fmt.Sprintf("quote is already %s", current.Status))
		}
		withdrawn = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "quote withdrawn", slog.String("rfq_id", quote.RfqID), slog.String("quote_id", quoteID))
	return withdrawn, nil
}

// Cancel отменяет открытый запрос владельца и отклоняет все ожидающие предложения.
func (c *AcceptanceCoordinator) Cancel(ctx context.Context, actor models.Actor, rfqID, reason string) (*models.Rfq, error) {
	rfq, err := c.rfqs.GetByID(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	if rfq.ConsumerID != actor.ID {
		return nil, models.NewForbiddenError("only the rfq consumer can cancel it")
	}
	if rfq.Status != models.OpenRfq {
		return nil, rfqStateError(rfq)
	}

	var closeReason *string
	if r := strings.TrimSpace(reason); r != "" {
		closeReason = &r
	}

	now := c.clock.Now()
	var cancelled *models.Rfq
	var rejected []models.Quote

	err = c.tx.WithTx(ctx, func(txCtx context.Context) error {
		ok, current, err := c.rfqs.Transition(txCtx, rfqID, []models.RfqStatus{models.OpenRfq}, repository.RfqChange{
			Next:        models.CancelledRfq,
			CloseReason: closeReason,
			At:          now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return rfqStateError(current)
		}

		rejected, err = c.quotes.ClosePending(txCtx, rfqID, repository.QuoteChange{
			Next:   models.RejectedQuote,
			Reason: models.ReasonRfqCancelled,
			At:     now,
		})
		if err != nil {
			return err
		}
		cancelled = current
		return c.outbox.Enqueue(txCtx, rejectionMessages(rejected, now)...)
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, "rfq cancelled", slog.String("rfq_id", rfqID), slog.Int("rejected", len(rejected)))
	return cancelled, nil
}

func rejectionMessages(quotes []models.Quote, now time.Time) []models.OutboxMessage {
	messages := make([]models.OutboxMessage, 0, len(quotes))
	for _, q := range quotes {
		messages = append(messages, models.NewOutboxMessage(newID(), q.ProviderID, models.QuoteRejected, q.ID, now))
	}
	return messages
}
