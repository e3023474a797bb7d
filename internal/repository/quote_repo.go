package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuoteRepository - интерфейс для работы с предложениями поставщиков.
type QuoteRepository interface {
	Create(ctx context.Context, quote models.Quote) error
	GetByID(ctx context.Context, id string) (*models.Quote, error)
	ListByRfq(ctx context.Context, rfqID string) ([]models.Quote, error)
	Transition(ctx context.Context, id string, expected []models.QuoteStatus, change QuoteChange) (bool, *models.Quote, error)
	ClosePending(ctx context.Context, rfqID string, change QuoteChange) ([]models.Quote, error)
}

// QuoteChange описывает переход статуса предложения.
type QuoteChange struct {
	Next   models.QuoteStatus
	Reason string
	At     time.Time
}

// PostgresQuoteRepository - реализация QuoteRepository для базы данных.
type PostgresQuoteRepository struct {
	conn
}

// NewPostgresQuoteRepository создает новый экземпляр PostgresQuoteRepository.
func NewPostgresQuoteRepository(db *pgxpool.Pool) *PostgresQuoteRepository {
	return &PostgresQuoteRepository{conn{DB: db}}
}

const quoteColumns = `id, rfq_id, provider_id, price, currency, delivery_eta_days, notes, status, status_reason,
	created_at, updated_at, version`

func scanQuote(row pgx.Row) (*models.Quote, error) {
	var quote models.Quote
	err := row.Scan(
		&quote.ID,
		&quote.RfqID,
		&quote.ProviderID,
		&quote.Price,
		&quote.Currency,
		&quote.DeliveryEtaDays,
		&quote.Notes,
		&quote.Status,
		&quote.StatusReason,
		&quote.CreatedAt,
		&quote.UpdatedAt,
		&quote.Version)
	if err != nil {
		return nil, err
	}
	return &quote, nil
}

// Create сохраняет новое предложение. Второе ожидающее предложение того же поставщика дает конфликт.
func (r *PostgresQuoteRepository) Create(ctx context.Context, quote models.Quote) error {
	const stmt = `INSERT INTO quote (id, rfq_id, provider_id, price, currency, delivery_eta_days, notes, status,
		created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.exec(ctx, stmt,
		quote.ID,
		quote.RfqID,
		quote.ProviderID,
		quote.Price,
		quote.Currency,
		quote.DeliveryEtaDays,
		quote.Notes,
		quote.Status,
		quote.CreatedAt,
		quote.UpdatedAt,
		quote.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return models.NewConflictError("provider already has a pending quote for this rfq")
		}
		return fmt.Errorf("create quote: %w", err)
	}
	return nil
}

// GetByID возвращает предложение по идентификатору.
func (r *PostgresQuoteRepository) GetByID(ctx context.Context, id string) (*models.Quote, error) {
	quote, err := scanQuote(r.queryRow(ctx, `SELECT `+quoteColumns+` FROM quote WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) || isInvalidUUID(err) {
			return nil, models.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("get quote: %w", err)
	}
	return quote, nil
}

// ListByRfq возвращает все предложения по запросу в порядке поступления.
func (r *PostgresQuoteRepository) ListByRfq(ctx context.Context, rfqID string) ([]models.Quote, error) {
	const query = `SELECT ` + quoteColumns + ` FROM quote WHERE rfq_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, rfqID)
}

func (r *PostgresQuoteRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Quote, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, models.ErrRfqNotFound
		}
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	quotes := make([]models.Quote, 0)
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		quotes = append(quotes, *quote)
	}
	return quotes, rows.Err()
}

// Transition переводит предложение в change.Next, только если текущий статус входит в expected.
func (r *PostgresQuoteRepository) Transition(ctx context.Context, id string, expected []models.QuoteStatus, change QuoteChange) (bool, *models.Quote, error) {
	const stmt = `UPDATE quote SET
		status = $2,
		status_reason = NULLIF($3, ''),
		updated_at = $4,
		version = version + 1
		WHERE id = $1 AND status = ANY($5)
		RETURNING ` + quoteColumns

	quote, err := scanQuote(r.queryRow(ctx, stmt, id, change.Next, change.Reason, change.At, textArray(expected)))
	if err == nil {
		return true, quote, nil
	}
	if isInvalidUUID(err) {
		return false, nil, models.ErrQuoteNotFound
	}
	if isUniqueViolation(err) {
		return false, nil, models.NewConflictError("rfq already has an accepted quote")
	}
	if !isNoRows(err) {
		return false, nil, fmt.Errorf("transition quote: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return false, nil, err
	}
	return false, current, nil
}

// ClosePending переводит все ожидающие предложения запроса в change.Next и возвращает затронутые строки.
func (r *PostgresQuoteRepository) ClosePending(ctx context.Context, rfqID string, change QuoteChange) ([]models.Quote, error) {
	const stmt = `UPDATE quote SET
		status = $2,
		status_reason = NULLIF($3, ''),
		updated_at = $4,
		version = version + 1
		WHERE rfq_id = $1 AND status = 'PENDING'
		RETURNING ` + quoteColumns
	return r.list(ctx, stmt, rfqID, change.Next, change.Reason, change.At)
}
