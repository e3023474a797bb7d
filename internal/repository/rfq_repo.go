package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RfqRepository - интерфейс для работы с запросами котировок.
type RfqRepository interface {
	Create(ctx context.Context, rfq models.Rfq) error
	GetByID(ctx context.Context, id string) (*models.Rfq, error)
	GetByIDForShare(ctx context.Context, id string) (*models.Rfq, error)
	ListByConsumer(ctx context.Context, consumerID string, filter models.RfqFilter) ([]models.Rfq, error)
	ListExpirable(ctx context.Context, now time.Time, exclude []string, limit int) ([]models.Rfq, error)
	Transition(ctx context.Context, id string, expected []models.RfqStatus, change RfqChange) (bool, *models.Rfq, error)
}

// RfqChange описывает переход статуса запроса.
type RfqChange struct {
	Next            models.RfqStatus
	AcceptedQuoteID *string
	CloseReason     *string
	At              time.Time
}

// PostgresRfqRepository - реализация RfqRepository для базы данных.
type PostgresRfqRepository struct {
	conn
}

// NewPostgresRfqRepository создает новый экземпляр PostgresRfqRepository.
func NewPostgresRfqRepository(db *pgxpool.Pool) *PostgresRfqRepository {
	return &PostgresRfqRepository{conn{DB: db}}
}

const rfqColumns = `id, consumer_id, catalog_id, category, target_provider_id, quantity, unit, message,
	preferred_date, expires_at, status, accepted_quote_id, close_reason, created_at, updated_at, version`

func scanRfq(row pgx.Row) (*models.Rfq, error) {
	var rfq models.Rfq
	err := row.Scan(
		&rfq.ID,
		&rfq.ConsumerID,
		&rfq.CatalogID,
		&rfq.Category,
		&rfq.TargetProviderID,
		&rfq.Quantity,
		&rfq.Unit,
		&rfq.Message,
		&rfq.PreferredDate,
		&rfq.ExpiresAt,
		&rfq.Status,
		&rfq.AcceptedQuoteID,
		&rfq.CloseReason,
		&rfq.CreatedAt,
		&rfq.UpdatedAt,
		&rfq.Version)
	if err != nil {
		return nil, err
	}
	return &rfq, nil
}

// Create сохраняет новый запрос.
func (r *PostgresRfqRepository) Create(ctx context.Context, rfq models.Rfq) error {
	const stmt = `INSERT INTO rfq (id, consumer_id, catalog_id, category, target_provider_id, quantity, unit, message,
		preferred_date, expires_at, status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.exec(ctx, stmt,
		rfq.ID,
		rfq.ConsumerID,
		rfq.CatalogID,
		rfq.Category,
		rfq.TargetProviderID,
		rfq.Quantity,
		rfq.Unit,
		rfq.Message,
		rfq.PreferredDate,
		rfq.ExpiresAt,
		rfq.Status,
		rfq.CreatedAt,
		rfq.UpdatedAt,
		rfq.Version)
	if err != nil {
		return fmt.Errorf("create rfq: %w", err)
	}
	return nil
}

// GetByID возвращает запрос по идентификатору.
func (r *PostgresRfqRepository) GetByID(ctx context.Context, id string) (*models.Rfq, error) {
	return r.get(ctx, `SELECT `+rfqColumns+` FROM rfq WHERE id = $1`, id)
}

// GetByIDForShare читает запрос с разделяемой блокировкой строки до конца транзакции.
func (r *PostgresRfqRepository) GetByIDForShare(ctx context.Context, id string) (*models.Rfq, error) {
	return r.get(ctx, `SELECT `+rfqColumns+` FROM rfq WHERE id = $1 FOR SHARE`, id)
}

func (r *PostgresRfqRepository) get(ctx context.Context, query, id string) (*models.Rfq, error) {
	rfq, err := scanRfq(r.queryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) || isInvalidUUID(err) {
			return nil, models.ErrRfqNotFound
		}
		return nil, fmt.Errorf("get rfq: %w", err)
	}
	return rfq, nil
}

// ListByConsumer возвращает запросы потребителя, новые первыми.
func (r *PostgresRfqRepository) ListByConsumer(ctx context.Context, consumerID string, filter models.RfqFilter) ([]models.Rfq, error) {
	query := `SELECT ` + rfqColumns + ` FROM rfq WHERE consumer_id = $1`
	args := []interface{}{consumerID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return r.list(ctx, query, args...)
}

// ListExpirable возвращает открытые запросы, срок которых истек к моменту now, кроме exclude.
func (r *PostgresRfqRepository) ListExpirable(ctx context.Context, now time.Time, exclude []string, limit int) ([]models.Rfq, error) {
	const query = `SELECT ` + rfqColumns + ` FROM rfq
		WHERE status = 'OPEN' AND expires_at < $1 AND NOT (id::text = ANY($2))
		ORDER BY expires_at, id
		LIMIT $3`
	if exclude == nil {
		exclude = []string{}
	}
	return r.list(ctx, query, now, textArray(exclude), limit)
}

func (r *PostgresRfqRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.Rfq, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rfqs: %w", err)
	}
	defer rows.Close()

	rfqs := make([]models.Rfq, 0)
	for rows.Next() {
		rfq, err := scanRfq(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rfq: %w", err)
		}
		rfqs = append(rfqs, *rfq)
	}
	return rfqs, rows.Err()
}

// Transition переводит запрос в change.Next, только если текущий статус входит в expected.
// При проигранной гонке возвращает false и актуальную строку без ошибки.
func (r *PostgresRfqRepository) Transition(ctx context.Context, id string, expected []models.RfqStatus, change RfqChange) (bool, *models.Rfq, error) {
	const stmt = `UPDATE rfq SET
		status = $2,
		accepted_quote_id = COALESCE($3, accepted_quote_id),
		close_reason = COALESCE($4, close_reason),
		updated_at = $5,
		version = version + 1
		WHERE id = $1 AND status = ANY($6)
		RETURNING ` + rfqColumns

	rfq, err := scanRfq(r.queryRow(ctx, stmt,
		id, change.Next, change.AcceptedQuoteID, change.CloseReason, change.At, textArray(expected)))
	if err == nil {
		return true, rfq, nil
	}
	if isInvalidUUID(err) {
		return false, nil, models.ErrRfqNotFound
	}
	if !isNoRows(err) {
		return false, nil, fmt.Errorf("transition rfq: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return false, nil, err
	}
	return false, current, nil
}
