package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRepository - интерфейс исходящего ящика уведомлений.
type OutboxRepository interface {
	Enqueue(ctx context.Context, messages ...models.OutboxMessage) error
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxMessage, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error
}

// PostgresOutboxRepository - реализация OutboxRepository для базы данных.
type PostgresOutboxRepository struct {
	conn
}

// NewPostgresOutboxRepository создает новый экземпляр PostgresOutboxRepository.
func NewPostgresOutboxRepository(db *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{conn{DB: db}}
}

const outboxColumns = `id, user_id, type, reference_id, dedupe_key, created_at, attempts, next_attempt_at, delivered_at, last_error`

func scanOutbox(row pgx.Row) (*models.OutboxMessage, error) {
	var msg models.OutboxMessage
	err := row.Scan(
		&msg.ID,
		&msg.UserID,
		&msg.Type,
		&msg.ReferenceID,
		&msg.DedupeKey,
		&msg.CreatedAt,
		&msg.Attempts,
		&msg.NextAttemptAt,
		&msg.DeliveredAt,
		&msg.LastError)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Enqueue записывает сообщения; повтор по ключу дедупликации молча пропускается.
func (r *PostgresOutboxRepository) Enqueue(ctx context.Context, messages ...models.OutboxMessage) error {
	const stmt = `INSERT INTO notification_outbox (id, user_id, type, reference_id, dedupe_key, created_at, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedupe_key) DO NOTHING`
	for _, msg := range messages {
		if _, err := r.exec(ctx, stmt,
			msg.ID, msg.UserID, msg.Type, msg.ReferenceID, msg.DedupeKey, msg.CreatedAt, msg.NextAttemptAt); err != nil {
			return fmt.Errorf("enqueue notification %s: %w", msg.DedupeKey, err)
		}
	}
	return nil
}

// ClaimDue забирает недоставленные сообщения, срок которых наступил, и сдвигает их на время аренды,
// чтобы параллельный диспетчер их не взял.
func (r *PostgresOutboxRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxMessage, error) {
	const stmt = `UPDATE notification_outbox o SET next_attempt_at = $2
		FROM (
			SELECT id FROM notification_outbox
			WHERE delivered_at IS NULL AND next_attempt_at <= $1
			ORDER BY next_attempt_at, created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		) due
		WHERE o.id = due.id
		RETURNING o.id, o.user_id, o.type, o.reference_id, o.dedupe_key, o.created_at, o.attempts,
			o.next_attempt_at, o.delivered_at, o.last_error`

	rows, err := r.query(ctx, stmt, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox: %w", err)
	}
	defer rows.Close()

	claimed := make([]models.OutboxMessage, 0)
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		claimed = append(claimed, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(claimed, func(i, j int) bool {
		return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
	})
	return claimed, nil
}

// MarkDelivered отмечает сообщение доставленным.
func (r *PostgresOutboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const stmt = `UPDATE notification_outbox SET delivered_at = $2, last_error = '' WHERE id = $1`
	if _, err := r.exec(ctx, stmt, id, at); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkFailed учитывает неудачные попытки и откладывает следующую.
func (r *PostgresOutboxRepository) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	const stmt = `UPDATE notification_outbox
		SET attempts = attempts + $2, next_attempt_at = $3, last_error = $4
		WHERE id = $1 AND delivered_at IS NULL`
	if _, err := r.exec(ctx, stmt, id, attempts, nextAttemptAt, lastError); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}
