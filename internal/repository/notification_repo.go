package repository

import (
	"context"
	"fmt"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepository - интерфейс входящего ящика пользователя.
type NotificationRepository interface {
	Insert(ctx context.Context, notification models.Notification) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) (*models.Notification, error)
}

// PostgresNotificationRepository - реализация NotificationRepository для базы данных.
type PostgresNotificationRepository struct {
	conn
}

// NewPostgresNotificationRepository создает новый экземпляр PostgresNotificationRepository.
func NewPostgresNotificationRepository(db *pgxpool.Pool) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{conn{DB: db}}
}

const notificationColumns = `id, user_id, type, reference_id, read, created_at, version`

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var n models.Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.ReferenceID, &n.Read, &n.CreatedAt, &n.Version); err != nil {
		return nil, err
	}
	return &n, nil
}

// Insert кладет уведомление во входящий ящик. Повторная вставка того же id возвращает false.
func (r *PostgresNotificationRepository) Insert(ctx context.Context, n models.Notification) (bool, error) {
	const stmt = `INSERT INTO notification (id, user_id, type, reference_id, read, created_at, version)
		VALUES ($1, $2, $3, $4, FALSE, $5, 1)
		ON CONFLICT (id) DO NOTHING`
	tag, err := r.exec(ctx, stmt, n.ID, n.UserID, n.Type, n.ReferenceID, n.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByID возвращает уведомление по идентификатору.
func (r *PostgresNotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	n, err := scanNotification(r.queryRow(ctx, `SELECT `+notificationColumns+` FROM notification WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) || isInvalidUUID(err) {
			return nil, models.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// List возвращает уведомления пользователя, новые первыми.
func (r *PostgresNotificationRepository) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notification WHERE user_id = $1`
	args := []interface{}{userID}
	if filter.UnreadOnly {
		query += " AND NOT read"
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

// MarkRead отмечает уведомление прочитанным; повторный вызов ничего не меняет.
func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id string) (*models.Notification, error) {
	const stmt = `UPDATE notification SET read = TRUE, version = version + 1
		WHERE id = $1 AND NOT read
		RETURNING ` + notificationColumns
	n, err := scanNotification(r.queryRow(ctx, stmt, id))
	if err == nil {
		return n, nil
	}
	if isInvalidUUID(err) {
		return nil, models.ErrNotificationNotFound
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return r.GetByID(ctx, id)
}
