package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RatingRepository - интерфейс для отзывов и проверки права на отзыв.
type RatingRepository interface {
	HasAcceptedDeal(ctx context.Context, consumerID, providerID string) (bool, error)
	Create(ctx context.Context, rating models.Rating) error
	IncrementProviderSummary(ctx context.Context, providerID string, stars int, at time.Time) error
	ProviderSummary(ctx context.Context, providerID string) (models.RatingSummary, error)
}

// PostgresRatingRepository - реализация RatingRepository для базы данных.
type PostgresRatingRepository struct {
	conn
}

// NewPostgresRatingRepository создает новый экземпляр PostgresRatingRepository.
func NewPostgresRatingRepository(db *pgxpool.Pool) *PostgresRatingRepository {
	return &PostgresRatingRepository{conn{DB: db}}
}

// HasAcceptedDeal проверяет, что у потребителя есть запрос с принятым предложением этого поставщика.
func (r *PostgresRatingRepository) HasAcceptedDeal(ctx context.Context, consumerID, providerID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM quote q
			JOIN rfq ON rfq.id = q.rfq_id
			WHERE q.status = 'ACCEPTED' AND q.provider_id = $2 AND rfq.consumer_id = $1
		)`
	if err := r.queryRow(ctx, query, consumerID, providerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check accepted deal: %w", err)
	}
	return exists, nil
}

// Create сохраняет отзыв; повторный отзыв по той же сделке дает конфликт.
func (r *PostgresRatingRepository) Create(ctx context.Context, rating models.Rating) error {
	const stmt = `INSERT INTO rating (id, rfq_id, author_id, target_type, target_id, stars, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.exec(ctx, stmt,
		rating.ID,
		rating.RfqID,
		rating.AuthorID,
		rating.TargetType,
		rating.TargetID,
		rating.Stars,
		rating.Comment,
		rating.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.NewConflictError("rating for this rfq already submitted")
		}
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

// IncrementProviderSummary атомарно увеличивает счетчики оценок поставщика.
func (r *PostgresRatingRepository) IncrementProviderSummary(ctx context.Context, providerID string, stars int, at time.Time) error {
	const stmt = `INSERT INTO provider_rating_summary (provider_id, rating_count, rating_total, updated_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (provider_id) DO UPDATE SET
			rating_count = provider_rating_summary.rating_count + 1,
			rating_total = provider_rating_summary.rating_total + EXCLUDED.rating_total,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.exec(ctx, stmt, providerID, stars, at); err != nil {
		return fmt.Errorf("increment rating summary: %w", err)
	}
	return nil
}

// ProviderSummary возвращает агрегат оценок; у поставщика без отзывов счетчики нулевые.
func (r *PostgresRatingRepository) ProviderSummary(ctx context.Context, providerID string) (models.RatingSummary, error) {
	summary := models.RatingSummary{ProviderID: providerID}
	query := `SELECT rating_count, rating_total FROM provider_rating_summary WHERE provider_id = $1`
	err := r.queryRow(ctx, query, providerID).Scan(&summary.RatingCount, &summary.RatingTotal)
	if err != nil && !isNoRows(err) {
		return summary, fmt.Errorf("get rating summary: %w", err)
	}
	if summary.RatingCount > 0 {
		summary.Average = float64(summary.RatingTotal) / float64(summary.RatingCount)
	}
	return summary, nil
}
