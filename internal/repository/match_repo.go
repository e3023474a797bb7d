package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MatchRepository - интерфейс для результатов подбора поставщиков.
type MatchRepository interface {
	Record(ctx context.Context, rfqID string, candidates []models.MatchCandidate, at time.Time) error
	IsMatched(ctx context.Context, rfqID, providerID string) (bool, error)
	ListByRfq(ctx context.Context, rfqID string) ([]models.MatchCandidate, error)
}

// PostgresMatchRepository - реализация MatchRepository для базы данных.
type PostgresMatchRepository struct {
	conn
}

// NewPostgresMatchRepository создает новый экземпляр PostgresMatchRepository.
func NewPostgresMatchRepository(db *pgxpool.Pool) *PostgresMatchRepository {
	return &PostgresMatchRepository{conn{DB: db}}
}

// Record сохраняет кандидатов; уже подобранные поставщики не дублируются.
func (r *PostgresMatchRepository) Record(ctx context.Context, rfqID string, candidates []models.MatchCandidate, at time.Time) error {
	const stmt = `INSERT INTO rfq_match (rfq_id, provider_id, rank, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rfq_id, provider_id) DO NOTHING`
	for _, c := range candidates {
		if _, err := r.exec(ctx, stmt, rfqID, c.ProviderID, c.Rank, at); err != nil {
			return fmt.Errorf("record match: %w", err)
		}
	}
	return nil
}

// IsMatched сообщает, был ли поставщик подобран на запрос.
func (r *PostgresMatchRepository) IsMatched(ctx context.Context, rfqID, providerID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM rfq_match WHERE rfq_id = $1 AND provider_id = $2)`
	if err := r.queryRow(ctx, query, rfqID, providerID).Scan(&exists); err != nil {
		if isInvalidUUID(err) {
			return false, nil
		}
		return false, fmt.Errorf("check match: %w", err)
	}
	return exists, nil
}

// ListByRfq возвращает подобранных поставщиков в порядке ранга.
func (r *PostgresMatchRepository) ListByRfq(ctx context.Context, rfqID string) ([]models.MatchCandidate, error) {
	rows, err := r.query(ctx, `SELECT provider_id, rank FROM rfq_match WHERE rfq_id = $1 ORDER BY rank`, rfqID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	candidates := make([]models.MatchCandidate, 0)
	for rows.Next() {
		var c models.MatchCandidate
		if err := rows.Scan(&c.ProviderID, &c.Rank); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
