package directory

import (
	"context"
	"fmt"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres читает справочник поставщиков из таблиц основного приложения.
type Postgres struct {
	DB *pgxpool.Pool
}

// NewPostgres создает новый экземпляр Postgres.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{DB: db}
}

// GetCatalog возвращает позицию каталога вместе с координатами поставщика.
func (d *Postgres) GetCatalog(ctx context.Context, catalogID string) (*models.CatalogListing, error) {
	query := `
		SELECT c.id, c.provider_id, c.category, c.delivery_radius_km, c.in_stock, c.moq, p.lat, p.lng
		FROM catalog c
		JOIN provider p ON p.id = c.provider_id
		WHERE c.id = $1`
	var item models.CatalogListing
	err := d.DB.QueryRow(ctx, query, catalogID).Scan(
		&item.ID,
		&item.ProviderID,
		&item.Category,
		&item.DeliveryRadiusKm,
		&item.InStock,
		&item.Moq,
		&item.ProviderLocation.Lat,
		&item.ProviderLocation.Lng)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, models.ErrCatalogNotFound
		}
		return nil, fmt.Errorf("get catalog: %w", err)
	}
	return &item, nil
}

// GetConsumerLocation возвращает координаты потребителя или nil, если они неизвестны.
func (d *Postgres) GetConsumerLocation(ctx context.Context, consumerID string) (*models.GeoPoint, error) {
	var point models.GeoPoint
	err := d.DB.QueryRow(ctx, `SELECT lat, lng FROM consumer_profile WHERE id = $1`, consumerID).
		Scan(&point.Lat, &point.Lng)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get consumer location: %w", err)
	}
	return &point, nil
}

// ProvidersByCategory возвращает активных поставщиков категории.
func (d *Postgres) ProvidersByCategory(ctx context.Context, category string) ([]models.ProviderCandidate, error) {
	query := `
		SELECT id, category, lat, lng, trust_score, avg_response_minutes
		FROM provider
		WHERE category = $1 AND active
		ORDER BY trust_score DESC, avg_response_minutes, id`
	rows, err := d.DB.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	providers := make([]models.ProviderCandidate, 0)
	for rows.Next() {
		var p models.ProviderCandidate
		if err := rows.Scan(&p.ID, &p.Category, &p.Location.Lat, &p.Location.Lng, &p.TrustScore, &p.AvgResponseMinutes); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}
