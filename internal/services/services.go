package services

import (
	"context"
	"fmt"

	"github.com/senyabanana/rfq-service/internal/models"

	"github.com/google/uuid"
)

// Directory - справочник каталога и поставщиков, которым владеет основное приложение.
type Directory interface {
	GetCatalog(ctx context.Context, catalogID string) (*models.CatalogListing, error)
	GetConsumerLocation(ctx context.Context, consumerID string) (*models.GeoPoint, error)
	ProvidersByCategory(ctx context.Context, category string) ([]models.ProviderCandidate, error)
}

func newID() string {
	return uuid.NewString()
}

// rfqStateError объясняет, почему с запросом в текущем статусе ничего нельзя сделать.
func rfqStateError(rfq *models.Rfq) error {
	if rfq.Status == models.ExpiredRfq {
		return models.NewExpiredError("rfq has expired")
	}
	return models.NewConflictError(fmt.Sprintf("rfq is already %s", rfq.Status))
}
