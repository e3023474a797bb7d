package directory

import (
	"context"
	"fmt"
	"os"

	"github.com/senyabanana/rfq-service/internal/models"

	"gopkg.in/yaml.v3"
)

type staticProvider struct {
	ID                 string          `yaml:"id"`
	Category           string          `yaml:"category"`
	Location           models.GeoPoint `yaml:"location"`
	TrustScore         float64         `yaml:"trustScore"`
	AvgResponseMinutes float64         `yaml:"avgResponseMinutes"`
	Active             *bool           `yaml:"active"`
}

type staticConsumer struct {
	ID       string          `yaml:"id"`
	Location models.GeoPoint `yaml:"location"`
}

type staticFile struct {
	Providers []staticProvider        `yaml:"providers"`
	Catalog   []models.CatalogListing `yaml:"catalog"`
	Consumers []staticConsumer        `yaml:"consumers"`
}

// Static - справочник поставщиков из YAML-файла для локального запуска и тестов.
type Static struct {
	providers map[string]staticProvider
	order     []string
	catalog   map[string]models.CatalogListing
	consumers map[string]models.GeoPoint
}

// LoadStatic читает справочник из файла.
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	return ParseStatic(data)
}

// ParseStatic разбирает YAML-справочник и проверяет ссылки каталога на поставщиков.
func ParseStatic(data []byte) (*Static, error) {
	var file staticFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse directory file: %w", err)
	}

	s := &Static{
		providers: make(map[string]staticProvider, len(file.Providers)),
		catalog:   make(map[string]models.CatalogListing, len(file.Catalog)),
		consumers: make(map[string]models.GeoPoint, len(file.Consumers)),
	}
	for _, p := range file.Providers {
		if p.ID == "" {
			return nil, fmt.Errorf("provider without id")
		}
		if _, dup := s.providers[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.ID)
		}
		s.providers[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	for _, item := range file.Catalog {
		provider, ok := s.providers[item.ProviderID]
		if !ok {
			return nil, fmt.Errorf("catalog item %q references unknown provider %q", item.ID, item.ProviderID)
		}
		item.ProviderLocation = provider.Location
		s.catalog[item.ID] = item
	}
	for _, c := range file.Consumers {
		s.consumers[c.ID] = c.Location
	}
	return s, nil
}

func (s *Static) GetCatalog(_ context.Context, catalogID string) (*models.CatalogListing, error) {
	item, ok := s.catalog[catalogID]
	if !ok {
		return nil, models.ErrCatalogNotFound
	}
	return &item, nil
}

func (s *Static) GetConsumerLocation(_ context.Context, consumerID string) (*models.GeoPoint, error) {
	point, ok := s.consumers[consumerID]
	if !ok {
		return nil, nil
	}
	return &point, nil
}

func (s *Static) ProvidersByCategory(_ context.Context, category string) ([]models.ProviderCandidate, error) {
	providers := make([]models.ProviderCandidate, 0)
	for _, id := range s.order {
		p := s.providers[id]
		if p.Category != category || (p.Active != nil && !*p.Active) {
			continue
		}
		providers = append(providers, models.ProviderCandidate{
			ID:                 p.ID,
			Category:           p.Category,
			Location:           p.Location,
			TrustScore:         p.TrustScore,
			AvgResponseMinutes: p.AvgResponseMinutes,
		})
	}
	return providers, nil
}
