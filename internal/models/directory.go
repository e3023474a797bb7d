package models

// GeoPoint - координаты в градусах.
type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// CatalogListing - позиция каталога, полученная из справочника поставщиков.
type CatalogListing struct {
	ID               string   `json:"id" yaml:"id"`
	ProviderID       string   `json:"providerId" yaml:"providerId"`
	Category         string   `json:"category" yaml:"category"`
	DeliveryRadiusKm float64  `json:"deliveryRadiusKm" yaml:"deliveryRadiusKm"`
	InStock          bool     `json:"inStock" yaml:"inStock"`
	Moq              float64  `json:"moq" yaml:"moq"`
	ProviderLocation GeoPoint `json:"providerLocation" yaml:"-"`
}

// ProviderCandidate - поставщик, обслуживающий категорию.
type ProviderCandidate struct {
	ID                 string   `json:"id" yaml:"id"`
	Category           string   `json:"category" yaml:"category"`
	Location           GeoPoint `json:"location" yaml:"location"`
	TrustScore         float64  `json:"trustScore" yaml:"trustScore"`
	AvgResponseMinutes float64  `json:"avgResponseMinutes" yaml:"avgResponseMinutes"`
	DistanceKm         float64  `json:"distanceKm" yaml:"-"`
}

// MatchCandidate - результат подбора поставщика для запроса.
type MatchCandidate struct {
	ProviderID string `json:"providerId"`
	Rank       int    `json:"rank"`
}
