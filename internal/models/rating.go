package models

import "time"

// RatingTargetType - кого оценивают.
type RatingTargetType string

const (
	ProviderTarget RatingTargetType = "provider"
	ConsumerTarget RatingTargetType = "consumer"
)

// Rating представляет отзыв по завершенной сделке.
type Rating struct {
	ID         string           `json:"id"`
	RfqID      string           `json:"rfqId"`
	AuthorID   string           `json:"authorId"`
	TargetType RatingTargetType `json:"targetType"`
	TargetID   string           `json:"targetId"`
	Stars      int              `json:"stars"`
	Comment    string           `json:"comment"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// RatingRequest представляет структуру запроса для отзыва.
type RatingRequest struct {
	RfqID      string           `json:"rfqId"`
	TargetType RatingTargetType `json:"targetType"`
	TargetID   string           `json:"targetId"`
	Stars      int              `json:"stars"`
	Comment    string           `json:"comment"`
}

// RatingSummary - агрегат оценок поставщика.
type RatingSummary struct {
	ProviderID  string  `json:"providerId"`
	RatingCount int     `json:"ratingCount"`
	RatingTotal int     `json:"ratingTotal"`
	Average     float64 `json:"average"`
}
