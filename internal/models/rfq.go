package models

import "time"

// RfqStatus - статус запроса котировок.
type RfqStatus string

const (
	OpenRfq      RfqStatus = "OPEN"      // Запрос открыт и принимает предложения
	AcceptedRfq  RfqStatus = "ACCEPTED"  // Выбрано единственное предложение
	ExpiredRfq   RfqStatus = "EXPIRED"   // Истек срок без выбора предложения
	CancelledRfq RfqStatus = "CANCELLED" // Отменен потребителем
)

// IsTerminal сообщает, что статус больше никогда не изменится.
func (s RfqStatus) IsTerminal() bool {
	return s == AcceptedRfq || s == ExpiredRfq || s == CancelledRfq
}

// ValidRfqStatus проверяет значение статуса, пришедшее извне.
func ValidRfqStatus(s RfqStatus) bool {
	switch s {
	case OpenRfq, AcceptedRfq, ExpiredRfq, CancelledRfq:
		return true
	default:
		return false
	}
}

// Rfq представляет модель запроса котировок (Request for Quote).
type Rfq struct {
	ID               string     `json:"id"`
	ConsumerID       string     `json:"consumerId"`
	CatalogID        *string    `json:"catalogId,omitempty"`
	Category         *string    `json:"category,omitempty"`
	TargetProviderID *string    `json:"targetProviderId,omitempty"`
	Quantity         float64    `json:"quantity"`
	Unit             string     `json:"unit"`
	Message          string     `json:"message"`
	PreferredDate    *time.Time `json:"preferredDate,omitempty"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	Status           RfqStatus  `json:"status"`
	AcceptedQuoteID  *string    `json:"acceptedQuoteId,omitempty"`
	CloseReason      *string    `json:"closeReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Version          int        `json:"version"`
}

// IsDirected сообщает, адресован ли запрос конкретному поставщику.
func (r *Rfq) IsDirected() bool {
	return r.TargetProviderID != nil && *r.TargetProviderID != ""
}

// RfqRequest представляет структуру запроса для создания RFQ.
type RfqRequest struct {
	CatalogID        *string    `json:"catalogId"`
	Category         *string    `json:"category"`
	TargetProviderID *string    `json:"targetProviderId"`
	Quantity         float64    `json:"quantity"`
	Unit             string     `json:"unit"`
	Message          string     `json:"message"`
	PreferredDate    *time.Time `json:"preferredDate"`
}

// RfqFilter - фильтр списка запросов потребителя.
type RfqFilter struct {
	Status *RfqStatus
	Limit  int
	Offset int
}
