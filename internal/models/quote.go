package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStatus - статус предложения поставщика.
type QuoteStatus string

const (
	PendingQuote   QuoteStatus = "PENDING"   // Предложение ожидает решения
	AcceptedQuote  QuoteStatus = "ACCEPTED"  // Предложение выбрано потребителем
	RejectedQuote  QuoteStatus = "REJECTED"  // Выбрано другое предложение или запрос отменен
	WithdrawnQuote QuoteStatus = "WITHDRAWN" // Поставщик отозвал предложение
	ExpiredQuote   QuoteStatus = "EXPIRED"   // Истек срок родительского запроса
)

// IsTerminal сообщает, что статус больше никогда не изменится.
func (s QuoteStatus) IsTerminal() bool {
	return s != PendingQuote
}

// Причины перехода предложения в конечный статус.
const (
	ReasonNotSelected  = "not_selected"
	ReasonRfqCancelled = "rfq_cancelled"
	ReasonRfqExpired   = "rfq_expired"
	ReasonWithdrawn    = "withdrawn"
)

// Quote представляет модель предложения поставщика по запросу.
type Quote struct {
	ID              string          `json:"id"`
	RfqID           string          `json:"rfqId"`
	ProviderID      string          `json:"providerId"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	DeliveryEtaDays *int            `json:"deliveryEtaDays,omitempty"`
	Notes           string          `json:"notes"`
	Status          QuoteStatus     `json:"status"`
	StatusReason    *string         `json:"statusReason,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Version         int             `json:"version"`
}

// QuoteRequest представляет структуру запроса для подачи предложения.
type QuoteRequest struct {
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency"`
	DeliveryEtaDays *int            `json:"deliveryEtaDays"`
	Notes           string          `json:"notes"`
}
