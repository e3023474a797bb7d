package models

import (
	"fmt"
	"time"
)

// NotificationType - тег события жизненного цикла.
type NotificationType string

const (
	RfqMatched    NotificationType = "RfqMatched"    // Запрос подобран поставщику
	QuoteReceived NotificationType = "QuoteReceived" // Потребитель получил предложение
	QuoteAccepted NotificationType = "QuoteAccepted" // Предложение поставщика выбрано
	QuoteRejected NotificationType = "QuoteRejected" // Предложение поставщика отклонено
	RfqExpired    NotificationType = "RfqExpired"    // Запрос истек
)

// ValidNotificationType проверяет тип уведомления, пришедший извне.
func ValidNotificationType(t NotificationType) bool {
	switch t {
	case RfqMatched, QuoteReceived, QuoteAccepted, QuoteRejected, RfqExpired:
		return true
	default:
		return false
	}
}

// OutboxMessage - строка исходящего ящика, записанная в одной транзакции с изменением состояния.
type OutboxMessage struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Type          NotificationType `json:"type"`
	ReferenceID   string           `json:"referenceId"`
	DedupeKey     string           `json:"-"`
	CreatedAt     time.Time        `json:"createdAt"`
	Attempts      int              `json:"-"`
	NextAttemptAt time.Time        `json:"-"`
	DeliveredAt   *time.Time       `json:"-"`
	LastError     string           `json:"-"`
}

// NewOutboxMessage собирает строку исходящего ящика с ключом дедупликации (referenceId, userId, type).
func NewOutboxMessage(id, userID string, typ NotificationType, referenceID string, now time.Time) OutboxMessage {
	return OutboxMessage{
		ID:            id,
		UserID:        userID,
		Type:          typ,
		ReferenceID:   referenceID,
		DedupeKey:     fmt.Sprintf("%s:%s:%s", referenceID, userID, typ),
		CreatedAt:     now,
		NextAttemptAt: now,
	}
}

// Notification представляет запись во входящем ящике пользователя.
type Notification struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Type        NotificationType `json:"type"`
	ReferenceID string           `json:"referenceId"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
	Version     int              `json:"version"`
}

// NotificationFilter - фильтр списка уведомлений.
type NotificationFilter struct {
	UnreadOnly bool
	Type       *NotificationType
	Limit      int
	Offset     int
}
