package services

import (
	"context"

	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/repository"
)

// NotificationService - сервис входящего ящика пользователя.
type NotificationService struct {
	repo repository.NotificationRepository
}

// NewNotificationService создает новый экземпляр NotificationService.
func NewNotificationService(repo repository.NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// ListNotifications возвращает уведомления действующего лица.
func (s *NotificationService) ListNotifications(ctx context.Context, actor models.Actor, filter models.NotificationFilter) ([]models.Notification, error) {
	if filter.Type != nil && !models.ValidNotificationType(*filter.Type) {
		return nil, models.NewValidationError("invalid notification type")
	}
	return s.repo.List(ctx, actor.ID, filter)
}

// MarkRead отмечает уведомление прочитанным. Повторный вызов возвращает то же состояние.
func (s *NotificationService) MarkRead(ctx context.Context, actor models.Actor, notificationID string) (*models.Notification, error) {
	n, err := s.repo.GetByID(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != actor.ID {
		return nil, models.NewForbiddenError("notification belongs to another user")
	}
	if n.Read {
		return n, nil
	}
	return s.repo.MarkRead(ctx, notificationID)
}
