package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/utils"

	"github.com/go-chi/chi/v5"
)

// StreamServer держит живое подключение пользователя к входящему ящику.
type StreamServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// NotificationHandler - структура для обработки HTTP-запросов по уведомлениям.
type NotificationHandler struct {
	base
	Service NotificationUseCases
	Stream  StreamServer
}

// NewNotificationHandler создает новый экземпляр NotificationHandler.
func NewNotificationHandler(service NotificationUseCases, stream StreamServer, logger *slog.Logger, timeout time.Duration) *NotificationHandler {
	return &NotificationHandler{
		base:    base{Logger: logger, Timeout: timeout},
		Service: service,
		Stream:  stream,
	}
}

// ListNotifications обрабатывает запросы для получения уведомлений пользователя.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	query := r.URL.Query()
	limit, offset, err := utils.ParseLimitOffset(query.Get("limit"), query.Get("offset"))
	if err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	unread, err := utils.ParseBool(query.Get("unread"))
	if err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := models.NotificationFilter{UnreadOnly: unread, Limit: limit, Offset: offset}
	if typ := query.Get("type"); typ != "" {
		t := models.NotificationType(typ)
		filter.Type = &t
	}

	notifications, err := h.Service.ListNotifications(ctx, actor, filter)
	if err != nil {
		h.fail(ctx, w, err, "failed to retrieve notifications")
		return
	}
	h.respond(ctx, w, http.StatusOK, notifications)
}

// MarkRead обрабатывает запросы для отметки уведомления прочитанным.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	n, err := h.Service.MarkRead(ctx, actor, chi.URLParam(r, "notificationId"))
	if err != nil {
		h.fail(ctx, w, err, "failed to mark notification read")
		return
	}
	h.respond(ctx, w, http.StatusOK, n)
}

// StreamNotifications переводит подключение в websocket и отправляет новые уведомления по мере доставки.
func (h *NotificationHandler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if h.Stream == nil {
		utils.SendErrorResponse(w, http.StatusNotImplemented, "live notifications are disabled")
		return
	}

	ctx := logging.WithLogger(r.Context(), h.Logger)
	if err := h.Stream.Serve(w, r, actor.ID); err != nil {
		logging.Warn(ctx, "notification stream upgrade failed", logging.Err(err))
	}
}
