package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/utils"

	"github.com/go-chi/chi/v5"
)

// RfqHandler - структура для обработки HTTP-запросов по запросам котировок.
type RfqHandler struct {
	base
	Service     RfqUseCases
	Coordinator Coordinator
}

// NewRfqHandler создает новый экземпляр RfqHandler.
func NewRfqHandler(service RfqUseCases, coordinator Coordinator, logger *slog.Logger, timeout time.Duration) *RfqHandler {
	return &RfqHandler{
		base:        base{Logger: logger, Timeout: timeout},
		Service:     service,
		Coordinator: coordinator,
	}
}

// CreateRfq обрабатывает запросы для создания запроса котировок.
func (h *RfqHandler) CreateRfq(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	var req models.RfqRequest
	if err := decodeBody(r, &req, false); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rfq, err := h.Service.CreateRfq(ctx, actor, req)
	if err != nil {
		h.fail(ctx, w, err, "failed to create rfq")
		return
	}
	h.respond(ctx, w, http.StatusOK, rfq)
}

// GetUserRfqs обрабатывает запросы для получения списка запросов пользователя.
func (h *RfqHandler) GetUserRfqs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	limit, offset, err := utils.ParseLimitOffset(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := models.RfqFilter{Limit: limit, Offset: offset}
	if status := r.URL.Query().Get("status"); status != "" {
		s := models.RfqStatus(status)
		filter.Status = &s
	}

	rfqs, err := h.Service.ListMyRfqs(ctx, actor, filter)
	if err != nil {
		h.fail(ctx, w, err, "failed to retrieve rfqs")
		return
	}
	h.respond(ctx, w, http.StatusOK, rfqs)
}

// GetRfq обрабатывает запросы для получения запроса по идентификатору.
func (h *RfqHandler) GetRfq(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	rfq, err := h.Service.GetRfq(ctx, actor, chi.URLParam(r, "rfqId"))
	if err != nil {
		h.fail(ctx, w, err, "failed to retrieve rfq")
		return
	}
	h.respond(ctx, w, http.StatusOK, rfq)
}

// RematchRfq обрабатывает запросы на повторный подбор поставщиков.
func (h *RfqHandler) RematchRfq(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	candidates, err := h.Service.Rematch(ctx, actor, chi.URLParam(r, "rfqId"))
	if err != nil {
		h.fail(ctx, w, err, "failed to match rfq")
		return
	}
	h.respond(ctx, w, http.StatusOK, candidates)
}

// GetRfqMatches обрабатывает запросы для получения подобранных поставщиков.
func (h *RfqHandler) GetRfqMatches(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	candidates, err := h.Service.ListMatches(ctx, actor, chi.URLParam(r, "rfqId"))
	if err != nil {
		h.fail(ctx, w, err, "failed to retrieve matches")
		return
	}
	h.respond(ctx, w, http.StatusOK, candidates)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelRfq обрабатывает запросы на отмену запроса котировок.
func (h *RfqHandler) CancelRfq(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	var req cancelRequest
	if err := decodeBody(r, &req, true); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rfq, err := h.Coordinator.Cancel(ctx, actor, chi.URLParam(r, "rfqId"), req.Reason)
	if err != nil {
		h.fail(ctx, w, err, "failed to cancel rfq")
		return
	}
	h.respond(ctx, w, http.StatusOK, rfq)
}
