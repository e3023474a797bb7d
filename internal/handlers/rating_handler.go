package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/utils"

	"github.com/go-chi/chi/v5"
)

// RatingHandler - структура для обработки HTTP-запросов по отзывам.
type RatingHandler struct {
	base
	Service RatingUseCases
}

// NewRatingHandler создает новый экземпляр RatingHandler.
func NewRatingHandler(service RatingUseCases, logger *slog.Logger, timeout time.Duration) *RatingHandler {
	return &RatingHandler{base: base{Logger: logger, Timeout: timeout}, Service: service}
}

type eligibilityResponse struct {
	CanRate bool `json:"canRate"`
}

// Eligibility обрабатывает запросы на проверку права оставить отзыв.
func (h *RatingHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	targetType := models.RatingTargetType(r.URL.Query().Get("targetType"))
	targetID := r.URL.Query().Get("targetId")

	allowed, err := h.Service.CanRate(ctx, actor.ID, targetType, targetID)
	if err != nil {
		h.fail(ctx, w, err, "failed to check rating eligibility")
		return
	}
	h.respond(ctx, w, http.StatusOK, eligibilityResponse{CanRate: allowed})
}

// SubmitRating обрабатывает запросы для создания отзыва.
func (h *RatingHandler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	var req models.RatingRequest
	if err := decodeBody(r, &req, false); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rating, err := h.Service.SubmitRating(ctx, actor, req)
	if err != nil {
		h.fail(ctx, w, err, "failed to submit rating")
		return
	}
	h.respond(ctx, w, http.StatusOK, rating)
}

// ProviderRating обрабатывает запросы для получения рейтинга поставщика.
func (h *RatingHandler) ProviderRating(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.context(r)
	defer cancel()

	summary, err := h.Service.ProviderSummary(ctx, chi.URLParam(r, "providerId"))
	if err != nil {
		h.fail(ctx, w, err, "failed to retrieve provider rating")
		return
	}
	h.respond(ctx, w, http.StatusOK, summary)
}
