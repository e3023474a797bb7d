package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/utils"

	"github.com/go-chi/chi/v5"
)

// QuoteHandler - структура для обработки HTTP-запросов по предложениям.
type QuoteHandler struct {
	base
	Service     QuoteUseCases
	Coordinator Coordinator
}

// NewQuoteHandler создает новый экземпляр QuoteHandler.
func NewQuoteHandler(service QuoteUseCases, coordinator Coordinator, logger *slog.Logger, timeout time.Duration) *QuoteHandler {
	return &QuoteHandler{
		base:        base{Logger: logger, Timeout: timeout},
		Service:     service,
		Coordinator: coordinator,
	}
}

// SubmitQuote обрабатывает запросы для подачи предложения.
func (h *QuoteHandler) SubmitQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	var req models.QuoteRequest
	if err := decodeBody(r, &req, false); err != nil {
		utils.SendErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	quote, err := h.Service.SubmitQuote(ctx, actor, chi.URLParam(r, "rfqId"), req)
	if err != nil {
		h.fail(ctx, w, err, "failed to submit quote")
		return
	}
	h.respond(ctx, w, http.StatusOK, quote)
}

// ListQuotes обрабатывает запросы для получения предложений по запросу.
func (h *QuoteHandler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	quotes, err := h.Service.ListQuotes(ctx, actor, chi.URLParam(r, "rfqId"))
	if err != nil {
		h.fail(ctx, w, err, "failed to retrieve quotes")
		return
	}
	h.respond(ctx, w, http.StatusOK, quotes)
}

// AcceptQuote обрабатывает запросы на принятие предложения.
func (h *QuoteHandler) AcceptQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	quote, err := h.Coordinator.Accept(ctx, actor, chi.URLParam(r, "rfqId"), chi.URLParam(r, "quoteId"))
	if err != nil {
		h.fail(ctx, w, err, "failed to accept quote")
		return
	}
	h.respond(ctx, w, http.StatusOK, quote)
}

// WithdrawQuote обрабатывает запросы на отзыв предложения.
func (h *QuoteHandler) WithdrawQuote(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()

	quote, err := h.Coordinator.Withdraw(ctx, actor, chi.URLParam(r, "quoteId"))
	if err != nil {
		h.fail(ctx, w, err, "failed to withdraw quote")
		return
	}
	h.respond(ctx, w, http.StatusOK, quote)
}
