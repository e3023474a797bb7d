package router

import (
	"log/slog"
	"net/http"

	"github.com/senyabanana/rfq-service/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handlers - набор обработчиков, из которых собираются маршруты.
type Handlers struct {
	Rfq          *handlers.RfqHandler
	Quote        *handlers.QuoteHandler
	Notification *handlers.NotificationHandler
	Rating       *handlers.RatingHandler
}

func InitRoutes(h Handlers, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", handlers.PingHandler)
		r.Get("/providers/{providerId}/rating", h.Rating.ProviderRating)

		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireActor)

			// запросы котировок
			r.Post("/rfqs", h.Rfq.CreateRfq)
			r.Get("/rfqs/my", h.Rfq.GetUserRfqs)
			r.Get("/rfqs/{rfqId}", h.Rfq.GetRfq)
			r.Get("/rfqs/{rfqId}/matches", h.Rfq.GetRfqMatches)
			r.Post("/rfqs/{rfqId}/match", h.Rfq.RematchRfq)
			r.Post("/rfqs/{rfqId}/cancel", h.Rfq.CancelRfq)

			// предложения
			r.Post("/rfqs/{rfqId}/quotes", h.Quote.SubmitQuote)
			r.Get("/rfqs/{rfqId}/quotes", h.Quote.ListQuotes)
			r.Post("/rfqs/{rfqId}/quotes/{quoteId}/accept", h.Quote.AcceptQuote)
			r.Post("/quotes/{quoteId}/withdraw", h.Quote.WithdrawQuote)

			// уведомления
			r.Get("/notifications", h.Notification.ListNotifications)
			r.Get("/notifications/stream", h.Notification.StreamNotifications)
			r.Post("/notifications/{notificationId}/read", h.Notification.MarkRead)

			// отзывы
			r.Get("/ratings/eligibility", h.Rating.Eligibility)
			r.Post("/ratings", h.Rating.SubmitRating)
		})
	})

	return r
}
