package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/senyabanana/rfq-service/internal/logging"
	"github.com/senyabanana/rfq-service/internal/models"
	"github.com/senyabanana/rfq-service/internal/utils"

	"github.com/go-chi/chi/v5/middleware"
)

// UserIDHeader - заголовок, в котором сервис идентификации передает пользователя.
const UserIDHeader = "X-User-Id"

// RequireActor кладет в контекст действующее лицо из заголовка X-User-Id, без него отвечает 401.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if userID == "" {
			utils.SendErrorResponse(w, http.StatusUnauthorized, "user identity is required")
			return
		}
		ctx := models.WithActor(r.Context(), models.Actor{ID: userID})
		ctx = logging.WithAttrs(ctx, slog.String("actor_id", userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger пишет одну запись на запрос и кладет логгер с request_id в контекст.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logging.WithLogger(r.Context(), logger)
			if reqID := middleware.GetReqID(ctx); reqID != "" {
				ctx = logging.WithAttrs(ctx, slog.String("request_id", reqID))
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logging.Info(ctx, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
