package admin

import (
	"log/slog"
	"net/http"

	request "proctrack/pkg/platform/middleware/request"
	"proctrack/pkg/requestcontext"
)

// RequireAdmin only lets actors holding the admin role through. It must run
// after auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor := requestcontext.Actor(ctx)
			if !actor.IsAdmin() {
				logger.WarnContext(ctx, "admin route denied",
					"request_id", request.GetRequestID(ctx),
					"user_id", actor.UserID,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","message":"administrator role required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
