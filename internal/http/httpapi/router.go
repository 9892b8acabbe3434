// Package httpapi assembles the kiosk status router.
package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"booth/internal/http/handlers"
	"booth/internal/middleware"
)

func NewRouter(app *handlers.App, logger zerolog.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(logger))

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/session", app.CurrentSession)
	r.Get("/v1/quota", app.QuotaStatus)

	r.Route("/v1/capture", func(r chi.Router) {
		r.Post("/", app.TriggerCapture)
		r.Post("/retake", app.RetakeCapture)
		r.Post("/confirm", app.ConfirmCapture)
		r.Post("/cancel", app.CancelCapture)
	})

	r.Post("/v1/device/retry", app.RetryDevice)

	return r
}
