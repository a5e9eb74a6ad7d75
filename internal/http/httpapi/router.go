package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mystorykid/internal/http/handlers"
	"mystorykid/internal/middleware"
)

// Options carries the router's cross-cutting configuration.
type Options struct {
	App             *handlers.App
	CountryLookup   middleware.CountryLookup
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(opts Options) stdhttp.Handler {
	app := opts.App
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Logger(app.Logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}
	r.Use(middleware.Country(opts.CountryLookup))

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/downloads", func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}
		r.Get("/status/{downloadId}", app.DownloadStatus)
		r.Get("/user/{userId}", app.UserDownloads)
		r.Get("/{token}", app.SecureDownload)
	})

	r.Route("/generation", func(r chi.Router) {
		r.Get("/batch", app.GenerationBatchStatus)
		r.Post("/{subjectId}", app.StartGeneration)
		r.Get("/{subjectId}", app.GenerationStatus)
		r.Post("/{subjectId}/confirm", app.ConfirmGeneration)
		r.Post("/{subjectId}/retry", app.RetryGeneration)
		r.Delete("/{subjectId}", app.CancelGeneration)
	})

	r.Get("/styles", app.ListStyles)
	r.Get("/files/*", app.ServeFile)

	return r
}
