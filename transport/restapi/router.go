package restapi

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/yusufsyaifudin/bulkmail/internal/svc/campaignsvc"
	"github.com/yusufsyaifudin/bulkmail/pkg/respbuilder"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"github.com/yusufsyaifudin/bulkmail/transport/restapi/handlercampaign"
	"github.com/yusufsyaifudin/bulkmail/transport/restapi/wshub"
	"go.opentelemetry.io/otel"
)

const DefaultRequestTimeout = 5 * time.Minute

type Config struct {
	AppServiceName  string              `validate:"required"`
	AppVersion      string              `validate:"required"`
	CampaignService campaignsvc.Service `validate:"required"`

	// Hub is optional, nil disables the websocket route.
	Hub *wshub.Hub

	MaxUploadBytes int64         `validate:"min=0"`
	RequestTimeout time.Duration `validate:"min=0"`
}

type DefaultHTTP struct {
	router *chi.Mux
}

func NewHTTPTransport(cfg Config) (*DefaultHTTP, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("http transport cfg error: %w", err)
	}

	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	// ** Campaign handler
	handlerCampaign, err := handlercampaign.NewHandler(handlercampaign.HandlerConfig{
		CampaignService: cfg.CampaignService,
		Hub:             cfg.Hub,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	})
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()

	skip := func(r *http.Request) bool {
		switch strings.TrimSpace(path.Clean(r.URL.Path)) {
		case "/health",
			"/ping":
			return true
		}

		return false
	}

	router.Use(middleware.StripSlashes)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Tracer-ID"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	router.Use(func(next http.Handler) http.Handler {
		return tracer.Middleware(tracer.MiddlewareConfig{
			TracerName:     "github.com/yusufsyaifudin/bulkmail",
			SkipFunc:       skip,
			TracerProvider: otel.GetTracerProvider(),    // global tracer provider
			TextPropagator: otel.GetTextMapPropagator(), // use global text map propagator
		}, next)
	})

	// add trace id and also log request response
	router.Use(func(next http.Handler) http.Handler {
		return requestLogger(skip, cfg.RequestTimeout, next)
	})

	health := func(w http.ResponseWriter, r *http.Request) {
		respbuilder.WriteJSON(http.StatusOK, w, r, respbuilder.Success(r.Context(), map[string]string{
			"service": cfg.AppServiceName,
			"version": cfg.AppVersion,
			"status":  "ok",
		}))
	}

	router.Get("/health", health)
	router.Get("/ping", health)

	// Resource: campaigns
	router.Route("/api/v1/campaigns", func(r chi.Router) {
		r.Post("/", handlerCampaign.Submit())                // create and dispatch
		r.Post("/plan", handlerCampaign.Plan())              // dry run: counts, assignment, preview
		r.Get("/{id}", handlerCampaign.Get())                // ledger snapshot and progress
		r.Post("/{id}/resubmit", handlerCampaign.Resubmit()) // reset ledger and dispatch again
		r.Post("/{id}/retry", handlerCampaign.Retry())       // resend one (sender, recipient)
		r.Get("/{id}/history", handlerCampaign.History())    // finished delivery attempts
		r.Get("/{id}/ws", handlerCampaign.Events())          // live ledger events
	})

	// Resource: senders
	router.Route("/api/v1/senders", func(r chi.Router) {
		r.Get("/required", handlerCampaign.RequiredSenders())
	})

	instance := &DefaultHTTP{
		router: router,
	}

	return instance, nil
}

// Server .
func (a *DefaultHTTP) Server() http.Handler {
	return a.router
}
