package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
	"github.com/hackgods/petclinic-scheduling/internal/record"
)

type RouterConfig struct {
	Sessions     *SessionRegistry
	Appointments *appointment.Service
	Records      *record.Workflow
	History      RecordLister
	Events       EventLister // nil when the journal is disabled
	Users        UserSource
	Checks       []DependencyCheck
	Gatherer     prometheus.Gatherer
	Logger       zerolog.Logger
	RateLimit    rate.Limit // 0 disables limiting
	RateBurst    int
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	// Health and metrics stay outside the rate limit
	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h := &handlers{
		sessions:     cfg.Sessions,
		appointments: cfg.Appointments,
		records:      cfg.Records,
		history:      cfg.History,
		events:       cfg.Events,
		users:        cfg.Users,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}

	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
		}
		r.Use(BearerTokenMiddleware)

		// Selection sessions
		r.Post("/sessions", h.openSession)
		r.Get("/sessions/{id}", h.getSession)
		r.Delete("/sessions/{id}", h.closeSession)
		r.Put("/sessions/{id}/clinic", selectHandler(h, applyClinic))
		r.Put("/sessions/{id}/practitioner", selectHandler(h, applyPractitioner))
		r.Put("/sessions/{id}/date", selectHandler(h, applyDate))
		r.Put("/sessions/{id}/slot", selectHandler(h, applySlot))

		// Appointment writes
		r.Post("/appointments", h.createAppointment)
		r.Patch("/appointments/{id}", h.updateAppointment)
		r.Delete("/appointments/{id}", h.deleteAppointment)
		r.Post("/appointments/{id}/transitions", h.transitionAppointment)
		r.Get("/appointments/{id}/events", h.listEvents)

		// Clinical records
		r.Post("/records", h.submitRecord)
		r.Get("/records", h.listRecords)
		r.Put("/records/{id}", h.updateRecord)
		r.Delete("/records/{id}", h.deleteRecord)
	})

	return r
}
