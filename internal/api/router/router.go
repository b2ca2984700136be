package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/http/handlers"
	httpmiddleware "github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/http/middleware"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/internal/realtime"
	"github.com/GiaHuyyy/Smart-dental-healthcare-sub000/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger               *logging.Logger
	AppointmentsHandler  *handlers.AppointmentsHandler
	GatewayHandler       *handlers.GatewayHandler
	WalletHandler        *handlers.WalletHandler
	BillingHandler       *handlers.BillingHandler
	FollowUpsHandler     *handlers.FollowUpsHandler
	NotificationsHandler *handlers.NotificationsHandler
	Hub                  *realtime.Hub
	MetricsHandler       http.Handler
	StaffAuthSecret      string
	CORSAllowedOrigins   []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks, realtime)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.GatewayHandler != nil {
			public.Post("/webhooks/momo", cfg.GatewayHandler.IPN)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Hub != nil {
			public.Get("/ws", cfg.Hub.HandleWebSocket)
		}
	})

	// Patient and doctor facing API
	r.Route("/api", func(api chi.Router) {
		if cfg.AppointmentsHandler != nil {
			api.Route("/appointments", func(r chi.Router) {
				r.Post("/", cfg.AppointmentsHandler.Book)
				r.Get("/", cfg.AppointmentsHandler.List)
				r.Post("/{id}/confirm", cfg.AppointmentsHandler.Confirm)
				r.Post("/{id}/cancel", cfg.AppointmentsHandler.Cancel)
			})
		}
		if cfg.GatewayHandler != nil {
			api.Route("/payments", func(r chi.Router) {
				r.Post("/checkout", cfg.GatewayHandler.Checkout)
				r.Post("/poll", cfg.GatewayHandler.Poll)
			})
		}
		if cfg.WalletHandler != nil {
			api.Route("/wallet", func(r chi.Router) {
				r.Post("/topup", cfg.WalletHandler.TopUp)
				r.Post("/pay", cfg.WalletHandler.Pay)
				r.Get("/balance", cfg.WalletHandler.Balance)
				r.Get("/transactions", cfg.WalletHandler.Transactions)
			})
		}
		if cfg.BillingHandler != nil {
			api.Route("/billing", func(r chi.Router) {
				r.Get("/payments", cfg.BillingHandler.Payments)
				r.Get("/revenues", cfg.BillingHandler.Revenues)
			})
		}
		if cfg.NotificationsHandler != nil {
			api.Get("/notifications", cfg.NotificationsHandler.List)
		}
		if cfg.FollowUpsHandler != nil {
			api.Route("/followups", func(r chi.Router) {
				r.Get("/", cfg.FollowUpsHandler.List)
				r.Post("/{id}/schedule", cfg.FollowUpsHandler.Schedule)
				r.Post("/{id}/reject", cfg.FollowUpsHandler.Reject)
			})
		}
	})

	// Staff routes (protected by JWT)
	if cfg.StaffAuthSecret != "" {
		r.Route("/staff", func(staff chi.Router) {
			staff.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
			if cfg.AppointmentsHandler != nil {
				staff.Post("/appointments/{id}/start", cfg.AppointmentsHandler.Start)
				staff.Post("/appointments/{id}/complete", cfg.AppointmentsHandler.Complete)
			}
			if cfg.FollowUpsHandler != nil {
				staff.Post("/followups", cfg.FollowUpsHandler.Suggest)
			}
		})
	}

	return r
}
