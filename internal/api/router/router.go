package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/agendmed/internal/channels/whatsapp"
	"github.com/wolfman30/agendmed/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/agendmed/internal/http/middleware"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unregistered.
type Config struct {
	Logger             *logging.Logger
	MessagingHandler   *messaging.Handler
	WhatsAppWebhook    *whatsapp.WebhookHandler
	Channel            *handlers.ChannelHandler
	Conversations      *handlers.ConversationsHandler
	Bookings           *handlers.BookingsHandler
	Sessions           *handlers.SessionsHandler
	Catalog            *handlers.CatalogHandler
	Audit              *handlers.AuditHandler
	Health             http.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// AdminAuthSecret signs admin tokens. Empty disables the admin API unless
	// AdminAuthOptional is set (local development).
	AdminAuthSecret   string
	AdminAuthOptional bool

	// PublicRateLimit applies per client IP to webhook and registration routes.
	PublicRateLimit float64
	PublicRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	if cfg.Health != nil {
		r.Handle("/health", cfg.Health)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Public endpoints (webhooks, caller registration)
	r.Group(func(public chi.Router) {
		if cfg.PublicRateLimit > 0 {
			public.Use(httpmiddleware.RateLimit(cfg.PublicRateLimit, cfg.PublicRateBurst))
		}
		if cfg.MessagingHandler != nil {
			public.Post("/webhooks/messages", cfg.MessagingHandler.InboundWebhook)
		}
		if cfg.WhatsAppWebhook != nil {
			public.Get("/webhooks/whatsapp", cfg.WhatsAppWebhook.HandleVerification)
			public.Post("/webhooks/whatsapp", cfg.WhatsAppWebhook.HandleInbound)
		}
		if cfg.Channel != nil {
			public.Post("/api/whatsapp/register-user", cfg.Channel.RegisterUser)
			public.Get("/api/whatsapp/status", cfg.Channel.Status)
		}
	})

	if cfg.AdminAuthSecret == "" && !cfg.AdminAuthOptional {
		return r
	}

	// Admin routes (protected by JWT)
	r.Group(func(admin chi.Router) {
		if cfg.AdminAuthSecret != "" {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		}
		if cfg.Channel != nil {
			admin.Post("/api/whatsapp/send", cfg.Channel.Send)
		}
		if cfg.Conversations != nil {
			admin.Get("/api/whatsapp/conversations", cfg.Conversations.List)
			admin.Get("/api/whatsapp/conversation/{phone}", cfg.Conversations.Get)
			admin.Delete("/api/whatsapp/conversation/{phone}", cfg.Conversations.Delete)
		}
		if cfg.Bookings != nil {
			admin.Get("/api/bookings/{phone}", cfg.Bookings.List)
			admin.Delete("/api/bookings/{phone}/{bookingID}", cfg.Bookings.Cancel)
		}
		if cfg.Sessions != nil {
			admin.Get("/api/sessions/{phone}", cfg.Sessions.Get)
			admin.Delete("/api/sessions/{phone}", cfg.Sessions.Delete)
		}
		if cfg.Catalog != nil {
			admin.Post("/api/catalog/{tenant}/reload", cfg.Catalog.Reload)
		}
		if cfg.Audit != nil {
			admin.Get("/api/audit", cfg.Audit.List)
		}
	})

	return r
}
