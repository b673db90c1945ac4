package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/samber/oops"

	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/config"
	"github.com/agendaweb/agenda/internal/models"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ContactStore is the persistence the contact handlers need.
type ContactStore interface {
	ListContacts(ctx context.Context, tagFilter string) ([]models.Contact, error)
	GetContact(ctx context.Context, id int64) (*models.Contact, error)
	CreateContact(ctx context.Context, in models.ContactInput) (int64, error)
	UpdateContact(ctx context.Context, id int64, in models.ContactInput) error
	DeleteContact(ctx context.Context, id int64) error
	ListTags(ctx context.Context) ([]models.Tag, error)
	CreateTag(ctx context.Context, name string) (*models.Tag, error)
}

// Deps are the collaborators wired into the API.
type Deps struct {
	Auth     *auth.Service
	Resets   *auth.PasswordResetService
	Tokens   auth.TokenVerifier
	Contacts ContactStore
	Logger   *slog.Logger

	// Ready reports whether backing services are reachable. Optional.
	Ready func(ctx context.Context) error
}

type Api struct {
	Config   *config.Config
	Router   *chi.Mux
	auth     *auth.Service
	resets   *auth.PasswordResetService
	tokens   auth.TokenVerifier
	contacts ContactStore
	logger   *slog.Logger
	ready    func(ctx context.Context) error
}

func NewApi(cfg *config.Config, deps Deps) (*Api, error) {
	switch {
	case cfg == nil:
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("config is required")
	case deps.Auth == nil:
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("auth service is required")
	case deps.Resets == nil:
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("password reset service is required")
	case deps.Tokens == nil:
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("token verifier is required")
	case deps.Contacts == nil:
		return nil, oops.Code("API_CONFIG_INVALID").Errorf("contact store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	api := &Api{
		Config:   cfg,
		Router:   chi.NewRouter(),
		auth:     deps.Auth,
		resets:   deps.Resets,
		tokens:   deps.Tokens,
		contacts: deps.Contacts,
		logger:   logger,
		ready:    deps.Ready,
	}
	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{api.Config.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(api.logger))
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/heartbeat"))

	gate := auth.SessionGate(api.tokens, api.logger)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", api.LoginHandler)
		r.Post("/forgot", api.ForgotPasswordHandler)
		r.Post("/reset-password", api.ResetPasswordHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(gate)

		r.Get("/contacts", api.ListContactsHandler)
		r.Post("/contacts", api.CreateContactHandler)
		r.Get("/contacts/{id}", api.GetContactHandler)
		r.Put("/contacts/{id}", api.UpdateContactHandler)
		r.Delete("/contacts/{id}", api.DeleteContactHandler)

		r.Get("/tags", api.ListTagsHandler)
		r.Post("/tags", api.CreateTagHandler)
	})

	// Unknown paths outside /auth are still behind the gate, so an
	// unauthenticated caller learns nothing about which routes exist.
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	gatedNotFound := gate(notFound)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/auth") {
			notFound.ServeHTTP(w, r)
			return
		}
		gatedNotFound.ServeHTTP(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (api *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.Router.ServeHTTP(w, r)
}
