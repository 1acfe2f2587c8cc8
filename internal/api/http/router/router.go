package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/libreone/libreone-server/internal/api/http/handler"
	"github.com/libreone/libreone-server/internal/api/http/middleware"
	"github.com/libreone/libreone-server/internal/logger"
)

// APIPrefix is the mount point for the versioned API.
const APIPrefix = "/api/v1"

// LoginPath and LogoutPath are where session failures send the browser.
const (
	LoginPath  = APIPrefix + "/auth/login"
	LogoutPath = APIPrefix + "/auth/logout"
)

// New assembles the full route tree.
func New(
	auth *handler.Auth,
	profile *handler.Profile,
	idp *handler.IdP,
	authenticator *middleware.Authenticator,
	metrics *middleware.Metrics,
	l *logger.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Logging(l))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route(APIPrefix, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", auth.InitLogin)
			r.Get("/cas-callback", auth.CompleteLogin)
			r.Get("/logout", auth.Logout)

			r.Post("/register", auth.Register)
			r.Post("/verify-email", auth.VerifyEmail)
			r.Post("/passwordrecovery", auth.InitPasswordRecovery)
			r.Post("/passwordrecovery/complete", auth.CompletePasswordRecovery)

			r.Get("/cas-logout", auth.BackChannelSLO)
			r.Post("/cas-logout", auth.BackChannelSLO)

			r.Get("/interrupt-check", auth.CheckInterrupt)
			r.Get("/cas-bridge", auth.BridgeToken)
			r.Post("/idp/{clientName}", idp.CreateUser)

			r.Group(func(r chi.Router) {
				r.Use(authenticator.Middleware)
				r.Post("/complete-registration", auth.CompleteRegistration)
			})
		})

		r.Route("/users/me", func(r chi.Router) {
			r.Use(authenticator.Middleware)
			r.Get("/", profile.Get)
			r.Patch("/", profile.Update)
			r.Get("/avatar", profile.GetAvatar)
			r.Post("/avatar", profile.UploadAvatar)
		})
	})

	return r
}
