package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/guardpost/guardpost/internal/constants"
	"github.com/guardpost/guardpost/internal/handlers"
	"github.com/guardpost/guardpost/internal/middleware"
	"github.com/guardpost/guardpost/internal/utils"
)

// SetupRoutes configures the router: the forward-auth callback and
// health endpoint are open (the proxy calls them on every request), the
// administrative rule API sits behind the shared-secret middleware.
func (s *Server) SetupRoutes() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery())
	r.Use(middleware.SecurityHeaders())

	guardHandler := handlers.NewGuardHandler(s.guard, utils.IPSource(s.Config.Guard.IPSource))
	ruleHandler := handlers.NewRuleHandler(s.store)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# " + constants.AppName + " forward-auth API, v1\n"))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Db.HealthCheck(r.Context()); err != nil {
			log.Error().Err(err).Msg("Health check failed")
			utils.Error(w, http.StatusServiceUnavailable, constants.CodeServiceUnavailable,
				"Rule storage is not reachable", nil)
			return
		}

		utils.JSON(w, http.StatusOK, map[string]string{
			"status":  constants.MsgServiceHealthy,
			"version": s.Config.App.Version,
		})
	})

	// Forward-auth callback, hit by the proxy on every inbound request.
	// The bare path serves the default rule group; the parameterized one
	// selects a named group.
	r.Get("/guard", guardHandler.Authorize)
	r.Get("/guard/{group}", guardHandler.Authorize)

	// Administrative API.
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.SecretAuth(s.Config.Guard.SecretToken))
		r.Use(chimiddleware.NoCache)

		r.Get("/check", guardHandler.Check)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", ruleHandler.List)
			r.Post("/", ruleHandler.Create)
			r.Delete("/", ruleHandler.DeleteByMatch)
			r.Delete("/{id}", ruleHandler.DeleteByID)
		})
	})

	s.router = r
}
