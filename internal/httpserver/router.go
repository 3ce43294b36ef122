package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"geoconsole/internal/auth"
	"geoconsole/internal/config"
	"geoconsole/internal/guard"
	"geoconsole/internal/httpserver/handlers"
	"geoconsole/internal/locations"
	"geoconsole/internal/registry"
	"geoconsole/internal/services/payload"
)

// NewRouter wires the API. The JWT-backed routes are served under both
// /api and /api/jwt, matching what deployed clients expect.
func NewRouter(db *gorm.DB, cfg config.Config, lg *zap.SugaredLogger) http.Handler {
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiresIn)
	codec := payload.NewCodec(cfg.EncryptionPassword)
	reg := registry.New(db, cfg.AdminToken)
	store := locations.NewStore(db)
	abuse := guard.New(cfg.DDoSCompanyTokens, cfg.DeterrentSize)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)
	r.Use(middleware.Compress(5))
	r.Use(middleware.RequestSize(cfg.ParserLimit))

	r.Route("/api", func(api chi.Router) {
		registerRoutes(api, reg, store, tokens, codec, abuse, lg)
		api.Route("/jwt", func(jwt chi.Router) {
			registerRoutes(jwt, reg, store, tokens, codec, abuse, lg)
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	return cors.AllowAll().Handler(r)
}

func registerRoutes(r chi.Router, reg *registry.Registry, store *locations.Store,
	tokens *auth.TokenService, codec *payload.Codec, abuse *guard.Guard, lg *zap.SugaredLogger) {
	r.Post("/register", handlers.Register(reg, tokens, lg))
	r.Group(func(protected chi.Router) {
		protected.Use(auth.CheckAuth(tokens))
		protected.HandleFunc("/refresh_token", handlers.RefreshToken(tokens, lg))
		protected.Get("/company_tokens", handlers.CompanyTokens(reg, lg))
		protected.Get("/devices", handlers.ListDevices(reg, lg))
		protected.Delete("/devices/{id}", handlers.DeleteDevice(reg, lg))
		protected.Get("/stats", handlers.GetStats(store, lg))
		protected.Get("/locations/latest", handlers.LatestLocation(reg, store, lg))
		protected.Get("/locations", handlers.GetLocations(reg, store, lg))
		protected.Post("/locations", handlers.PostLocations(reg, store, codec, abuse, lg))
		protected.Post("/locations/{company_token}", handlers.PostLocations(reg, store, codec, abuse, lg))
		protected.Delete("/locations", handlers.DeleteLocations(reg, store, lg))
	})
}
