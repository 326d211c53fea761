package routes

import (
	"net/http"

	"github.com/checkpoint-edu/checkpoint/internal/apperr"
	"github.com/checkpoint-edu/checkpoint/internal/app"
	"github.com/checkpoint-edu/checkpoint/internal/handler"
	"github.com/checkpoint-edu/checkpoint/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func SetupRoutes(app *app.App) http.Handler {
	respond := handler.NewResponder(app.Cfg.IsDevelopment())

	// Handlers
	health := handler.NewHealthHandler(app.DB, respond)
	users := handler.NewUserHandler(app.UserService, respond)
	uploads := handler.NewUploadHandler(app.FileService, app.Cfg.MaxFileSize, respond)
	contact := handler.NewContactHandler(app.EmailService, respond)

	requireAuth := middleware.RequireAuth(app.UserService, respond)
	rateLimit := middleware.RateLimit(app.Limiter, respond)

	r := chi.NewRouter()

	// Global middleware, executed top to bottom
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogging)
	r.Use(middleware.Recover(respond))
	r.Use(middleware.CORS(app.Cfg.CORSOrigin))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", health.Check)

	// Stored files, addressed by generated filename
	r.Get("/uploads/{filename}", uploads.Serve)

	r.With(rateLimit).Post("/contact", contact.Submit)

	r.Route("/users", func(r chi.Router) {
		// Public (rate limited)
		r.With(rateLimit).Post("/register", users.Register)
		r.With(rateLimit).Post("/login", users.Login)
		r.Get("/email_available", users.EmailAvailable)

		// Protected
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/validate_token", users.ValidateToken)
			r.Get("/profile", users.Profile)
			r.Put("/profile", users.UpdateProfile)
			r.Put("/password", users.ChangePassword)
			r.Delete("/account", users.DeleteAccount)

			r.Post("/uploads", uploads.Upload)
			r.Get("/uploads", uploads.List)
			r.Delete("/uploads/{id}", uploads.Delete)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, apperr.NotFound("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, apperr.NotFound("Route not found"))
	})

	return r
}
