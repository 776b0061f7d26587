package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/middleware"
)

// NewRouter mounts the stub backend under /api and the position socket at
// /socket.
//
// Middleware chain (applied in order):
//  1. AllowContentType rejects bodies that are neither JSON nor multipart
//  2. WithRequestLogging logs each request
//  3. BearerAuth guards every route except login and registration
func NewRouter(
	authHandler *AuthHandler,
	fleetHandler *FleetHandler,
	hub *Hub,
	verifier middleware.TokenVerifier,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.AllowContentType("application/json", "multipart/form-data"))
	r.Use(middleware.WithRequestLogging(logger))

	r.Method(http.MethodGet, "/socket", hub)

	r.Route("/api", func(r chi.Router) {
		r.Post("/users/login", authHandler.Login)
		r.Post("/users/register", authHandler.Register)
		r.Post("/users/register-simple", authHandler.RegisterSimple)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(verifier))

			r.Get("/users/me", authHandler.Me)
			r.Post("/users/refresh-token", authHandler.RefreshToken)
			r.Get("/users/me/children", fleetHandler.Children)
			r.Post("/users/me/children", fleetHandler.AddChild)

			r.Get("/buses/all", fleetHandler.Buses)
			r.Get("/routes/", fleetHandler.Routes)
			r.Get("/bus-locations/active", fleetHandler.ActiveLocations)

			r.Post("/bookings/create", fleetHandler.CreateBooking)
			r.Get("/bookings/parent", fleetHandler.ParentBookings)
			r.Delete("/bookings/cancel/{id}", fleetHandler.CancelBooking)

			r.Post("/attendances", fleetHandler.CreateAttendance)
			r.Get("/attendances/parent", fleetHandler.ParentAttendances)

			r.Get("/notifications/{userId}", fleetHandler.Notifications)
		})
	})

	return r
}
