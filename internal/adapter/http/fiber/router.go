// Package fiber assembles the thin operator REST surface (§6
// collaborator): routing, middleware, and the fiber.App lifecycle.
// Business logic for these endpoints lives in ports.StationService and
// ports.OCPPCommandService; handlers here only translate HTTP.
package fiber

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ocpp-csms/csms/internal/adapter/http/fiber/handlers"
	"github.com/ocpp-csms/csms/internal/adapter/http/fiber/middleware"
	"github.com/ocpp-csms/csms/internal/ports"
)

type Deps struct {
	Auth     ports.AuthService
	Stations ports.StationService
	Commands ports.OCPPCommandService
	Log      *zap.Logger
}

// NewApp builds the fiber.App and registers the /api/v1 operator
// routes. The health routes are not registered here; cmd/server adds
// them to the returned app.
func NewApp(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(deps.Log),
	})

	app.Use(middleware.DefaultCORS())
	app.Use(middleware.Metrics())
	app.Use(middleware.CircuitBreakerWithLogger(deps.Log))

	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Log)
	stationHandler := handlers.NewStationHandler(deps.Stations, deps.Log)
	txHandler := handlers.NewTransactionHandler(deps.Stations, deps.Log)
	userHandler := handlers.NewUserHandler(deps.Stations, deps.Log)
	commandHandler := handlers.NewCommandHandler(deps.Commands, deps.Log)

	api := app.Group("/api/v1", middleware.AuthRequired(deps.Auth))

	api.Get("/me", authHandler.Me)

	api.Get("/stations", stationHandler.List)
	api.Get("/stations/:id", stationHandler.Get)
	api.Post("/stations", stationHandler.Register)
	api.Post("/stations/:id/commands", commandHandler.Send)

	api.Get("/transactions", txHandler.List)
	api.Get("/transactions/:key", txHandler.Get)

	api.Get("/users", userHandler.List)
	api.Post("/users", userHandler.Create)

	return app
}
