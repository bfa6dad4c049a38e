package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/overlaydao/overlay-users/internal/config"
	"github.com/overlaydao/overlay-users/internal/dispatch"
	"github.com/overlaydao/overlay-users/internal/event"
	"github.com/overlaydao/overlay-users/internal/middleware"
	"github.com/overlaydao/overlay-users/internal/state"
)

// Deps aggregates shared dependencies required to wire the emulator routes.
type Deps struct {
	Cfg    config.Config
	Store  state.Store
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and the invocation surface. The recover
// middleware plays the host's abort path: a contract panic unwinds before the
// buffered writes are committed, so the invocation is all-or-nothing.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.TransactionID())
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Dedupe(d.Cache, d.Cfg.DedupeTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	sink := event.NewLoggerSink(d.Logger)
	dispatcher := dispatch.New(d.Logger, sink)

	api := app.Group("/v1")
	RegisterContractRoutes(api, d, dispatcher)

	return nil
}
