package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// BrokerPinger reports work-queue broker connectivity.
type BrokerPinger interface {
	Ping(ctx context.Context) error
}

// ReadinessProbe is one named dependency check run by the readiness
// endpoint. A delivery can only move through its lifecycle when the
// record store, the idempotency/rate-limit store, and the work-queue
// broker are all reachable.
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, broker BrokerPinger) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(
		ReadinessProbe{Name: "postgres", Check: func(ctx context.Context) error { return sqlDB.PingContext(ctx) }},
		ReadinessProbe{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		ReadinessProbe{Name: "rabbitmq", Check: broker.Ping},
	))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(probes ...ReadinessProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		checks := fiber.Map{}
		ready := true
		for _, probe := range probes {
			if err := probe.Check(ctx); err != nil {
				checks[probe.Name] = "down"
				ready = false
				continue
			}
			checks[probe.Name] = "ok"
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}
