package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/support-desk/internal/observability"
)

const readinessTimeout = 2 * time.Second

// Dependency is an optional backing service probed by readiness checks.
type Dependency interface {
	Ping(ctx context.Context) error
	Enabled() bool
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName  string
	version      string
	dependencies map[string]Dependency
	metrics      *observability.Metrics
}

// NewHealthHandler returns a new handler instance. Disabled dependencies are reported but never
// fail readiness; the service runs on in-process fallbacks without them.
func NewHealthHandler(serviceName, version string, dependencies map[string]Dependency, metrics *observability.Metrics) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, dependencies: dependencies, metrics: metrics}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by pinging enabled dependencies in parallel.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	var (
		mu        sync.Mutex
		depStatus = fiber.Map{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, dep := range h.dependencies {
		if dep == nil || !dep.Enabled() {
			mu.Lock()
			depStatus[name] = "disabled"
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			err := dep.Ping(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				depStatus[name] = err.Error()
				return err
			}
			depStatus[name] = "ok"
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": depStatus,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"dependencies": depStatus,
	})
}

// Metrics exposes request and error counters.
func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
