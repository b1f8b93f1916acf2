package http

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/samirrijal/tripcore/internal/core/usecases"
)

// ReadinessCheck reports whether a backing service can take traffic.
type ReadinessCheck func(ctx context.Context) error

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Plans     *usecases.PlanService
	Discovery *usecases.DiscoveryService
	Usage     *usecases.UsageMonitor

	// NATS feeds the /ws/usage relay. Nil disables the relay.
	NATS *nats.Conn

	// Checks are run by /v1/ready, keyed by the name reported in the response.
	Checks map[string]ReadinessCheck

	// OpenAPIPath overrides where /docs/openapi.yaml is read from.
	OpenAPIPath string
	Version     string
}
