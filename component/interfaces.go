package component

import "context"

// HealthStatus is the state a component reports to /health and the startup
// summary.
type HealthStatus string

const (
	StatusHealthy HealthStatus = "healthy"
	// StatusDegraded still serves traffic, e.g. a full job queue or an
	// unreachable event broker.
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Health is one component's answer to a health probe.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Worst folds component answers into one service status. No answers is
// healthy.
func Worst(hs []Health) HealthStatus {
	worst := StatusHealthy
	for _, h := range hs {
		if h.Status.rank() > worst.rank() {
			worst = h.Status
		}
	}
	return worst
}

// Component is a piece of the service with a start/stop lifecycle: the job
// manager, the worker pool, the HTTP server and the backing stores.
// Components start in registration order and stop in reverse.
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) Health
}

// Description is a component's line in the startup summary.
type Description struct {
	// Name defaults to the component's Name() when empty.
	Name string
	// Type groups lines, e.g. "redis", "scheduler", "server".
	Type string
	// Details is free text such as "localhost:6379 db=0 pool=10".
	Details string
	// Port is 0 when the component does not listen.
	Port int
}

// Describable components appear in the infrastructure section of the
// startup summary.
type Describable interface {
	Describe() Description
}

// Route is one HTTP route listed in the startup summary.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// RouteProvider is implemented by the HTTP server component.
type RouteProvider interface {
	Routes() []Route
}
