package server

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mediascribe/component"
)

const componentName = "http-server"

var (
	_ component.Component     = (*ServerComponent)(nil)
	_ component.Describable   = (*ServerComponent)(nil)
	_ component.RouteProvider = (*ServerComponent)(nil)
)

// ServerComponent registers the HTTP server with the application lifecycle.
// It starts last and stops first so in-flight requests drain before the job
// manager goes away.
type ServerComponent struct {
	server *Server
}

// NewComponent returns a component.Component backed by the given Server.
func NewComponent(s *Server) *ServerComponent {
	return &ServerComponent{server: s}
}

// Name returns the component name used for registration.
func (sc *ServerComponent) Name() string { return componentName }

// Start starts the underlying HTTP server.
func (sc *ServerComponent) Start(ctx context.Context) error {
	return sc.server.Start(ctx)
}

// Stop gracefully shuts down the underlying HTTP server.
func (sc *ServerComponent) Stop(ctx context.Context) error {
	return sc.server.Stop(ctx)
}

// Health is always healthy: a server that cannot answer never gets asked.
func (sc *ServerComponent) Health(_ context.Context) component.Health {
	return component.Health{Name: componentName, Status: component.StatusHealthy}
}

// Describe returns infrastructure summary info for the bootstrap display.
func (sc *ServerComponent) Describe() component.Description {
	cfg := sc.server.config
	return component.Description{
		Name:    "HTTP Server",
		Type:    "server",
		Details: fmt.Sprintf("%s:%d h2c", cfg.Host, cfg.Port),
		Port:    cfg.Port,
	}
}

// Routes lists the API routes followed by the probe and info routes.
func (sc *ServerComponent) Routes() []component.Route {
	gr := sc.server.engine.Routes()
	slices.SortFunc(gr, func(a, b gin.RouteInfo) int {
		return cmp.Or(
			cmp.Compare(b2i(isSystemPath(a.Path)), b2i(isSystemPath(b.Path))),
			cmp.Compare(a.Path, b.Path),
			cmp.Compare(methodOrder(a.Method), methodOrder(b.Method)),
		)
	})

	routes := make([]component.Route, len(gr))
	for i, r := range gr {
		handler := formatHandlerName(r.Handler)
		if isSystemPath(r.Path) {
			handler += " (system)"
		}
		routes[i] = component.Route{Method: r.Method, Path: r.Path, Handler: handler}
	}
	return routes
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
