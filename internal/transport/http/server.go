// Package http provides the HTTP server for the gateway.
package http

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/dispatch"
	"github.com/xiaot623/gogo/gateway/internal/security"
	"github.com/xiaot623/gogo/gateway/internal/transport/http/llmproxy"
	"github.com/xiaot623/gogo/gateway/internal/transport/ws"
)

// Options wires the server's collaborators.
type Options struct {
	AuthMode dispatch.AuthMode // already resolved
	APIKey   string
	WS       *ws.Server
	Hub      *ws.Hub
	Proxy    *llmproxy.Handler
	Registry *security.Registry
	Skills   SkillStats
	Gatherer prometheus.Gatherer
}

// NewServer creates and configures the gateway HTTP server.
func NewServer(opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(InternalGuard(opts.APIKey))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, InternalPrefix)
		},
	}))
	e.Use(Auth(opts.AuthMode, opts.APIKey))

	e.GET(dispatch.HealthPath, healthHandler(opts))

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if opts.WS != nil {
		e.GET("/ws", opts.WS.HandleWebSocket)
	}
	if opts.Proxy != nil {
		opts.Proxy.RegisterRoutes(e)
	}
	if opts.Registry != nil {
		NewWidgetHandler(opts.Registry).RegisterRoutes(e)
	}
	if opts.Skills != nil {
		e.GET(InternalPrefix+"skills/stats", skillStatsHandler(opts.Skills))
	}

	return e
}

func healthHandler(opts Options) echo.HandlerFunc {
	return func(c echo.Context) error {
		resp := map[string]any{"status": "ok"}
		if opts.Hub != nil {
			resp["connections"] = opts.Hub.Count()
		}
		if opts.Registry != nil {
			resp["widget_sessions"] = opts.Registry.Count()
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				evt = log.Warn().Err(v.Error)
			}
			evt.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
