// Package api exposes the fetch workflows over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/failure"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/history"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/session"
	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/workflow"
	"go.uber.org/zap"
)

// HistoryReader reads persisted session outcomes.
type HistoryReader interface {
	List(ctx context.Context, kind session.Kind, limit int) ([]history.Outcome, error)
	Get(ctx context.Context, sessionID string) (*history.Outcome, error)
}

// LeakChecker reports finished sessions that still hold a browser context.
type LeakChecker interface {
	Leaks(ctx context.Context) ([]string, error)
}

// BrowserProbe reports whether the automation backend is reachable.
type BrowserProbe interface {
	IsConnected() bool
}

// Handler handles HTTP requests.
type Handler struct {
	svc     *workflow.Service
	history HistoryReader
	leaks   LeakChecker
	browser BrowserProbe
	version string
	log     *zap.Logger
}

// Deps are the optional collaborators of a Handler; nil ones disable the
// endpoints or health checks that need them.
type Deps struct {
	History HistoryReader
	Leaks   LeakChecker
	Browser BrowserProbe
	Logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(svc *workflow.Service, version string, deps Deps) *Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		svc:     svc,
		history: deps.History,
		leaks:   deps.Leaks,
		browser: deps.Browser,
		version: version,
		log:     log,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/cnr/init", h.CNRInit)
	e.POST("/cnr/submit", h.CNRSubmit)
	e.POST("/causelist/init", h.CauseListInit)
	e.POST("/causelist/submit", h.CauseListSubmit)
	e.GET("/download", h.Download)

	e.GET("/sessions", h.ListSessions)
	e.GET("/history", h.ListHistory)
	e.GET("/history/:session_id", h.GetHistory)
	e.GET("/health", h.Health)

	// Routes kept for existing clients.
	legacy := e.Group("/api")
	legacy.POST("/fetch_by_cnr_init", h.CNRInit)
	legacy.POST("/fetch_by_cnr_submit", h.CNRSubmit)
	legacy.POST("/fetch_by_court_init", h.CauseListInit)
	legacy.POST("/fetch_by_court_submit", h.CauseListSubmit)
	legacy.GET("/download_pdf", h.Download)
}

// NewServer builds an echo instance with the standard middleware stack and
// the handler's routes.
func NewServer(cfg config.ServerConfig, h *Handler, log *zap.Logger) *echo.Echo {
	if log == nil {
		log = zap.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	} else {
		e.Use(middleware.CORS())
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	h.RegisterRoutes(e)
	return e
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string       `json:"error"`
	Kind  failure.Kind `json:"kind"`
	Field string       `json:"field,omitempty"`
}

func writeError(c echo.Context, err error) error {
	kind := failure.KindOf(err)
	return c.JSON(failure.HTTPStatus(kind), errorBody{
		Error: failure.Public(err),
		Kind:  kind,
		Field: failure.FieldOf(err),
	})
}

// errorHandler renders router errors (unknown route, wrong method, body too
// large) in the same shape as workflow errors.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			kind := failure.InvalidRequest
			if he.Code >= http.StatusInternalServerError {
				kind = failure.Internal
			}
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			_ = c.JSON(he.Code, errorBody{Error: msg, Kind: kind})
			return
		}
		log.Error("unhandled request error", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		_ = writeError(c, err)
	}
}
