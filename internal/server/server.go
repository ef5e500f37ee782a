package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/vidqa/internal/pipeline"
	"github.com/mohammad-safakhou/vidqa/internal/store"
)

// queryRunner is the pipeline surface the server needs.
type queryRunner interface {
	Query(ctx context.Context, req pipeline.Request) pipeline.QueryResult
}

// historyLister reads back a session's persisted messages.
type historyLister interface {
	ListMessages(ctx context.Context, token string) ([]store.Message, error)
}

// transcriptIndex is the lexical index surface exposed over the API.
type transcriptIndex interface {
	Refresh(ctx context.Context) error
	Len() int
}

// Server exposes the query pipeline over HTTP.
type Server struct {
	Pipeline queryRunner
	History  historyLister
	Index    transcriptIndex

	// Secret enables JWT auth on /api when non-empty.
	Secret []byte

	// Metrics exposes the Prometheus endpoint when true.
	Metrics bool

	// DefaultTopK substitutes for an absent top_k in query requests.
	DefaultTopK int

	logger *log.Logger
}

// New builds the server around an assembled pipeline. History and Index
// may be nil when the corresponding endpoints are not wanted.
func New(p queryRunner, history historyLister, idx transcriptIndex, secret []byte, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	return &Server{Pipeline: p, History: history, Index: idx, Secret: secret, logger: logger}
}

// Echo assembles the routed echo instance.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if s.Metrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	api := e.Group("/api")
	if len(s.Secret) > 0 {
		api.Use(authMiddleware(s.Secret))
	}
	api.POST("/query", s.handleQuery)
	api.GET("/sessions/:token", s.handleSessionHistory)
	api.POST("/index/refresh", s.handleIndexRefresh)

	return e
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	if addr == "" {
		addr = ":10010"
	}
	s.logger.Printf("listening on %s", addr)
	return s.Echo().Start(addr)
}
