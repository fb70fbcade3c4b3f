// Package api exposes the scheduler's command methods over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ProfilePilot/internal/metrics"
	"ProfilePilot/internal/model"
	"ProfilePilot/internal/recorder"
	"ProfilePilot/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Controller is the command surface of the scheduler.
type Controller interface {
	Status() scheduler.Snapshot
	RunNow() error
	RequestStop() bool
	LatestReport(ctx context.Context) (model.CycleTelemetry, error)
}

// PositionSource lists open paper positions. "" means every account.
type PositionSource interface {
	Positions(accountID string) []model.PaperPosition
}

// Server is the HTTP control API.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	ctrl       Controller
	positions  PositionSource
	logger     zerolog.Logger
}

func NewServer(ctrl Controller, positions PositionSource, logger zerolog.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		ctrl:      ctrl,
		positions: positions,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	router.Use(s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/reports/latest", s.handleLatestReport)
		v1.POST("/cycle/run", s.handleRun)
		v1.POST("/cycle/stop", s.handleStop)
		v1.GET("/positions", s.handlePositions)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown. It returns http.ErrServerClosed on shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("control api listening")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().Str("method", c.Request.Method).Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).Dur("took", time.Since(start)).Msg("request")
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.ctrl.Status())
}

func (s *Server) handleLatestReport(c *gin.Context) {
	report, err := s.ctrl.LatestReport(c.Request.Context())
	if errors.Is(err, recorder.ErrNoReport) {
		errorResponse(c, http.StatusNotFound, "no report recorded yet")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("read latest report")
		errorResponse(c, http.StatusInternalServerError, "failed to read report")
		return
	}
	successResponse(c, report)
}

func (s *Server) handleRun(c *gin.Context) {
	if err := s.ctrl.RunNow(); err != nil {
		if errors.Is(err, scheduler.ErrCycleRunning) {
			errorResponse(c, http.StatusConflict, "a cycle is already running")
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "cycle started"})
}

func (s *Server) handleStop(c *gin.Context) {
	if !s.ctrl.RequestStop() {
		errorResponse(c, http.StatusConflict, "no cycle is running")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "stop requested"})
}

func (s *Server) handlePositions(c *gin.Context) {
	if s.positions == nil {
		successResponse(c, []model.PaperPosition{})
		return
	}
	positions := s.positions.Positions(c.Query("account_id"))
	if positions == nil {
		positions = []model.PaperPosition{}
	}
	successResponse(c, positions)
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
