// Package health serves liveness and Prometheus endpoints next to the bot.
package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kazo/internal/log"
)

const checkTimeout = 5 * time.Second

// Check reports the state of one dependency. Only critical checks decide
// the overall status.
type Check struct {
	Name     string
	Critical bool
	Run      func(ctx context.Context) (string, error)
}

type Server struct {
	srv     *http.Server
	checks  []Check
	logger  *log.Logger
	started time.Time
}

// NewServer builds the router. metrics may be nil.
func NewServer(addr string, checks []Check, metrics http.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		checks:  checks,
		logger:  logger.WithComponent(log.ComponentHealth),
		started: time.Now(),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger(), noStore())
	router.GET("/healthz", s.handleHealth)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Health server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Health server stopped", log.FieldError, err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
	defer cancel()

	healthy := true
	results := make(gin.H, len(s.checks))
	for _, check := range s.checks {
		state, err := check.Run(ctx)
		if err != nil {
			state = "error: " + err.Error()
			if check.Critical {
				healthy = false
			}
		}
		results[check.Name] = state
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"checks": results,
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)
		c.Next()
		s.logger.DebugContext(c.Request.Context(), "HTTP request",
			"request_id", requestID,
			log.FieldMethod, c.Request.Method,
			log.FieldPath, c.Request.URL.Path,
			log.FieldStatusCode, c.Writer.Status(),
			log.FieldDuration, time.Since(start).Milliseconds())
	}
}

// noStore keeps probes and scrapes out of intermediary caches.
func noStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}
