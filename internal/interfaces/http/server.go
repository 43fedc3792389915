// Package http provides the HTTP adapter over the application services.
// Handlers only translate requests and map domain errors onto status
// codes; all semantics live below.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bangunpro/rab-approval/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Services bundles the application services the HTTP layer exposes
type Services struct {
	Approval     service.ApprovalService
	Workflow     service.WorkflowService
	Query        service.QueryService
	Notification service.NotificationService
	Report       service.ReportService
	Budget       service.BudgetService
	User         service.UserService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.services, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api/v1")
	{
		// Approval lifecycle
		api.POST("/approvals", handlers.SubmitApproval)
		api.GET("/approvals", handlers.ListApprovals)
		api.GET("/approvals/:id", handlers.GetApprovalStatus)
		api.POST("/approvals/:id/decisions", handlers.Decide)

		// Per-user worklist
		api.GET("/pending-approvals", handlers.PendingApprovals)

		// Workflow definition administration
		api.POST("/workflows", handlers.CreateWorkflow)
		api.GET("/workflows", handlers.ListWorkflows)
		api.GET("/workflows/:id", handlers.GetWorkflow)
		api.PUT("/workflows/:id", handlers.UpdateWorkflow)
		api.POST("/workflows/:id/activate", handlers.ActivateWorkflow)

		// Notifications
		api.GET("/notifications", handlers.ListNotifications)
		api.POST("/notifications/:id/read", handlers.MarkNotificationRead)

		// Budget items
		api.POST("/budget-items", handlers.CreateBudgetItem)
		api.GET("/budget-items/:id", handlers.GetBudgetItem)
		api.GET("/projects/:project_id/budget-items", handlers.ListProjectBudgetItems)

		// Users
		api.POST("/users", handlers.CreateUser)
		api.GET("/users/:id", handlers.GetUser)

		// Reports
		api.GET("/reports/approval-register", handlers.DownloadApprovalRegister)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
