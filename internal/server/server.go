package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dropcast/dropcast/internal/config"
	"github.com/dropcast/dropcast/internal/service"
	"github.com/dropcast/dropcast/internal/store"
)

type Server struct {
	Config *config.Config
	Store  *store.Store
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Pipeline *service.Pipeline
	Runner   *service.Runner
	Auth     *service.AuthService
}

func NewServer(cfg *config.Config, records *store.Store, pipeline *service.Pipeline, runner *service.Runner, logger *zap.Logger) *Server {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()

	srv := &Server{
		Config:   cfg,
		Store:    records,
		Router:   router,
		Logger:   logger,
		Pipeline: pipeline,
		Runner:   runner,
		Auth:     service.NewAuthService(logger, cfg.Auth.TOTPSecret),
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Auth-Token")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	api.Use(s.Auth.AuthMiddleware())
	{
		accounts := api.Group("/accounts")
		{
			accounts.GET("", s.handleListAccounts)
			accounts.GET("/:name/result", s.handleLastResult)
			accounts.POST("/:name/run", s.handleTriggerRun)
		}
	}
}

func (s *Server) handleListAccounts(c *gin.Context) {
	type accountStatus struct {
		Name        string     `json:"name"`
		Folder      string     `json:"folder"`
		Paused      bool       `json:"paused"`
		TokenExpiry *time.Time `json:"token_expiry,omitempty"`
	}

	statuses := make([]accountStatus, 0, len(s.Config.Accounts))
	for _, account := range s.Config.Accounts {
		settings, err := s.Store.Settings(account.Name)
		if err != nil {
			s.Logger.Error("Failed to load account settings", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load accounts"})
			return
		}
		statuses = append(statuses, accountStatus{
			Name:        account.Name,
			Folder:      account.Folder,
			Paused:      settings.Paused,
			TokenExpiry: settings.TokenExpiry,
		})
	}

	c.JSON(http.StatusOK, gin.H{"accounts": statuses})
}

func (s *Server) handleLastResult(c *gin.Context) {
	name := c.Param("name")
	if _, err := s.Config.Account(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown account"})
		return
	}

	result, err := s.Store.LastResult(name)
	if err != nil {
		s.Logger.Error("Failed to load last result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load result"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No result recorded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleTriggerRun(c *gin.Context) {
	name := c.Param("name")
	if _, err := s.Config.Account(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown account"})
		return
	}

	if s.Pipeline.Busy(name) {
		c.JSON(http.StatusConflict, gin.H{"error": "Run already in progress"})
		return
	}

	// Manual triggers run detached; the outcome lands in the result record
	// and the notification channel like any scheduled run. The pipeline's
	// own in-flight guard covers a trigger racing a runner tick past the
	// check above.
	go func() {
		if err := s.Pipeline.Run(context.Background(), name); err != nil {
			s.Logger.Error("Triggered run failed",
				zap.String("account", name),
				zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"message": "Run triggered"})
}

func (s *Server) Start(ctx context.Context) error {
	// Start periodic runner
	if err := s.Runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start runner: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop runner first
	s.Runner.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
