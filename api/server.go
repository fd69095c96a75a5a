package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/rs/zerolog/log"

	"example.com/libraria/services/library/config"
	"example.com/libraria/services/library/handlers"
	"example.com/libraria/services/library/tracing"
)

// Server is the HTTP server for the API
type Server struct {
	cfg                config.Config
	router             *gin.Engine
	httpServer         *http.Server
	bookHandler        *handlers.BookHandler
	reservationHandler *handlers.ReservationHandler
	walletHandler      *handlers.WalletHandler
	queryHandler       *handlers.QueryHandler
	tracer             tracing.Tracer
}

// NewServer creates a new API server
func NewServer(
	cfg config.Config,
	bookHandler *handlers.BookHandler,
	reservationHandler *handlers.ReservationHandler,
	walletHandler *handlers.WalletHandler,
	queryHandler *handlers.QueryHandler,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		cfg:                cfg,
		router:             gin.New(),
		bookHandler:        bookHandler,
		reservationHandler: reservationHandler,
		walletHandler:      walletHandler,
		queryHandler:       queryHandler,
		tracer:             tracer,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup routes
	server.setupRoutes()

	return server
}

// setupMiddleware adds middleware to the router
func (s *Server) setupMiddleware() {
	// Add request ID middleware
	s.router.Use(RequestIDMiddleware())

	// Add CORS middleware
	if s.cfg.CorsEnabled {
		s.router.Use(CORSMiddleware())
	}

	// Add recovery middleware
	s.router.Use(gin.Recovery())

	// Add logging middleware
	s.router.Use(LoggingMiddleware())

	// Add New Relic instrumentation when configured
	if s.tracer != nil && s.tracer.Application() != nil {
		s.router.Use(nrgin.Middleware(s.tracer.Application()))
	}
}

// setupRoutes defines the API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	// API v1 group
	v1 := s.router.Group("/api/v1")

	// Book routes
	bookRoutes := v1.Group("/books")
	{
		bookRoutes.POST("", s.createBook)
		bookRoutes.GET("", s.listBooks)
		bookRoutes.GET("/search", s.searchBooks)
		bookRoutes.GET("/:id", s.getBook)
		bookRoutes.PATCH("/:id", s.updateBook)
		bookRoutes.DELETE("/:id", s.deleteBook)
	}

	// Reservation routes
	reservationRoutes := v1.Group("/reservations")
	{
		reservationRoutes.POST("", s.createReservation)
		reservationRoutes.GET("", s.listReservations)
		reservationRoutes.GET("/:id", s.getReservation)
		reservationRoutes.POST("/:id/cancel", s.cancelReservation)
		reservationRoutes.POST("/:id/return", s.returnReservation)
	}

	// Wallet routes
	walletRoutes := v1.Group("/wallets")
	{
		walletRoutes.POST("", s.createWallet)
		walletRoutes.GET("/user/:userID", s.getWalletByUser)
		walletRoutes.POST("/:id/balance", s.updateBalance)
		walletRoutes.DELETE("/:id", s.deleteWallet)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.HTTPServerAddress,
		Handler: s.router,
	}

	log.Info().Msgf("HTTP server starting on %s", s.cfg.HTTPServerAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
