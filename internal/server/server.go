package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/handlers"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/logging"
	"github.com/tm-acme-shop/acme-shop-cart-service/internal/middleware"
)

type Server struct {
	config   *config.Config
	router   *gin.Engine
	handlers *handlers.Handlers
	http     *http.Server
	logger   *logging.LoggerV2
}

func New(h *handlers.Handlers, cfg *config.Config) *Server {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Identity(),
		middleware.Logger(),
		middleware.Metrics(),
		middleware.Except("/functions/", middleware.CORS(cfg.Server.AllowedOrigins)),
	)

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
		logger:   logging.NewLoggerV2("server"),
	}
	s.setupRoutes()

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)
	s.router.GET("/live", s.handlers.Live)
	s.router.GET("/version", s.handlers.Version)
	s.router.GET("/metrics", s.handlers.Metrics())

	// The calculator is called straight from browsers on any origin.
	fn := s.router.Group("/functions/v1", middleware.PublicCORS())
	{
		fn.POST("/calculate-order-total", s.handlers.CalculateOrderTotal)
		fn.OPTIONS("/calculate-order-total", s.handlers.CalculateOrderTotalOptions)
	}

	v1 := s.router.Group("/api/v1")
	{
		cart := v1.Group("/cart")
		cart.GET("", s.handlers.GetCart)
		cart.DELETE("", s.handlers.ClearCart)
		cart.POST("/items", s.handlers.AddCartItem)
		cart.PUT("/items/:product_id", s.handlers.UpdateCartItem)
		cart.DELETE("/items/:product_id", s.handlers.RemoveCartItem)
		cart.POST("/login", s.handlers.LoginCart)

		checkout := v1.Group("/checkout")
		checkout.POST("", s.handlers.Checkout)
		checkout.POST("/summary", s.handlers.CheckoutSummary)
		checkout.GET("/status", s.handlers.CheckoutStatus)

		orders := v1.Group("/orders")
		orders.POST("", s.handlers.CreateOrder)
		orders.GET("", s.handlers.ListOrders)
		orders.GET("/:id", s.handlers.GetOrder)
		orders.PATCH("/:id/status", s.handlers.UpdateOrderStatus)
		orders.POST("/:id/cancel", s.handlers.CancelOrder)
	}
}

// Start serves until Shutdown is called; it then returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("Starting server", logging.Fields{"addr": s.http.Addr})
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
