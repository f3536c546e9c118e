package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dinedesk/dinedesk/internal/broadcast"
	"github.com/dinedesk/dinedesk/internal/clients"
	"github.com/dinedesk/dinedesk/internal/config"
	"github.com/dinedesk/dinedesk/internal/database"
	"github.com/dinedesk/dinedesk/internal/handlers"
	"github.com/dinedesk/dinedesk/internal/outbox"
	"github.com/dinedesk/dinedesk/internal/repository"
	"github.com/dinedesk/dinedesk/internal/service"
	"github.com/dinedesk/dinedesk/pkg/kafka"
	"github.com/dinedesk/dinedesk/pkg/logger"
	"github.com/dinedesk/dinedesk/pkg/middleware"
	"github.com/dinedesk/dinedesk/pkg/retry"
)

type Server struct {
	config              *config.Config
	logger              logger.Logger
	router              *mux.Router
	httpServer          *http.Server
	db                  *database.Database
	broadcaster         *broadcast.Broadcaster
	orderService        *service.OrderService
	dlqRepo             *repository.DeadLetterRepository
	outboxProcessor     *outbox.Processor
	deadLetterProcessor *outbox.DeadLetterProcessor
	kafkaProducer       *kafka.Producer
	kafkaConsumer       *kafka.Consumer
	notifierClient      *clients.NotifierClient
	rateLimiter         *middleware.RateLimiterMiddleware
	upgrader            websocket.Upgrader
}

// NewServer creates a new API server with the given configuration and logger.
func NewServer(cfg *config.Config, logger logger.Logger) *Server {
	r := mux.NewRouter()
	db, err := database.New(cfg, logger)

	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		panic(err)
	}

	if err := db.RunMigrations(); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		panic(err)
	}

	// Repositories
	outboxRepo := repository.NewOutboxRepository(db, logger)
	orderRepo := repository.NewOrderRepository(db, outboxRepo, logger)
	menuRepo := repository.NewMenuRepository(db, logger)
	dlqRepo := repository.NewDeadLetterRepository(db, logger)

	// Live feed fan-out. The subscriber set lives in this process only;
	// it is rebuilt empty on restart and clients recover via backlog
	// replay on reconnect.
	broadcaster := broadcast.New(cfg.Feed.QueueSize, logger)

	orderService := service.NewOrderService(orderRepo, menuRepo, broadcaster, logger)

	kafkaProducer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)

	if err != nil {
		logger.Error("Failed to create Kafka producer", "error", err)
		panic(err)
	}

	// Outbox relay to Kafka
	processorConfig := &outbox.ProcessorConfig{
		PollingInterval: 5 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
	}
	outboxProcessor := outbox.NewProcessor(outboxRepo, dlqRepo, processorConfig, logger)

	dlqProcessorConfig := &outbox.DeadLetterProcessorConfig{
		PollingInterval: 30 * time.Second,
		BatchSize:       5,
		MaxRetries:      5,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 1 * time.Second,
			MaxInterval:     2 * time.Minute,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	}
	deadLetterProcessor := outbox.NewDeadLetterProcessor(dlqRepo, dlqProcessorConfig, logger)

	kafkaHandler := outbox.NewKafkaHandler(kafkaProducer, cfg.Kafka.OrdersTopic, logger)

	outboxProcessor.RegisterHandler("order_created", kafkaHandler)
	outboxProcessor.RegisterHandler("order_status_changed", kafkaHandler)

	deadLetterProcessor.RegisterHandler("order_created", kafkaHandler)
	deadLetterProcessor.RegisterHandler("order_status_changed", kafkaHandler)

	// Downstream notifier fed by the Kafka consumer
	notifierClient := clients.NewNotifierClient(cfg.Notifier.WebhookURL, logger)

	consumerConfig := &kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topics:        []string{cfg.Kafka.OrdersTopic},
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}

	kafkaConsumer, err := kafka.NewConsumer(consumerConfig, logger)

	if err != nil {
		logger.Error("Failed to create Kafka consumer", "error", err)
		panic(err)
	}

	orderEventsHandler := handlers.NewOrderEventsHandler(notifierClient, logger)
	kafkaConsumer.RegisterHandler(cfg.Kafka.OrdersTopic, orderEventsHandler)

	rateLimiter := middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
		GlobalMaxTokens:   200,
		GlobalRefillRate:  100,
		IPMaxTokens:       20,
		IPRefillRate:      10,
		TrustForwardedFor: true,
	}, logger)

	server := &Server{
		router: r,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger:              logger,
		config:              cfg,
		db:                  db,
		broadcaster:         broadcaster,
		orderService:        orderService,
		dlqRepo:             dlqRepo,
		outboxProcessor:     outboxProcessor,
		deadLetterProcessor: deadLetterProcessor,
		kafkaProducer:       kafkaProducer,
		kafkaConsumer:       kafkaConsumer,
		notifierClient:      notifierClient,
		rateLimiter:         rateLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Kitchen displays are served from other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	server.setupRoutes()

	outboxProcessor.Start()
	deadLetterProcessor.Start()

	if err := kafkaConsumer.Start(); err != nil {
		logger.Error("Failed to start Kafka consumer", "error", err)
		// Non-fatal, the outbox keeps the events durable until a
		// consumer picks them up.
	}

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.outboxProcessor.Stop()
	s.deadLetterProcessor.Stop()

	if s.kafkaConsumer != nil {
		if err := s.kafkaConsumer.Stop(); err != nil {
			s.logger.Error("Error stopping Kafka consumer", "error", err)
		}
	}

	if s.kafkaProducer != nil {
		if err := s.kafkaProducer.Close(); err != nil {
			s.logger.Error("Error closing Kafka producer", "error", err)
		}
	}

	// Ends every open feed session so streaming handlers return.
	s.broadcaster.Close()

	s.rateLimiter.Stop()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Error closing database connection", "error", err)
	}

	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimiter.Middleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)
	api.HandleFunc("/menu", s.getMenuHandler).Methods(http.MethodGet)

	api.HandleFunc("/orders", s.placeOrderHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders", s.getOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/active", s.getActiveOrdersHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/feed", s.orderFeedHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/status", s.updateOrderStatusHandler).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id:[0-9]+}", s.getOrderByIDHandler).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id:[0-9]+}/status", s.updateOrderStatusHandler).Methods(http.MethodPatch, http.MethodPost)

	api.HandleFunc("/reports/daily", s.getDailyReportHandler).Methods(http.MethodGet)

	// Kitchen display websocket feed
	s.router.HandleFunc("/ws/kitchen", s.kitchenFeedHandler).Methods(http.MethodGet)

	// Admin API for monitoring and management
	admin := s.router.PathPrefix("/api/v1/admin").Subrouter()
	admin.HandleFunc("/dead-letters", s.getDeadLettersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/dead-letters/{id:[0-9]+}/retry", s.retryDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/dead-letters/{id:[0-9]+}/discard", s.discardDeadLetterHandler).Methods(http.MethodPost)
	admin.HandleFunc("/notifier/circuit", s.getNotifierCircuitHandler).Methods(http.MethodGet)
	admin.HandleFunc("/notifier/circuit/reset", s.resetNotifierCircuitHandler).Methods(http.MethodPost)
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
