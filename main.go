package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-connector/awsclient"
	"payment-connector/config"
	"payment-connector/consumer"
	"payment-connector/controllers"
	"payment-connector/database"
	"payment-connector/gateway"
	"payment-connector/publisher"
	"payment-connector/repository"
	"payment-connector/routes"
	"payment-connector/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.New()
	if err != nil {
		logger.Fatal("Config load failed", zap.Error(err))
	}

	// Database
	if err := database.Connect(logger, cfg.DB); err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}

	// AWS clients
	awsCfg, err := awsclient.LoadConfig(context.Background())
	if err != nil {
		logger.Fatal("AWS config load failed", zap.Error(err))
	}

	// CloudWatch (non-fatal)
	metricsClient, err := awsclient.NewMetricsClient(context.Background())
	if err != nil {
		logger.Warn("CloudWatch metrics client init failed (non-fatal)", zap.Error(err))
	}

	// Gateway connectors
	registry := gateway.NewRegistry(
		gateway.NewStripeConnector(cfg.Stripe.APIKey, logger),
		gateway.NewSandboxConnector(),
	)

	// Dependency injection
	chargeRepo := repository.NewGormChargeRepository(database.DB)
	refundRepo := repository.NewGormRefundRepository(database.DB)

	eventPublisher := publisher.NewSNSPublisher(awsCfg, cfg.Queue.EventTopicARN, logger)
	transitioner := services.NewLifecycleTransitioner(chargeRepo, refundRepo, eventPublisher, logger)

	captureQueue := consumer.NewCaptureQueue(awsCfg, cfg.Queue.CaptureQueueURL)
	chargeService := services.NewChargeService(chargeRepo, refundRepo, transitioner, registry, captureQueue, logger)

	statusMapper := services.NewStatusMapper()
	verifier := services.NewSourceVerifier(cfg.Notifications.AllowedSources(), logger)
	reconciler := services.NewNotificationReconciler(
		chargeRepo, refundRepo, transitioner, statusMapper, verifier, logger,
		services.NewStripeNotificationParser(),
		services.NewSandboxNotificationParser(),
	)

	discrepancyService := services.NewDiscrepancyService(
		chargeRepo, registry, statusMapper, transitioner,
		cfg.Discrepancy.PollsPerSecond, logger,
	)

	retryPolicy := services.NewCaptureRetryPolicy(chargeRepo, cfg.Queue.CaptureMaxRetries)
	captureConsumer := consumer.NewCaptureConsumer(
		awsCfg, cfg.Queue.CaptureQueueURL, transitioner, retryPolicy,
		registry, chargeRepo, metricsClient, cfg.Queue.CaptureRetryDelay, logger,
	)

	expirySweeper := services.NewExpirySweeper(
		chargeRepo, transitioner, cfg.Expiry.ChargeTTL, cfg.Expiry.SweepInterval, logger,
	)

	chargeController := controllers.NewChargeController(chargeService, chargeRepo, logger)
	notificationController := controllers.NewNotificationController(reconciler, metricsClient, logger)
	discrepancyController := controllers.NewDiscrepancyController(discrepancyService, logger)

	// Router
	r := gin.New()
	r.Use(gin.Recovery())

	// CloudWatch middleware
	r.Use(func(c *gin.Context) {
		if metricsClient == nil || !metricsClient.IsEnabled() {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		dur := time.Since(start)
		go func() {
			mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			dims := map[string]string{
				"Service": "payment-connector",
				"Method":  c.Request.Method,
				"Path":    c.FullPath(),
			}
			_ = metricsClient.RecordCount(mctx, awsclient.MetricHTTPRequests, dims)
			_ = metricsClient.RecordLatency(mctx, awsclient.MetricHTTPLatency, dur, dims)
			if c.Writer.Status() >= 400 {
				_ = metricsClient.RecordCount(mctx, awsclient.MetricHTTPErrors, dims)
			}
		}()
	})

	// Request logging
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	})

	// Request timeout
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.RegisterRoutes(r, chargeController, notificationController, discrepancyController)

	// Background workers
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	consumerDone := make(chan struct{})
	go func() {
		captureConsumer.Run(workerCtx)
		close(consumerDone)
	}()
	go expirySweeper.Run(workerCtx)

	// HTTP server
	srv := &http.Server{Addr: ":" + cfg.APP.Port, Handler: r}
	go func() {
		logger.Info("Payment connector started", zap.String("port", cfg.APP.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Initiating graceful shutdown...")
	workerCancel()

	// The consumer drains its in-flight batch after cancellation; exiting
	// before it returns would kill a capture between the claim commit and
	// the terminal transition.
	select {
	case <-consumerDone:
	case <-time.After(45 * time.Second):
		logger.Warn("Capture consumer did not drain in time")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := database.Close(); err != nil {
		logger.Error("Database close error", zap.Error(err))
	}

	logger.Info("Payment connector stopped gracefully")
}
