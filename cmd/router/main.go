// Message Router
//
// Standalone message router binary for production deployments.
// Consumes messages from queue (NATS/SQS) and delivers via HTTP mediation.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/msgrouter/core/internal/common/health"
	"github.com/msgrouter/core/internal/common/lifecycle"
	"github.com/msgrouter/core/internal/config"
	"github.com/msgrouter/core/internal/queue"
	natsqueue "github.com/msgrouter/core/internal/queue/nats"
	sqsqueue "github.com/msgrouter/core/internal/queue/sqs"
	routerapi "github.com/msgrouter/core/internal/router/api"
	"github.com/msgrouter/core/internal/router/configsource"
	routerhealth "github.com/msgrouter/core/internal/router/health"
	"github.com/msgrouter/core/internal/router/manager"
	"github.com/msgrouter/core/internal/router/mediator"
	"github.com/msgrouter/core/internal/router/notification"
	"github.com/msgrouter/core/internal/router/standby"
	"github.com/msgrouter/core/internal/router/warning"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Configure logging
	setupLogging()

	slog.Info("Starting Message Router",
		"version", version,
		"build_time", buildTime,
		"component", "router")

	ctx := context.Background()

	// ========================================
	// 1. INFRASTRUCTURE INITIALIZATION
	// ========================================
	app, cleanup, err := lifecycle.Initialize(ctx, lifecycle.AppOptions{})
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// ========================================
	// 2. QUEUE SETUP
	// ========================================
	queueConsumer, queueHealthCheck, err := setupQueue(ctx, app)
	if err != nil {
		slog.Error("Failed to setup queue", "error", err)
		os.Exit(1)
	}

	// ========================================
	// 3. COMPONENT WIRING
	// ========================================
	// Create components by passing ready infrastructure

	// Health checker
	healthChecker := health.NewChecker()
	healthChecker.AddReadinessCheck(queueHealthCheck)

	// Message router
	mediatorCfg := mediator.DefaultHTTPMediatorConfig()
	messageRouter := manager.NewRouter(queueConsumer, mediatorCfg)
	routerService := manager.NewRouterService(messageRouter)

	// Warning service, escalating ERROR/CRITICAL warnings to email/Teams
	var warningService warning.Service = warning.NewInMemoryService()
	if sink := setupNotificationSink(app); sink != nil {
		warningService = notification.NewEscalatingWarningService(warningService, sink, app.Config.Notification.MinSeverity)
	}
	warningHandler := warning.NewHandler(warningService)
	warningDashboard := warning.NewDashboardAdapter(warningService)
	messageRouter.Manager().WithWarningService(warningService)

	// Control-plane config sync
	if app.Config.ConfigSource.URL != "" {
		syncCfg := manager.DefaultConfigSyncConfig()
		syncCfg.Enabled = true
		syncCfg.Interval = app.Config.ConfigSource.SyncInterval
		messageRouter.Manager().WithConfigSync(app.Config.ConfigSource.URL, syncCfg)
		healthChecker.AddReadinessCheck(health.ConfigSyncCheck(messageRouter.Manager().HasSynced))

		// Reconcile broker consumers against the queues/connections portion
		// of the same config document on every sync.
		messageRouter.WithQueueConsumerFactory(func(qc configsource.QueueConfig) (queue.Consumer, error) {
			return setupQueueConsumerForConfig(ctx, app, qc)
		})
	}

	// Monitoring dashboard and infrastructure-aware health probes
	monitoringHandler, healthCheckHandler, k8sHealthHandler := setupMonitoringHandler(messageRouter.Manager(), warningDashboard)

	// Standby service for leader election
	standbyService := setupStandbyService(app.Config, routerService)

	// HTTP Router
	httpRouter := setupHTTPRouter(app.Config, healthChecker, standbyService, warningHandler, monitoringHandler, healthCheckHandler, k8sHealthHandler)

	// HTTP Server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", app.Config.HTTP.Port),
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ========================================
	// 4. SERVICE STARTUP
	// ========================================
	// Build the service list based on configuration
	var services []lifecycle.Service

	// HTTP service (always runs)
	httpService := lifecycle.NewHTTPService("http-server", httpServer)
	services = append(services, httpService)

	// Standby service wraps router lifecycle when leader election is enabled
	if app.Config.Leader.Enabled {
		standbyServiceWrapper := newStandbyServiceWrapper(standbyService)
		services = append(services, standbyServiceWrapper)
	} else {
		// No leader election - run router directly
		services = append(services, routerService)
	}

	slog.Info("Router ready",
		"port", app.Config.HTTP.Port,
		"queueType", app.Config.Queue.Type,
		"leaderElection", app.Config.Leader.Enabled)

	// ========================================
	// 5. RUN UNTIL SHUTDOWN
	// ========================================
	if err := lifecycle.Run(ctx, services...); err != nil {
		slog.Error("Service error", "error", err)
		os.Exit(1)
	}

	slog.Info("Message Router stopped")
}

// setupLogging configures the slog default logger.
func setupLogging() {
	logLevel := slog.LevelInfo
	if os.Getenv("ROUTER_DEV") == "true" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// setupQueue initializes the queue consumer based on configuration.
// Returns the consumer, a health check function, and any error.
func setupQueue(ctx context.Context, app *lifecycle.App) (queue.Consumer, health.CheckFunc, error) {
	cfg := app.Config

	switch cfg.Queue.Type {
	case "nats":
		return setupNATSQueue(ctx, app)
	case "sqs":
		return setupSQSQueue(ctx, app)
	default:
		return nil, nil, fmt.Errorf("unknown queue type: %s (use 'nats' or 'sqs')", cfg.Queue.Type)
	}
}

func setupNATSQueue(ctx context.Context, app *lifecycle.App) (queue.Consumer, health.CheckFunc, error) {
	cfg := app.Config

	slog.Info("Connecting to NATS server", "url", cfg.Queue.NATS.URL)

	natsClient, err := natsqueue.NewClient(&queue.NATSConfig{
		URL:        cfg.Queue.NATS.URL,
		StreamName: "DISPATCH",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Register cleanup
	app.AddCleanup(func() error {
		slog.Info("Disconnecting from NATS")
		return natsClient.Close()
	})

	consumer, err := natsClient.CreateConsumer(ctx, "router-consumer", "dispatch.>")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create NATS consumer: %w", err)
	}

	healthCheck := health.NATSCheck(func() bool {
		return true // NATS client doesn't expose connection state easily
	})

	slog.Info("Connected to NATS server")
	return consumer, healthCheck, nil
}

func setupSQSQueue(ctx context.Context, app *lifecycle.App) (queue.Consumer, health.CheckFunc, error) {
	cfg := app.Config

	slog.Info("Connecting to AWS SQS",
		"region", cfg.Queue.SQS.Region,
		"queueURL", cfg.Queue.SQS.QueueURL)

	sqsCfg := &queue.SQSConfig{
		QueueURL:            cfg.Queue.SQS.QueueURL,
		Region:              cfg.Queue.SQS.Region,
		WaitTimeSeconds:     int32(cfg.Queue.SQS.WaitTimeSeconds),
		VisibilityTimeout:   int32(cfg.Queue.SQS.VisibilityTimeout),
		MaxNumberOfMessages: 10,
	}

	sqsClient, err := sqsqueue.NewClient(ctx, sqsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create SQS client: %w", err)
	}

	// Register cleanup
	app.AddCleanup(func() error {
		slog.Info("Disconnecting from SQS")
		return sqsClient.Close()
	})

	consumer, err := sqsClient.CreateConsumer(ctx, "router-consumer", "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create SQS consumer: %w", err)
	}

	healthCheck := health.SQSCheck(func() error {
		checkCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return sqsClient.HealthCheck(checkCtx)
	})

	slog.Info("Connected to AWS SQS")
	return consumer, healthCheck, nil
}

// setupQueueConsumerForConfig creates a single queue.Consumer for one queue
// entry from the control-plane config document, using the broker type
// already selected for this instance (cfg.Queue.Type) but pointed at the
// config document's queue name/URI rather than the static startup config.
func setupQueueConsumerForConfig(ctx context.Context, app *lifecycle.App, qc configsource.QueueConfig) (queue.Consumer, error) {
	cfg := app.Config

	switch cfg.Queue.Type {
	case "nats":
		natsClient, err := natsqueue.NewClient(&queue.NATSConfig{
			URL:        cfg.Queue.NATS.URL,
			StreamName: "DISPATCH",
		})
		if err != nil {
			return nil, fmt.Errorf("connect to NATS for queue %s: %w", qc.QueueName, err)
		}
		app.AddCleanup(func() error { return natsClient.Close() })
		return natsClient.CreateConsumer(ctx, "router-consumer-"+qc.QueueName, qc.QueueName)

	case "sqs":
		queueURL := cfg.Queue.SQS.QueueURL
		if qc.QueueURI != nil && *qc.QueueURI != "" {
			queueURL = *qc.QueueURI
		}
		sqsCfg := &queue.SQSConfig{
			QueueURL:            queueURL,
			Region:              cfg.Queue.SQS.Region,
			WaitTimeSeconds:     int32(cfg.Queue.SQS.WaitTimeSeconds),
			VisibilityTimeout:   int32(cfg.Queue.SQS.VisibilityTimeout),
			MaxNumberOfMessages: 10,
		}
		sqsClient, err := sqsqueue.NewClient(ctx, sqsCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to SQS for queue %s: %w", qc.QueueName, err)
		}
		app.AddCleanup(func() error { return sqsClient.Close() })
		return sqsClient.CreateConsumer(ctx, "router-consumer-"+qc.QueueName, "")

	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Queue.Type)
	}
}

// setupStandbyService configures leader election.
func setupStandbyService(cfg *config.Config, routerService *manager.RouterService) *standby.Service {
	standbyCfg := &standby.Config{
		Enabled:         cfg.Leader.Enabled,
		InstanceID:      cfg.Leader.InstanceID,
		LockKey:         "msgrouter:router:leader",
		LockTTL:         cfg.Leader.TTL,
		RefreshInterval: cfg.Leader.RefreshInterval,
	}

	callbacks := &standby.Callbacks{
		OnBecomePrimary: func() {
			slog.Info("Became PRIMARY - starting message processing")
			routerService.Resume()
		},
		OnBecomeStandby: func() {
			slog.Info("Became STANDBY - stopping message processing")
			routerService.Pause()
		},
	}

	return standby.NewService(standbyCfg, callbacks)
}

// setupNotificationSink builds the email/Teams escalation sink from config,
// batches deliveries on a ticker, and registers the ticker's shutdown with
// the application lifecycle. Returns nil if neither channel is enabled.
func setupNotificationSink(app *lifecycle.App) notification.Service {
	notifyCfg := app.Config.Notification

	var delegates []notification.Service
	if notifyCfg.Email.Enabled {
		delegates = append(delegates, notification.NewEmailService(&notification.EmailConfig{
			SMTPHost:    notifyCfg.Email.SMTPHost,
			SMTPPort:    notifyCfg.Email.SMTPPort,
			Username:    notifyCfg.Email.Username,
			Password:    notifyCfg.Email.Password,
			FromAddress: notifyCfg.Email.FromAddress,
			ToAddress:   notifyCfg.Email.ToAddress,
			Enabled:     true,
		}))
	}
	if notifyCfg.Teams.Enabled {
		delegates = append(delegates, notification.NewTeamsService(&notification.TeamsConfig{
			WebhookURL: notifyCfg.Teams.WebhookURL,
			Enabled:    true,
		}))
	}

	if len(delegates) == 0 {
		return nil
	}

	batchWindow := notifyCfg.BatchWindow
	if batchWindow <= 0 {
		batchWindow = 5 * time.Minute
	}

	batcher := notification.NewBatchingService(delegates, &notification.BatchingConfig{
		MinSeverity: notifyCfg.MinSeverity,
		BatchWindow: batchWindow,
	})

	ticker := time.NewTicker(batchWindow)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				batcher.SendBatch()
			case <-stop:
				return
			}
		}
	}()
	app.AddCleanup(func() error {
		ticker.Stop()
		close(stop)
		return nil
	})

	return batcher
}

// setupMonitoringHandler wires pool metrics and warnings into the monitoring
// dashboard handler used by operators to inspect router state at a glance,
// plus the infrastructure-aware Kubernetes probe handlers.
func setupMonitoringHandler(poolMetrics routerhealth.PoolMetricsProvider, warningDashboard *warning.DashboardAdapter) (*routerapi.MonitoringHandler, *routerapi.HealthCheckHandler, *routerapi.KubernetesHealthHandler) {
	infraHealth := routerhealth.NewInfrastructureHealthService(true, poolMetrics)
	// No broker connectivity checker is wired for NATS/SQS yet, so the
	// Kubernetes probes lean on infrastructure health only.
	brokerHealth := routerhealth.NewBrokerHealthService(false, "", nil)

	healthStatus := routerhealth.NewHealthStatusService(infraHealth, brokerHealth, poolMetrics)
	healthStatus.SetWarningGetter(warningDashboard)

	monitoringHandler := routerapi.NewMonitoringHandler(healthStatus, poolMetrics)
	monitoringHandler.SetWarningService(warningDashboard, warningDashboard)

	healthCheckHandler := routerapi.NewHealthCheckHandler(infraHealth)
	k8sHealthHandler := routerapi.NewKubernetesHealthHandler(infraHealth, brokerHealth)

	return monitoringHandler, healthCheckHandler, k8sHealthHandler
}

// setupHTTPRouter creates the HTTP router with health/metrics endpoints.
func setupHTTPRouter(
	cfg *config.Config,
	healthChecker *health.Checker,
	standbyService *standby.Service,
	warningHandler *warning.Handler,
	monitoringHandler *routerapi.MonitoringHandler,
	healthCheckHandler *routerapi.HealthCheckHandler,
	k8sHealthHandler *routerapi.KubernetesHealthHandler,
) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/q/health", healthChecker.HandleHealth)
	r.Get("/q/health/live", healthChecker.HandleLive)
	r.Get("/q/health/ready", healthChecker.HandleReady)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/q/metrics", promhttp.Handler())

	// Standby status endpoint
	r.Get("/router/status", func(w http.ResponseWriter, req *http.Request) {
		status := standbyService.GetStatus()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"role":"%s","instanceId":"%s","standbyEnabled":%v}`,
			standbyService.GetRole(), standbyService.GetInstanceID(), status.StandbyEnabled)
	})

	// Warning endpoints
	warningHandler.RegisterRoutes(r)

	// Monitoring dashboard endpoints (mux already registers full /monitoring/* paths)
	monitoringMux := http.NewServeMux()
	monitoringHandler.RegisterRoutes(monitoringMux)
	r.Mount("/monitoring", monitoringMux)

	// Infrastructure-aware health endpoints, distinct from the generic
	// consumer-liveness checks under /q/health. Mount also claims the bare
	// /health path, so /health is registered after it to reach
	// healthCheckHandler.
	k8sHealthMux := http.NewServeMux()
	k8sHealthHandler.RegisterRoutes(k8sHealthMux)
	r.Mount("/health", k8sHealthMux)
	r.Handle("/health", healthCheckHandler)

	return r
}

// standbyServiceWrapper wraps standby.Service to implement lifecycle.Service.
type standbyServiceWrapper struct {
	service *standby.Service
}

func newStandbyServiceWrapper(svc *standby.Service) *standbyServiceWrapper {
	return &standbyServiceWrapper{service: svc}
}

func (s *standbyServiceWrapper) Name() string { return "standby-service" }

func (s *standbyServiceWrapper) Start(ctx context.Context) error {
	if err := s.service.Start(); err != nil {
		return err
	}
	// Block until context cancelled
	<-ctx.Done()
	return nil
}

func (s *standbyServiceWrapper) Stop(ctx context.Context) error {
	s.service.Stop()
	return nil
}

func (s *standbyServiceWrapper) Health() error {
	return nil
}
