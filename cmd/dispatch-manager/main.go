// cmd/dispatch-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"donor-dispatch/internal/common/aws"
	"donor-dispatch/internal/common/camunda"
	"donor-dispatch/internal/common/config"
	"donor-dispatch/internal/common/database"
	"donor-dispatch/internal/common/logger"
	"donor-dispatch/internal/common/observability"
	"donor-dispatch/internal/dispatch"
	"donor-dispatch/internal/lifecycle"
	"donor-dispatch/internal/matching"
	"donor-dispatch/internal/reconcile"
	"donor-dispatch/internal/requests"
	"donor-dispatch/internal/store/postgres"
	"donor-dispatch/internal/store/search"

	nnd "donor-dispatch/internal/workers/dispatch/notify-nearby-donors"
	dn "donor-dispatch/internal/workers/notification/deliver-notification"
	uns "donor-dispatch/internal/workers/notification/update-notification-status"
	cbr "donor-dispatch/internal/workers/request/create-blood-request"
	urs "donor-dispatch/internal/workers/request/update-request-status"
	rdr "donor-dispatch/internal/workers/response/record-donor-response"
)

var storeRetry = camunda.RetryConfig{
	MaxRetries: 15,
	BaseDelay:  2 * time.Second,
	MaxDelay:   30 * time.Second,
}

type readinessCheck struct {
	name string
	ping func(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting dispatch manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New("dispatch-manager")
	if err != nil {
		zapLog.Warn("observability init failed, telemetry disabled", zap.Error(err))
	}
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Init PostgreSQL with retry ---
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("postgres init failed", zap.Error(err))
	}
	defer pg.Close()

	if err := camunda.Retry(ctx, storeRetry, log, "PostgreSQL connection", pg.Ping); err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	if err := postgres.EnsureSchema(ctx, pg.DB); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	checks := []readinessCheck{{name: "postgres", ping: pg.Ping}}

	requestRepo := postgres.NewRequestRepository(pg.DB)
	notificationRepo := postgres.NewNotificationRepository(pg.DB)
	userRepo := postgres.NewUserRepository(pg.DB)

	// --- Donor source ---
	donorRepo := postgres.NewDonorRepository(pg.DB)
	var donors matching.DonorRepository = donorRepo
	if cfg.Matching.DonorSource == "elasticsearch" {
		esClient, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			zapLog.Fatal("elasticsearch init failed", zap.Error(err))
		}
		if err := camunda.Retry(ctx, storeRetry, log, "Elasticsearch connection", esClient.Ping); err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		index := search.NewDonorIndex(esClient.Client, cfg.Database.Elasticsearch.DonorsIndex, log)
		if err := index.EnsureIndex(ctx); err != nil {
			zapLog.Fatal("donor index setup failed", zap.Error(err))
		}
		if _, err := index.Sync(ctx, donorRepo); err != nil {
			zapLog.Fatal("donor index sync failed", zap.Error(err))
		}
		if cfg.Matching.IndexSyncInterval > 0 {
			go index.RunSync(ctx, donorRepo, time.Duration(cfg.Matching.IndexSyncInterval)*time.Second)
		}
		donors = index
		checks = append(checks, readinessCheck{name: "elasticsearch", ping: esClient.Ping})
		zapLog.Info("Elasticsearch donor index ready", zap.String("index", cfg.Database.Elasticsearch.DonorsIndex))
	}

	// --- Dispatch guard (Redis) ---
	var guard dispatch.Guard
	if cfg.Dispatch.GuardEnabled {
		rdb := database.NewRedis(cfg.Database.Redis)
		defer rdb.Close()
		if err := rdb.Ping(ctx); err != nil {
			zapLog.Warn("redis unreachable, dispatch guard will fail open", zap.Error(err))
		} else {
			zapLog.Info("Redis connected successfully")
		}
		guard = dispatch.NewRedisGuard(rdb.Client, time.Duration(cfg.Dispatch.IdempotencyTTL)*time.Second)
		checks = append(checks, readinessCheck{name: "redis", ping: rdb.Ping})
	}

	// --- Core services ---
	policy := matching.PolicyFromConfig(cfg.Matching)
	searcher := matching.NewSearcher(donors, policy, log)
	builder := dispatch.NewBuilder(policy, cfg.Notifications)
	engine := dispatch.NewEngine(searcher, builder, notificationRepo, log, obs.Tracer())

	schedulerOpts := []dispatch.Option{dispatch.WithObservability(obs)}
	if guard != nil {
		schedulerOpts = append(schedulerOpts, dispatch.WithGuard(guard))
	}
	scheduler := dispatch.NewScheduler(engine, cfg.Dispatch, log, schedulerOpts...)
	scheduler.Start(ctx)

	reconciler := reconcile.NewService(requestRepo, userRepo, notificationRepo, builder, log, obs.Tracer())
	notifications := lifecycle.NewManager(notificationRepo, log)
	requestService := requests.NewService(requestRepo, scheduler, searcher, userRepo, log)

	if cfg.Notifications.CleanupInterval > 0 {
		go notifications.RunCleanup(ctx, time.Duration(cfg.Notifications.CleanupInterval)*time.Second)
	}

	// --- Delivery channels ---
	var email dn.EmailSender
	if cfg.Integrations.AWS.SES.Enabled {
		ses, err := aws.NewSESClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SES.FromEmail)
		if err != nil {
			zapLog.Fatal("SES client init failed", zap.Error(err))
		}
		email = ses
	}
	var sms dn.SMSSender
	if cfg.Integrations.AWS.SNS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SNS.DefaultSMSSenderID)
		if err != nil {
			zapLog.Fatal("SNS client init failed", zap.Error(err))
		}
		sms = sns
	}

	// --- Zeebe job workers ---
	var zeebe *camunda.Client
	var jobWorkers []worker.JobWorker
	if cfg.Camunda.Enabled {
		zeebe, err = camunda.Connect(ctx, cfg.Camunda, camunda.DefaultRetryConfig, log)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		register := func(taskType string, handler worker.JobHandler) {
			w := camunda.StartWorker(zeebe.Zeebe(), taskType, config.GetWorkerConfig(cfg, taskType), handler, log)
			if w != nil {
				jobWorkers = append(jobWorkers, w)
			}
		}

		nndCfg := nnd.LoadConfig()
		nndCfg.Timeout = jobTimeout(cfg, nnd.TaskType, nndCfg.Timeout)
		register(nnd.TaskType, nnd.NewHandler(nndCfg, requestRepo, engine, guard, log).Handle)

		rdrCfg := rdr.LoadConfig()
		rdrCfg.Timeout = jobTimeout(cfg, rdr.TaskType, rdrCfg.Timeout)
		register(rdr.TaskType, rdr.NewHandler(rdrCfg, reconciler, log).Handle)

		unsCfg := uns.LoadConfig()
		unsCfg.Timeout = jobTimeout(cfg, uns.TaskType, unsCfg.Timeout)
		register(uns.TaskType, uns.NewHandler(unsCfg, notifications, log).Handle)

		dnCfg := dn.LoadConfig(cfg.Notifications, cfg.App.BaseURL)
		dnCfg.Timeout = jobTimeout(cfg, dn.TaskType, dnCfg.Timeout)
		register(dn.TaskType, dn.NewHandler(dnCfg, notificationRepo, userRepo, notifications, email, sms, log).Handle)

		cbrCfg := cbr.LoadConfig()
		cbrCfg.Timeout = jobTimeout(cfg, cbr.TaskType, cbrCfg.Timeout)
		register(cbr.TaskType, cbr.NewHandler(cbrCfg, requestService, log).Handle)

		ursCfg := urs.LoadConfig()
		ursCfg.Timeout = jobTimeout(cfg, urs.TaskType, ursCfg.Timeout)
		register(urs.TaskType, urs.NewHandler(ursCfg, requestService, log).Handle)

		zapLog.Info("Job workers registered", zap.Int("count", len(jobWorkers)))
		checks = append(checks, readinessCheck{name: "zeebe", ping: zeebe.HealthCheck})
	}

	// --- Health & Metrics Server ---
	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newMux(checks),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, w := range jobWorkers {
		w.Close()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		zapLog.Warn("Dispatch queue not drained before shutdown", zap.Error(err))
	}
	cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}

	zapLog.Info("Dispatch manager stopped gracefully")
}

func jobTimeout(cfg *config.Config, taskType string, fallback time.Duration) time.Duration {
	if ms := config.GetWorkerConfig(cfg, taskType).Timeout; ms > 0 {
		return config.GetDuration(ms)
	}
	return fallback
}

func newMux(checks []readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.ping(ctx); err != nil {
				deps[c.name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[c.name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not ready"
		}
		writeJSON(w, status, map[string]interface{}{
			"status":       state,
			"dependencies": deps,
			"time":         time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
