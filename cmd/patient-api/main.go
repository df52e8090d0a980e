package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/connectmydoc/patient-api/internal/config"
	"github.com/connectmydoc/patient-api/internal/doctor"
	"github.com/connectmydoc/patient-api/internal/handler/health"
	patientHandler "github.com/connectmydoc/patient-api/internal/handler/patient"
	"github.com/connectmydoc/patient-api/internal/handler/prometheus"
	"github.com/connectmydoc/patient-api/internal/middleware"
	"github.com/connectmydoc/patient-api/internal/repository/postgres"
	"github.com/connectmydoc/patient-api/internal/router"
	patientService "github.com/connectmydoc/patient-api/internal/service/patient"
	"github.com/connectmydoc/patient-api/internal/worker"
	"github.com/connectmydoc/patient-api/pkg/logger"
	"github.com/connectmydoc/patient-api/pkg/messaging"
	"github.com/connectmydoc/patient-api/pkg/messaging/redis"
	"github.com/connectmydoc/patient-api/pkg/metrics"
)

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:          "patient-api",
		Short:        "Patient records API",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "Directory containing config.yaml")

	rootCmd.AddCommand(serveCmd(&configDir))
	rootCmd.AddCommand(migrateCmd(&configDir))
	rootCmd.AddCommand(eventsCmd(&configDir))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(dir string) (*config.Config, zerolog.Logger, error) {
	var paths []string
	if dir != "" {
		paths = append(paths, dir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log := logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	return cfg, log, nil
}

func serveCmd(configDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			return runServer(cfg, log)
		},
	}
}

func runServer(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	// The HTTP handler owns the registry; application metrics share it.
	metricsH := prometheus.New(cfg.Server.MetricsNamespace)
	appMetrics := metrics.New(cfg.Server.MetricsNamespace, metricsH.Registry())

	events, closeEvents, err := newPublisher(ctx, cfg, appMetrics, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	// Repositories
	patients := postgres.NewPatientRepository(db, appMetrics)
	addresses := postgres.NewAddressRepository(db, appMetrics)
	guardians := postgres.NewGuardianRepository(db, appMetrics)

	// Services
	doctors := doctor.NewClient(cfg.Doctor, appMetrics, log)
	helper := patientService.NewHelper(doctors, cfg.Patients.MaxImageBytes, time.Now)
	svc := patientService.NewService(patients, addresses, guardians, helper, events, cfg.Patients, log)

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(
		log,
		health.NewHandler(db),
		patientHandler.NewHandler(svc, cfg.Patients.DefaultPageSize),
		metricsH,
		router.RouterConfig{
			RateLimit:      cfg.Server.RateLimitRPS,
			RateBurst:      cfg.Server.RateLimitBurst,
			RequestTimeout: cfg.Server.RequestTimeout,
			MaxBodyBytes:   int64(cfg.Patients.MaxImageBytes) * 2,
			CORSConfig:     middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited properly")
	return nil
}

// newPublisher connects to Redis when a URL is configured. Without one,
// events are dropped.
func newPublisher(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) (messaging.Publisher, func(), error) {
	if cfg.Redis.URL == "" {
		log.Warn().Msg("redis.url not set, patient events are disabled")
		return messaging.NopPublisher{}, func() {}, nil
	}

	broker, err := newBroker(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := broker.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis broker")
		}
	}
	return messaging.NewEventPublisher(broker, cfg.Redis.Channel, m), closeFn, nil
}

func newBroker(ctx context.Context, cfg *config.Config, log zerolog.Logger) (messaging.Broker, error) {
	return redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log)
}

func openDB(ctx context.Context, configDir string) (*sqlx.DB, error) {
	cfg, _, err := loadConfig(configDir)
	if err != nil {
		return nil, err
	}
	return postgres.NewDB(ctx, cfg.Database)
}

func migrateCmd(configDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, *configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := postgres.NewMigrator(db).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, *configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			statuses, err := postgres.NewMigrator(db).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

// newMetricsServer exposes the consumer's metrics and liveness next to
// events tail.
func newMetricsServer(addr string, metricsH *prometheus.Handler) *http.Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", metricsH.Handler())
	engine.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func eventsCmd(configDir *string) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect patient events",
	}

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Log patient events as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			attempts, _ := cmd.Flags().GetInt("retry-attempts")
			delay, _ := cmd.Flags().GetDuration("retry-delay")

			cfg, log, err := loadConfig(*configDir)
			if err != nil {
				return err
			}
			if cfg.Redis.URL == "" {
				return errors.New("redis.url is required to tail events")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			broker, err := newBroker(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer broker.Close()

			metricsH := prometheus.New(cfg.Server.MetricsNamespace)
			appMetrics := metrics.New(cfg.Server.MetricsNamespace, metricsH.Registry())

			if metricsAddr != "" {
				gin.SetMode(gin.ReleaseMode)
				srv := newMetricsServer(metricsAddr, metricsH)
				go func() {
					log.Info().Str("addr", metricsAddr).Msg("serving consumer metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			consumer, err := worker.NewEventConsumer(broker, worker.EventConsumerConfig{
				Channel:       cfg.Redis.Channel,
				RetryAttempts: attempts,
				RetryDelay:    delay,
			}, worker.LogEvent(log), log, appMetrics)
			if err != nil {
				return err
			}
			return consumer.Start(ctx)
		},
	}
	tailCmd.Flags().Int("retry-attempts", 5, "Subscribe attempts before giving up")
	tailCmd.Flags().Duration("retry-delay", 2*time.Second, "Delay between subscribe attempts")
	tailCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9091", "Address serving /metrics and /health/live; empty disables it")
	cmd.AddCommand(tailCmd)

	return cmd
}
