package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medisync/internal/app"
	"medisync/internal/cache"
	"medisync/internal/config"
	"medisync/internal/db"
	"medisync/internal/logging"
	"medisync/internal/metrics"
	"medisync/internal/notify"
	"medisync/internal/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medisync",
		Short: "MediSync appointment scheduling API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := logging.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	var rules *cache.RuleCache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		rules = cache.NewRuleCache(client, cfg.RuleCacheTTL)
		logger.Info("rule cache enabled", zap.Duration("ttl", cfg.RuleCacheTTL))
	}

	var notifier *notify.Notifier
	if cfg.EmailEnabled() {
		sender, err := notify.NewSESSenderFromConfig(ctx, notify.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if err != nil {
			return err
		}
		notifier = notify.NewNotifier(sender, logger)
		logger.Info("appointment emails enabled", zap.String("from", cfg.SESFromEmail))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	a := &app.App{
		Repo:      app.NewStore(pool),
		Tokens:    app.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Rules:     rules,
		Metrics:   m,
		Notifier:  notifier,
		Calendar:  app.NewCalendar(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL, loc),
		Limiter:   app.NewLoginLimiter(cfg.LoginRatePerMin, logger),
		Logger:    logger,
		MatchMode: cfg.MatchMode(),
		Location:  loc,
	}
	if a.Calendar == nil {
		logger.Info("google calendar disabled")
	}

	router := server.NewRouter(logger, m, cfg.CORSOrigins)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	a.Routes(router)

	logger.Info("starting medisync",
		zap.String("env", cfg.Env),
		zap.String("match_mode", cfg.MatchMode().String()),
		zap.String("timezone", loc.String()),
	)
	return server.Run(ctx, router, ":"+cfg.Port, logger)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(fn func(*db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		mg, err := db.NewMigrator(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer mg.Close()
		if err := fn(mg); err != nil {
			return err
		}
		version, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
		return nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *db.Migrator) error { return mg.Up() })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(mg *db.Migrator) error { return mg.Down() })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the schema as VERSION without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withMigrator(func(mg *db.Migrator) error { return mg.Force(v) })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(*db.Migrator) error { return nil })
		},
	})

	return cmd
}
