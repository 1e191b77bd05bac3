package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/caregrid/caregrid/internal/config"
	"github.com/caregrid/caregrid/internal/domain/grant"
	"github.com/caregrid/caregrid/internal/domain/messaging"
	"github.com/caregrid/caregrid/internal/domain/organization"
	"github.com/caregrid/caregrid/internal/platform/audit"
	"github.com/caregrid/caregrid/internal/platform/auth"
	"github.com/caregrid/caregrid/internal/platform/db"
	"github.com/caregrid/caregrid/internal/platform/middleware"
	"github.com/caregrid/caregrid/internal/platform/tenant"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caregrid-server",
		Short: "CareGrid multi-tenant healthcare API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(orgCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func orgCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "org",
		Short: "Manage organizations",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a new organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			slug, _ := cmd.Flags().GetString("slug")
			if name == "" || slug == "" {
				return fmt.Errorf("--name and --slug are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
			auditor := audit.NewService(audit.NewStorePG(pool), logger)
			orgSvc := organization.NewService(organization.NewRepositoryPG(pool), auditor, logger)

			// CLI provisioning runs without an authenticated principal.
			org, err := orgSvc.Create(ctx, name, slug, uuid.Nil)
			if err != nil {
				return err
			}
			fmt.Printf("Created organization %s (%s)\n", org.ID, org.Slug)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Organization display name")
	createCmd.Flags().String("slug", "", "URL-safe identifier")
	cmd.AddCommand(createCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode with a shared token signing key")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Platform services
	auditor := audit.NewService(audit.NewStorePG(pool), logger)
	guard := tenant.NewGuard(pool, auditor, logger)

	verifier := auth.NewTokenVerifier(auth.TokenConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
	resolver := auth.NewResolver(verifier, auth.NewIdentityStorePG(pool))

	// Domain services
	orgSvc := organization.NewService(organization.NewRepositoryPG(pool), auditor, logger)
	grantSvc := grant.NewService(grant.NewRepositoryPG(pool), auditor, cfg.GrantCacheTTL, logger)
	msgSvc := messaging.NewService(messaging.NewRepositoryPG(pool), auditor, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Metrics())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Unauthenticated surface
	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", middleware.MetricsHandler())

	// Authenticated surface
	apiV1 := e.Group("/api/v1")
	apiV1.Use(auth.Middleware(resolver))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	organization.NewHandler(orgSvc).RegisterRoutes(apiV1, auth.RequireKind())
	grant.NewHandler(grantSvc).RegisterRoutes(apiV1)
	audit.NewHandler(auditor).RegisterRoutes(apiV1)

	// Messaging runs inside a tenant scope opened per request.
	scoped := apiV1.Group("")
	scoped.Use(tenant.Middleware(tenant.MiddlewareConfig{
		Guard:            guard,
		EnsureActiveOrg:  orgSvc.EnsureActive,
		AuthorizePatient: grantSvc.Authorize,
	}))
	messaging.NewHandler(msgSvc).RegisterRoutes(scoped)

	// Start and shut down cleanly
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
