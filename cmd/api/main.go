package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/passcode/internal/auth"
	"github.com/BradenHooton/passcode/internal/background"
	"github.com/BradenHooton/passcode/internal/config"
	"github.com/BradenHooton/passcode/internal/database"
	"github.com/BradenHooton/passcode/internal/handlers"
	middlewareCustom "github.com/BradenHooton/passcode/internal/middleware"
	"github.com/BradenHooton/passcode/internal/notify"
	"github.com/BradenHooton/passcode/internal/repositories"
	"github.com/BradenHooton/passcode/internal/routes"
	"github.com/BradenHooton/passcode/internal/services"
	"github.com/BradenHooton/passcode/migrations"
	pkgauth "github.com/BradenHooton/passcode/pkg/auth"
	"github.com/BradenHooton/passcode/pkg/clock"
	pkghttp "github.com/BradenHooton/passcode/pkg/http"
	pkglogger "github.com/BradenHooton/passcode/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Database.Driver),
		slog.Any("email_providers", cfg.Email.Providers),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	repo, closeStore, err := newCodeRepository(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize code store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	notifier, err := newNotifier(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to initialize email delivery", slog.Any("error", err))
		os.Exit(1)
	}

	hasher, err := pkgauth.NewCodeHasher(cfg.OTP.CodePepper)
	if err != nil {
		logger.Error("failed to initialize code hasher", slog.Any("error", err))
		os.Exit(1)
	}

	policy := services.OTPPolicy{
		CodeTTL:     cfg.OTP.CodeTTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Cooldown:    cfg.OTP.Cooldown,
		HourlyLimit: cfg.OTP.HourlyLimit,
		DailyLimit:  cfg.OTP.DailyLimit,
	}
	clk := clock.System{}
	auditLogger := pkglogger.NewAuditLogger(logger)

	// Initialize services
	otpService := services.NewOTPService(
		services.NewRateLimitService(repo, policy, logger),
		services.NewVerifier(repo, hasher, policy.MaxAttempts, logger),
		pkgauth.NewCodeGenerator(policy.CodeTTL),
		hasher,
		notifier,
		clk,
		logger,
		auditLogger,
	)
	grantIssuer := auth.NewGrantIssuer(cfg.Grant.Secret, cfg.Grant.TTL, clk)

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid trusted proxy configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	otpHandler := handlers.NewOTPHandler(
		otpService,
		grantIssuer,
		auth.NewResponseFloor(cfg.OTP.VerifyMinDuration, cfg.OTP.VerifyJitter),
		ipConfig,
		logger,
	)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	// Register routes
	rateLimitConfig := middlewareCustom.DefaultOTPRateLimit(ipConfig)
	rateLimitConfig.RequestsPerMinute = cfg.Server.IPRequestsPerMinute
	routes.RegisterRoutes(router, otpHandler, repo, rateLimitConfig, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(repo, clk, cfg.OTP.Retention, logger, cfg.OTP.CleanupInterval)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// newCodeRepository opens the configured store and applies migrations when enabled
func newCodeRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories.CodeRepository, func(), error) {
	if cfg.Database.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory code store; records are lost on restart and not shared between instances")
		return repositories.NewMemoryOTPRepository(), func() {}, nil
	}

	db, err := database.NewConnection(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	return repositories.NewOTPRepository(db), db.Close, nil
}

// newNotifier builds the delivery chain in the configured provider order
func newNotifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*notify.FallbackNotifier, error) {
	providers := make([]notify.Provider, 0, len(cfg.Email.Providers))

	for _, name := range cfg.Email.Providers {
		switch name {
		case config.EmailProviderSES:
			ses, err := notify.NewSESNotifier(ctx, cfg.Email.AWSRegion, cfg.Email.From, logger)
			if err != nil {
				return nil, err
			}
			providers = append(providers, ses)
		case config.EmailProviderSMTP:
			providers = append(providers, notify.NewSMTPNotifier(
				cfg.Email.SMTPHost,
				cfg.Email.SMTPPort,
				cfg.Email.SMTPUser,
				cfg.Email.SMTPPassword,
				cfg.Email.From,
				logger,
			))
		case config.EmailProviderResend:
			providers = append(providers, notify.NewResendNotifier(cfg.Email.ResendAPIKey, cfg.Email.From, logger))
		case config.EmailProviderLog:
			providers = append(providers, notify.NewLogNotifier(logger))
		default:
			return nil, fmt.Errorf("unknown email provider %q", name)
		}
	}

	return notify.NewFallbackNotifier(providers, cfg.Email.SendTimeout, logger), nil
}
