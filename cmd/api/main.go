package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/mfagate/internal/auth"
	"github.com/BradenHooton/mfagate/internal/background"
	"github.com/BradenHooton/mfagate/internal/config"
	"github.com/BradenHooton/mfagate/internal/database"
	"github.com/BradenHooton/mfagate/internal/handlers"
	"github.com/BradenHooton/mfagate/internal/locks"
	middlewareCustom "github.com/BradenHooton/mfagate/internal/middleware"
	"github.com/BradenHooton/mfagate/internal/repositories"
	"github.com/BradenHooton/mfagate/internal/routes"
	"github.com/BradenHooton/mfagate/internal/services"
	pkghttp "github.com/BradenHooton/mfagate/pkg/http"
	pkglogger "github.com/BradenHooton/mfagate/pkg/logger"
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

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(ctx, cfg.Database.DSN(), logger)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize database
	db, err := database.NewConnection(context.Background(), &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repositories.NewUserRepository(db)

	locker, closeLocker, err := newUserLocker(cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeLocker()

	// Token and TOTP managers
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry, cfg.Auth.ResetTokenExpiry)

	totpManager, err := auth.NewTOTPManager(cfg.MFA.TOTPEncryptionKey, cfg.MFA.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	auditLogger := pkglogger.NewAuditLogger(logger)

	emailSender, err := newEmailSender(cfg.Email, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}
	smsSender := newSMSSender(cfg.SMS, cfg.MFA.DeliveryTimeout, logger)

	// Initialize services
	devices := services.NewDeviceTrust(cfg.MFA.TrustedDeviceTTL, cfg.MFA.MaxTrustedDevices)

	challenges := services.NewChallengeService(userRepo, emailSender, smsSender, totpManager, services.ChallengeConfig{
		CodeTTL:         cfg.MFA.CodeTTL,
		DeliveryTimeout: cfg.MFA.DeliveryTimeout,
		Lockout: services.LockoutPolicy{
			MaxAttempts: cfg.MFA.MaxAttempts,
			Cooldown:    cfg.MFA.OTPLockoutCooldown,
			Rollover:    true,
		},
	}, logger)

	authService := services.NewAuthService(userRepo, challenges, devices, tokenManager, locker, timingDelay, logger, auditLogger)
	mfaService := services.NewMFAService(userRepo, totpManager, devices, locker, logger, auditLogger)
	resetService := services.NewPasswordResetService(userRepo, emailSender, tokenManager, devices, locker, services.PasswordResetConfig{
		CodeTTL:         cfg.MFA.ResetCodeTTL,
		DeliveryTimeout: cfg.MFA.DeliveryTimeout,
		Lockout:         services.LockoutPolicy{MaxAttempts: cfg.MFA.MaxAttempts},
	}, logger, auditLogger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, resetService, logger)
	mfaHandler := handlers.NewMFAHandler(mfaService, logger)

	ipResolver := pkghttp.NewClientIPResolver(&pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies})

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipResolver))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:   authHandler,
		MFAHandler:    mfaHandler,
		Sessions:      tokenManager,
		Users:         userRepo,
		Health:        db,
		IPResolver:    ipResolver,
		AuthRateLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AuthRateLimit},
		UserRateLimit: middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.UserRateLimit},
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(userRepo, logger, cfg.Auth.CleanupInterval, cfg.Auth.ResetTokenExpiry)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()
	cleanupCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

// newUserLocker uses Redis when configured so several replicas share locks,
// and an in-process mutex otherwise.
func newUserLocker(cfg config.RedisConfig, logger *slog.Logger) (locks.UserLocker, func(), error) {
	if !cfg.Enabled() {
		logger.Info("redis not configured, using in-process user locks")
		return locks.NewKeyedMutex(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	logger.Info("using redis user locks", slog.String("addr", cfg.Addr))
	return locks.NewRedisLocker(client, cfg.LockTTL, logger), func() { _ = client.Close() }, nil
}

func newEmailSender(cfg config.EmailConfig, logger *slog.Logger) (services.EmailSender, error) {
	if !cfg.Enabled {
		logger.Warn("email delivery disabled, codes will not be sent")
		return services.NewLogEmailService(logger), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return services.NewAWSSESEmailService(ctx, cfg.AWSRegion, cfg.FromAddress, logger)
}

func newSMSSender(cfg config.SMSConfig, timeout time.Duration, logger *slog.Logger) services.SMSSender {
	if !cfg.Enabled {
		logger.Warn("sms delivery disabled, codes will not be sent")
		return services.NewLogSMSService(logger)
	}
	return services.NewHTTPSMSService(cfg.APIBaseURL, cfg.AccountSID, cfg.AuthToken, cfg.FromNumber, timeout, logger)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
