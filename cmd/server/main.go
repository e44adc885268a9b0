package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/endpix/internal/auth"
	"github.com/ayush/endpix/internal/config"
	"github.com/ayush/endpix/internal/httpx"
	"github.com/ayush/endpix/internal/imaging"
	"github.com/ayush/endpix/internal/logger"
	"github.com/ayush/endpix/internal/mail"
	"github.com/ayush/endpix/internal/metrics"
	"github.com/ayush/endpix/internal/middleware"
	"github.com/ayush/endpix/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.Setup(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	defer mongoClient.Disconnect(context.Background())
	if err := mongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	mongoStore := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("mongo indexes: %w", err)
	}

	// ── PostgreSQL ───────────────────────────────────────────
	pgPool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return fmt.Errorf("redis connect: %w", err)
	}
	defer rdb.Close()
	resendCooldown := store.NewCooldown(rdb, "otp-resend:", cfg.OTPResendCooldown)

	// ── MinIO ────────────────────────────────────────────────
	minioStore, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MinioPublicURL,
	)
	if err != nil {
		return fmt.Errorf("minio connect: %w", err)
	}

	// ── Metrics ──────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	// ── Services ─────────────────────────────────────────────
	tokens := auth.NewJWT(cfg.JWTSecret, cfg.JWTExpiration)
	authSvc := auth.NewService(auth.Options{
		Staged:          mongoStore,
		Identities:      mongoStore,
		Hasher:          auth.NewBcryptHasher(bcrypt.DefaultCost),
		Tokens:          tokens,
		Mailer:          mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom),
		Cooldown:        resendCooldown,
		Metrics:         rec,
		Logger:          log,
		OTPTTL:          cfg.OTPTTL,
		BlockDisposable: cfg.BlockDisposableEmail,
	})
	imagingSvc := imaging.NewService(
		mongoStore, minioStore,
		imaging.NewGeminiClient(cfg.ImageAIURL, cfg.ImageAIKey, cfg.ImageAIModel),
		pgStore, rec, log,
	)

	authHandler := auth.NewHandler(authSvc, auth.CookieOptions{Secure: cfg.CookieSecure, MaxAge: cfg.JWTExpiration}, log)
	imagingHandler := imaging.NewHandler(imagingSvc, cfg.MaxUploadBytes, log)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		PerMinute:       cfg.RateLimitPerMinute,
		Burst:           cfg.RateLimitPerMinute / 4,
		CleanupInterval: 5 * time.Minute,
	}, log)
	defer limiter.Stop()
	requireAuth := middleware.RequireAuth(tokens, log)

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log, rec))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.ClientURLs,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	r.Route("/users", func(r chi.Router) {
		r.Use(limiter.Middleware())
		r.Post("/register", authHandler.Register)
		r.Post("/verify", authHandler.Verify)
		r.Post("/resendotp", authHandler.ResendOTP)
		r.Post("/login", authHandler.Login)
		r.With(requireAuth).Get("/get-user", authHandler.GetUser)
		r.With(requireAuth).Post("/logout", authHandler.Logout)
	})

	r.Route("/image", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/upload", imagingHandler.Upload)
		r.Post("/ImageEnhancer", imagingHandler.Enhance)
		r.Get("/history", imagingHandler.History)
	})

	// ── Background ───────────────────────────────────────────
	sweeper := auth.NewSweeper(mongoStore, cfg.StagedSweepInterval, rec, log)
	go sweeper.Run(ctx)

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      3 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("endpix listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
