//	@title			Our Little Corner API
//	@version		1.0
//	@description	Backend for Our Little Corner, a private space for couples to share photos, videos and notes.
//
//	@host		localhost:8080
//	@BasePath	/api
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/twofold/corner/internal/auth"
	"github.com/twofold/corner/internal/comment"
	"github.com/twofold/corner/internal/config"
	"github.com/twofold/corner/internal/db"
	"github.com/twofold/corner/internal/locket"
	"github.com/twofold/corner/internal/logging"
	"github.com/twofold/corner/internal/mail"
	"github.com/twofold/corner/internal/media"
	"github.com/twofold/corner/internal/memory"
	appMiddleware "github.com/twofold/corner/internal/middleware"
	"github.com/twofold/corner/internal/storage"
	"github.com/twofold/corner/internal/upload"
	"github.com/twofold/corner/internal/user"

	_ "github.com/twofold/corner/docs/swagger"
)

const (
	uploadBurst   = 10
	authPerMinute = 5
	authBurst     = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is configured from cfg, so fall back to a bare one.
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logging.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}

	observer, err := storage.NewPrometheusObserver(cfg.Storage.ProjectID, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal("metrics registration failed", zap.Error(err))
	}
	gateway, err := storage.NewMinioGateway(ctx, cfg.Storage, observer, log)
	if err != nil {
		log.Fatal("object storage init failed", zap.Error(err))
	}

	mailer := mail.NewLogMailer(log, !cfg.IsProduction())

	// Wire dependencies: repository → service → handler
	userRepo := user.NewRepository(pool)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, userSvc, mailer, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, cfg.IsProduction())

	locketRepo := locket.NewRepository(pool)

	mediaRepo := media.NewRepository(pool)
	mediaSvc := media.NewService(mediaRepo, locketRepo, gateway, cfg.DownloadURLTTL, log)
	mediaHandler := media.NewHandler(mediaSvc)

	memoryRepo := memory.NewRepository(pool)
	memorySvc := memory.NewService(memoryRepo, locketRepo, mediaSvc, log)
	memoryHandler := memory.NewHandler(memorySvc)

	locketSvc := locket.NewService(locketRepo, memorySvc, mailer, log)
	locketHandler := locket.NewHandler(locketSvc)

	commentRepo := comment.NewRepository(pool)
	commentSvc := comment.NewService(commentRepo, locketRepo)
	commentHandler := comment.NewHandler(commentSvc)

	uploadSvc := upload.NewService(gateway, cfg.UploadURLTTL, log)
	uploadHandler := upload.NewHandler(uploadSvc)

	uploadLimiter := appMiddleware.NewRateLimiter(cfg.RateLimitPerMinute, uploadBurst)
	authLimiter := appMiddleware.NewRateLimiter(authPerMinute, authBurst)
	go uploadLimiter.Run(ctx)
	go authLimiter.Run(ctx)

	requireAuth := appMiddleware.RequireAuth(cfg.JWTSecret)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		// Public auth endpoints
		r.Route("/auth", func(r chi.Router) {
			r.With(authLimiter.Handler).Post("/code/send", authHandler.SendCode)
			r.With(authLimiter.Handler).Post("/code/verify", authHandler.VerifyCode)
			r.Post("/logout", authHandler.Logout)
		})

		// Protected endpoints
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/users/me", userHandler.GetMe)
			r.Patch("/users/me", userHandler.UpdateProfile)

			r.With(uploadLimiter.Handler).Post("/upload", uploadHandler.CreateSession)

			r.Route("/media", func(r chi.Router) {
				r.Post("/", mediaHandler.Register)
				r.Get("/{id}", mediaHandler.Get)
				r.Patch("/{id}", mediaHandler.UpdateCaption)
				r.Delete("/{id}", mediaHandler.Delete)
				r.Get("/{id}/url", mediaHandler.DownloadURL)
			})

			r.Route("/memory-groups", func(r chi.Router) {
				r.Post("/", memoryHandler.Create)
				r.Get("/{id}", memoryHandler.Get)
				r.Patch("/{id}", memoryHandler.Update)
				r.Delete("/{id}", memoryHandler.Delete)
				r.Get("/{id}/comments", commentHandler.List)
				r.Post("/{id}/comments", commentHandler.Add)
				r.Get("/{id}/reactions", commentHandler.Reactions)
				r.Put("/{id}/reactions/{emoji}", commentHandler.React)
				r.Delete("/{id}/reactions/{emoji}", commentHandler.Unreact)
			})

			r.Delete("/comments/{id}", commentHandler.Delete)

			r.Route("/lockets", func(r chi.Router) {
				r.Post("/", locketHandler.Create)
				r.Get("/", locketHandler.List)
				r.Get("/{id}", locketHandler.Get)
				r.Get("/{id}/memories", memoryHandler.List)
				r.Post("/{id}/pinned", locketHandler.Pin)
				r.Get("/{id}/pinned", locketHandler.Pinned)
				r.Delete("/{id}/pinned", locketHandler.Unpin)
				r.Get("/{id}/spotlight", locketHandler.Spotlight)
				r.Post("/{id}/invites", locketHandler.Invite)
			})

			r.Post("/invites/accept", locketHandler.AcceptInvite)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.AppEnv),
			zap.String("storage_protocol", cfg.Storage.Protocol),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
		os.Exit(1)
	}

	log.Info("server stopped")
}
