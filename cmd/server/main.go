package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afterwords-app/afterwords/internal/activity"
	"github.com/afterwords-app/afterwords/internal/auth"
	"github.com/afterwords-app/afterwords/internal/checks"
	"github.com/afterwords-app/afterwords/internal/config"
	"github.com/afterwords-app/afterwords/internal/crypto"
	"github.com/afterwords-app/afterwords/internal/database"
	"github.com/afterwords-app/afterwords/internal/delivery"
	"github.com/afterwords-app/afterwords/internal/health"
	"github.com/afterwords-app/afterwords/internal/messages"
	"github.com/afterwords-app/afterwords/internal/models"
	"github.com/afterwords-app/afterwords/internal/notify"
	"github.com/afterwords-app/afterwords/internal/trigger"
	"github.com/afterwords-app/afterwords/internal/worker"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

func main() {
	mode := flag.String("mode", "all", "run mode: serve, worker, or all")
	flag.Parse()

	cfg := config.Load()
	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if cfg.EncryptionKey != "" {
		if err := models.InitEncryption(cfg.EncryptionKey); err != nil {
			log.Fatalf("encryption init failed: %v", err)
		}
	} else {
		log.Println("WARNING: ENCRYPTION_KEY not set. Message bodies will be stored in plaintext.")
	}

	if cfg.SeedDevData && cfg.Env == "development" {
		if err := database.SeedDevData(db); err != nil {
			log.Printf("WARNING: dev seed failed: %v", err)
		}
	}

	signer, err := crypto.NewLinkSigner(cfg.LinkSigningKey)
	if err != nil {
		log.Fatalf("link signer init failed: %v", err)
	}

	var mailer notify.Mailer
	switch cfg.MailTransport {
	case "smtp":
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	default:
		mailer = notify.NewWebhookMailer(cfg.MailWebhookURL, cfg.MailSecret, cfg.MailStubMode)
	}

	tracker := activity.NewTracker(db, logger, cfg.ActivityDebounce)
	checkSvc := checks.NewService(db, mailer, logger, cfg.BaseURL)
	dispatcher := delivery.NewDispatcher(db, mailer, signer, logger, cfg.BaseURL)
	evaluator := trigger.NewEvaluator(db, checkSvc, dispatcher, logger)

	if err := worker.InitClient(cfg.RedisURL); err != nil {
		log.Fatalf("task client init failed: %v", err)
	}
	defer worker.CloseClient()

	runWorker := *mode == "worker" || *mode == "all"
	runServer := *mode == "serve" || *mode == "all"
	if !runWorker && !runServer {
		log.Fatalf("unknown mode %q (want serve, worker, or all)", *mode)
	}

	if runWorker {
		stopWorker, err := worker.Start(cfg, evaluator, dispatcher)
		if err != nil {
			log.Fatalf("worker start failed: %v", err)
		}
		defer stopWorker()

		stopScheduler, err := worker.StartScheduler(cfg)
		if err != nil {
			log.Fatalf("scheduler start failed: %v", err)
		}
		defer stopScheduler()
	}

	if !runServer {
		// Worker-only: block until a shutdown signal.
		waitForSignal()
		return
	}

	auth.InitProviders(cfg)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions("afterwords_session", store))

	router.GET("/health", gin.WrapF(health.Handler))

	router.GET("/auth/login", auth.HandleLogin)
	router.GET("/auth/callback", auth.HandleCallback(db, tracker, checkSvc))
	router.GET("/auth/logout", auth.HandleLogout)

	// Public recipient-facing endpoints
	router.GET("/view/:token", messages.ViewMessageHandler(db, signer))
	router.GET("/verify/:token", messages.VerifyRecipientHandler(db))

	api := router.Group("/api", auth.RequireAuth(), tracker.Middleware())
	{
		api.POST("/messages", messages.CreateMessageHandler(db))
		api.GET("/messages", messages.ListMessagesHandler(db))
		api.GET("/messages/:id", messages.GetMessageHandler(db))
		api.PUT("/messages/:id", messages.UpdateMessageHandler(db))
		api.DELETE("/messages/:id", messages.DeleteMessageHandler(db))
		api.POST("/messages/:id/release", messages.ReleaseMessageHandler(db))

		api.POST("/recipients", messages.CreateRecipientHandler(db, mailer, logger, cfg.BaseURL))
		api.GET("/recipients", messages.ListRecipientsHandler(db))
		api.DELETE("/recipients/:id", messages.DeleteRecipientHandler(db))
		api.POST("/recipients/:id/verification", messages.ResendVerificationHandler(db, mailer, logger, cfg.BaseURL))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on :%s (mode=%s)", cfg.Port, *mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	waitForSignal()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down")
}
