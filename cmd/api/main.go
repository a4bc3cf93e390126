package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/storehub/server/internal/auth"
	"github.com/storehub/server/internal/config"
	"github.com/storehub/server/internal/db"
	httprouter "github.com/storehub/server/internal/http"
	"github.com/storehub/server/internal/http/handlers"
	"github.com/storehub/server/internal/mail"
	"github.com/storehub/server/internal/store"
)

func main() {
	// Load .env from CWD; real env vars take precedence
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// Select the record store backend
	var recordStore store.RecordStore
	if cfg.MemoryStore {
		log.Println("Using in-memory record store (data is not persisted)")
		recordStore = store.NewMemory()
	} else {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		if err := runMigrations(database); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		recordStore = store.NewPostgres(database)
	}

	// Outbound mail: SMTP when configured, logged otherwise
	var mailer mail.Mailer
	if cfg.SMTPConfigured() {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom)
	} else {
		log.Println("SMTP not configured, email bodies will be logged")
		mailer = mail.LogMailer{}
	}

	// Initialize auth services
	tokenService := auth.NewTokenService(cfg.SecretKey, cfg.AccessTTL, cfg.RefreshTTL, cfg.ResetTTL)
	otpEngine := auth.NewOtpEngine(recordStore, auth.OtpConfig{
		Length:      cfg.OTPLength,
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
		Cooldown:    cfg.OTPCooldown,
	})
	authService := auth.NewService(recordStore, otpEngine, tokenService, mailer, cfg.FrontendURL, cfg.InviteTTL, cfg.OTPTTL)

	// Initialize handlers
	h := httprouter.Handlers{
		Auth:      handlers.NewAuthHandler(authService, recordStore),
		Users:     handlers.NewUserHandler(recordStore),
		Branches:  handlers.NewBranchHandler(recordStore),
		Products:  handlers.NewProductHandler(recordStore),
		Dashboard: handlers.NewDashboardHandler(recordStore),
	}

	router := httprouter.NewRouter(h, tokenService, recordStore)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repository root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
