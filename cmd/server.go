package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"forge-market/internal/account"
	"forge-market/internal/api"
	"forge-market/internal/auth"
	"forge-market/internal/dashboard"
	"forge-market/internal/lifecycle"
	"forge-market/internal/media"
	"forge-market/internal/notifier"
	"forge-market/internal/settlement"
	"forge-market/internal/storage"
)

// AppConfig 应用配置。
type AppConfig struct {
	Server     ServerConfig         `yaml:"server"`
	Database   DatabaseConfig       `yaml:"database"`
	Auth       AuthConfig           `yaml:"auth"`
	Uploads    UploadConfig         `yaml:"uploads"`
	Settlement settlement.Config    `yaml:"settlement"`
	Email      notifier.EmailConfig `yaml:"email"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AuthConfig struct {
	Secret   string `yaml:"secret"`
	TokenTTL string `yaml:"token_ttl"`
}

type UploadConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Printf("load config error: %v", err)
		return
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "forge.db"
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		log.Printf("init store error: %v", err)
		return
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.EnsureBadges(ctx, settlement.DefaultBadges()); err != nil {
		log.Printf("seed badges error: %v", err)
		return
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = "default-secret"
		log.Printf("auth secret missing, using insecure default")
	}
	var tokenTTL time.Duration
	if cfg.Auth.TokenTTL != "" {
		if d, err := time.ParseDuration(cfg.Auth.TokenTTL); err == nil {
			tokenTTL = d
		}
	}
	tokens := auth.NewManager(secret, tokenTTL)

	uploadDir := cfg.Uploads.Dir
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	photos := media.NewSaver(uploadDir, cfg.Uploads.MaxBytes)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	acct := account.NewService(store, tokens)
	jobs := lifecycle.NewService(store)
	dash := dashboard.NewService(store)
	worker := settlement.NewWorker(store, buildNotifier(cfg.Email), cfg.Settlement)

	handler := api.NewHandler(acct, jobs, dash, tokens, photos, uploadDir, logger)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := worker.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("settlement worker stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("server error: %v", err)
	}
}

func loadConfig() (AppConfig, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return AppConfig{}, nil
		}
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func buildNotifier(cfg notifier.EmailConfig) settlement.Notifier {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		log.Printf("email notifier disabled: missing host/port/from")
		return notifier.NewLogNotifier(nil)
	}
	return notifier.NewEmailNotifier(cfg, nil)
}
