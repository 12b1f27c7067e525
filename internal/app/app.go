package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livemerce/pointsledger/internal/config"
	"github.com/livemerce/pointsledger/internal/db"
	"github.com/livemerce/pointsledger/internal/events"
	"github.com/livemerce/pointsledger/internal/expiry"
	adminapi "github.com/livemerce/pointsledger/internal/http/api/admin"
	"github.com/livemerce/pointsledger/internal/ledger"
	"github.com/livemerce/pointsledger/internal/models"
	"github.com/livemerce/pointsledger/internal/security"
	"github.com/livemerce/pointsledger/internal/settings"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs schema migrations.
func Migrate(configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the points ledger service: database, event bridge,
// expiration runner and admin HTTP API. It blocks until ctx is cancelled.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSeed := ensureBootstrapAdmin(ctx, conn, cfg.Auth); errSeed != nil {
		return errSeed
	}

	provider := settings.NewProvider(conn)
	ledgerSvc := ledger.NewService(conn)

	publisher, rdb := buildPublisher(conn, cfg.Redis)
	bridge := events.NewBridge(conn, ledgerSvc, provider, publisher)
	if rdb != nil {
		events.NewSubscriber(rdb, bridge).Start(ctx)
	}

	runner := expiry.NewRunner(conn, ledgerSvc, provider, publisher)
	runner.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	adminapi.RegisterAdminRoutes(engine, conn, cfg.Auth, ledgerSvc, provider)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: engine}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("points ledger listening on %s", cfg.Server.Addr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("http shutdown failed")
		}
		if rdb != nil {
			if errClose := rdb.Close(); errClose != nil {
				log.WithError(errClose).Warn("redis close failed")
			}
		}
		return <-errCh
	case errServe := <-errCh:
		return errServe
	}
}

// buildPublisher composes the outbox publisher with the Redis publisher
// when an event bus address is configured.
func buildPublisher(conn *gorm.DB, cfg config.RedisConfig) (events.Publisher, *redis.Client) {
	outbox := events.NewOutboxPublisher(conn)
	if strings.TrimSpace(cfg.Addr) == "" {
		log.Info("redis not configured, events recorded to outbox only")
		return outbox, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return events.NewMultiPublisher(outbox, events.NewRedisPublisher(rdb)), rdb
}

// ensureBootstrapAdmin seeds the initial admin account when configured and
// no admin exists yet.
func ensureBootstrapAdmin(ctx context.Context, conn *gorm.DB, cfg config.AuthConfig) error {
	username := strings.TrimSpace(cfg.BootstrapUsername)
	password := strings.TrimSpace(cfg.BootstrapPassword)
	if username == "" || password == "" {
		return nil
	}

	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash bootstrap password: %w", errHash)
	}
	admin := models.Admin{Username: username, Password: hash, Active: true}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("seed bootstrap admin: %w", errCreate)
	}
	log.Infof("seeded bootstrap admin %q", username)
	return nil
}
