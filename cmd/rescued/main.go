// Command rescued runs the rescue dispatch HTTP service.
//
//	@title						Rescue Dispatch API
//	@version					1.0
//	@description				Interaction API for rescue requests: submit, claim and resolve cases announced on the chat platform.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	UserID
//	@in							header
//	@name						X-User-ID
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/tbourn/go-rescue-dispatch/internal/config"
	httpapi "github.com/tbourn/go-rescue-dispatch/internal/http"
	"github.com/tbourn/go-rescue-dispatch/internal/notify"
	"github.com/tbourn/go-rescue-dispatch/internal/observability"
	"github.com/tbourn/go-rescue-dispatch/internal/repo"
	"github.com/tbourn/go-rescue-dispatch/internal/services"
	"github.com/tbourn/go-rescue-dispatch/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		envFiles    []string
		port        string
		showVersion bool
	)
	flags := pflag.NewFlagSet("rescued", pflag.ContinueOnError)
	flags.StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load (existing environment wins)")
	flags.StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	flags.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if showVersion {
		fmt.Println("rescued", version)
		return nil
	}

	loaded, err := sysutil.LoadEnvFiles(envFiles...)
	if err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Port = sysutil.FirstNonEmpty(port, cfg.Port)

	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)
	log.Info().Strs("env_files", loaded).Str("version", version).Msg("starting rescue dispatch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	primary, err := newPrimaryNotifier(cfg.Notifier)
	if err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	var hub *notify.Hub
	notifier := primary
	if cfg.WS.Enabled {
		hub = notify.NewHub(cfg.WS.AllowedOrigins)
		notifier = notify.NewMulti(primary, hub)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Store:    repo.NewCaseStore(),
		Notifier: notifier,
		Hub:      hub,
	}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, repo.IdempotencyRepo{DB: db, TTL: cfg.IdempotencyTTL}, time.Hour)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if hub != nil {
		// hijacked feed connections are not tracked by srv.Shutdown
		hub.Close()
	}
	err = observability.ShutdownAll(shutdownCtx,
		otelShutdown,
		closeDB(db),
		srv.Shutdown,
	)
	if err != nil {
		log.Error().Err(err).Msg("shutdown")
		return err
	}
	log.Info().Msg("bye")
	return nil
}

// newPrimaryNotifier returns the chat bridge client when a webhook is
// configured and a logging notifier otherwise.
func newPrimaryNotifier(cfg config.NotifierConfig) (services.Notifier, error) {
	if cfg.WebhookURL == "" {
		log.Warn().Msg("NOTIFIER_WEBHOOK_URL not set; lifecycle commands are only logged")
		return notify.NewLogNotifier(nil), nil
	}
	return notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:             cfg.WebhookURL,
		ChannelID:       cfg.AnnounceChannelID,
		ResponderRoleID: cfg.ResponderRoleID,
		Timeout:         cfg.Timeout,
		RPS:             cfg.RPS,
		Burst:           cfg.Burst,
		MaxFailures:     cfg.MaxFailures,
		OpenTimeout:     cfg.OpenTimeout,
	}, nil)
}

func purgeIdempotency(ctx context.Context, r repo.IdempotencyRepo, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := r.Purge(ctx, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("idempotency records purged")
			}
		}
	}
}

func closeDB(db *gorm.DB) observability.ShutdownFunc {
	return func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}
