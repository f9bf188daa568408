package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/diaspora-enterprise/website/pkg/api"
	"github.com/diaspora-enterprise/website/pkg/audit"
	"github.com/diaspora-enterprise/website/pkg/config"
	"github.com/diaspora-enterprise/website/pkg/contact"
	"github.com/diaspora-enterprise/website/pkg/identity"
	"github.com/diaspora-enterprise/website/pkg/mail"
	"github.com/diaspora-enterprise/website/pkg/version"
)

func main() {
	var (
		debug      bool
		configPath string
	)
	flag.BoolVar(&debug, "debug", false, "enable debug level logging")
	flag.StringVar(&configPath, "config", "", "path to the config file")
	flag.Parse()

	zl := setupLogger(debug)
	log := zl.Sugar()
	log.With("version", version.Version).Info("Starting website backend")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading website config: %v", err)
	}
	cfg.Defaults()

	if debug {
		log.Infof("%#v", cfg)
	}

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			log.Fatalf("Error creating database directory: %v", err)
		}
	}
	store, err := contact.NewStore(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Error opening contact store: %v", err)
	}
	defer store.Close()

	sinks := []audit.Sink{audit.NewLogSink(zl)}
	if len(cfg.Audit.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Audit, zl)
		if err != nil {
			log.Fatalf("Error creating Kafka audit sink: %v", err)
		}
		sinks = append(sinks, kafkaSink)
	}
	auditSvc := audit.NewService(sinks, 256, log)
	auditSvc.Start()

	identityOpts := []identity.Option{identity.WithAuditor(auditSvc)}
	if cfg.Identity.TokenURL != "" {
		identityOpts = append(identityOpts, identity.WithTokenURL(cfg.Identity.TokenURL))
	}
	if len(cfg.Identity.Scopes) > 0 {
		identityOpts = append(identityOpts, identity.WithScopes(cfg.Identity.Scopes))
	}
	tokens := identity.NewProvider(identity.Credentials{
		ClientID:     cfg.Identity.ClientID,
		ClientSecret: cfg.Identity.ClientSecret,
		TenantID:     cfg.Identity.TenantID,
	}, log, identityOpts...)

	sender := mail.NewSender(cfg, tokens, log)
	queue := mail.NewQueue(sender, log, cfg.Mail.RetryCount, cfg.Mail.RetryBackoffMs, cfg.Mail.QueueSize,
		mail.WithQueueAuditor(auditSvc))
	queue.Start()

	auth := api.NewAuth(log, cfg, auditSvc)
	server := api.NewServer(zl, cfg, debug)
	err = server.RegisterAll([]api.APIController{
		api.NewContactController(store, queue, auditSvc, cfg, log),
		api.NewAdminController(store, sender, auth, auditSvc, cfg, log),
	})
	if err != nil {
		log.Fatalf("Error registering API controllers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		log.Errorw("HTTP server stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Warnw("Mail queue did not drain in time", "error", err)
	}
	if err := auditSvc.Stop(shutdownCtx); err != nil {
		log.Warnw("Audit service did not flush in time", "error", err)
	}
	log.Info("Shutdown complete")
}

func setupLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		stdlog.Fatalf("failed to set up logger: %v", err)
	}
	return logger
}
