// Package dispatcher wires the job dispatcher process together.
package dispatcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/api"
	apphttp "github.com/chainsafe/contract-jobs/pkg/app/http"
	"github.com/chainsafe/contract-jobs/pkg/assets"
	"github.com/chainsafe/contract-jobs/pkg/auth"
	"github.com/chainsafe/contract-jobs/pkg/chain"
	"github.com/chainsafe/contract-jobs/pkg/config"
	jobs "github.com/chainsafe/contract-jobs/pkg/dispatcher"
	"github.com/chainsafe/contract-jobs/pkg/orchestrator"
	"github.com/chainsafe/contract-jobs/pkg/pgutil"
	"github.com/chainsafe/contract-jobs/pkg/pipeline"
	"github.com/chainsafe/contract-jobs/pkg/reconciler"
	"github.com/chainsafe/contract-jobs/pkg/store"
)

// Server holds cfg to init the dispatcher.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new dispatcher server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("dispatcher config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting job dispatcher",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Queue.Workers),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	st := store.NewStore(db)

	registry, err := chain.DialRegistry(ctx, cfg.Networks, logger)
	if err != nil {
		return fmt.Errorf("dial networks: %w", err)
	}
	defer registry.Close()

	logger.Info("Connected to networks", zap.Strings("networks", registry.Networks()))

	opts, err := s.orchestratorOptions(logger)
	if err != nil {
		return err
	}

	txPipeline := pipeline.New(registry, st, cfg.Pipeline, logger)
	svc := orchestrator.NewLog(
		orchestrator.New(st, txPipeline, registry, cfg.Keys.Passphrase(), logger, opts...),
		logger,
	)

	d := jobs.New(st, cfg.Queue, logger)
	orchestrator.Register(d, svc)
	// stopped explicitly below so in-flight jobs finish before the DB closes
	d.Start(ctx)

	rec := reconciler.New(st, txPipeline, registry, cfg.Reconciliation, logger)
	stopReconcile := s.startPeriodicReconcile(rec, logger)
	defer stopReconcile()

	validator := auth.NewJWTValidator(cfg.Auth)
	if validator.IsConfigured() {
		logger.Info("Bearer token authentication enabled", zap.String("jwks_url", cfg.Auth.JWKSURL))
	}
	router := api.NewRouter(cfg, d, st, validator, logger)

	err = apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)

	stopReconcile()
	d.Stop()

	return err
}

func (s *Server) orchestratorOptions(logger *zap.Logger) ([]orchestrator.Option, error) {
	if s.cfg.Assets.APIURL == "" {
		logger.Info("IPFS uploads disabled, metadata images are stored as given")
		return nil, nil
	}
	uploader, err := assets.NewIPFS(s.cfg.Assets, logger)
	if err != nil {
		return nil, fmt.Errorf("create ipfs uploader: %w", err)
	}
	return []orchestrator.Option{orchestrator.WithUploader(uploader)}, nil
}

func (s *Server) startPeriodicReconcile(rec *reconciler.Reconciler, logger *zap.Logger) func() {
	if s.cfg.Reconciliation.Interval <= 0 {
		logger.Warn("Periodic reconciliation disabled, PENDING transactions will not be settled")
		return func() {}
	}
	rec.StartPeriodicReconciliation(s.cfg.Reconciliation.Interval)
	return rec.Stop
}
