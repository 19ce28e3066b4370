// Package miner implements app.Runner for the pipeline stage processes.
package miner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	goversion "github.com/hashicorp/go-version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/solfixes/solfixes/pkg/addrstore"
	"github.com/solfixes/solfixes/pkg/app/httpserver"
	"github.com/solfixes/solfixes/pkg/config"
	"github.com/solfixes/solfixes/pkg/detectors"
	"github.com/solfixes/solfixes/pkg/detlog"
	"github.com/solfixes/solfixes/pkg/ethereum"
	"github.com/solfixes/solfixes/pkg/etherscan"
	"github.com/solfixes/solfixes/pkg/gitcmd"
	"github.com/solfixes/solfixes/pkg/github"
	"github.com/solfixes/solfixes/pkg/miner"
	"github.com/solfixes/solfixes/pkg/pgutil"
	"github.com/solfixes/solfixes/pkg/solidity"
)

const (
	defaultGracefulShutdownTimeout = 30 * time.Second
	defaultHTTPMiddlewareTimeout   = 60 * time.Second
	defaultHTTPReadTimeout         = 15 * time.Second
	defaultHTTPWriteTimeout        = 15 * time.Second
	defaultHTTPIdleTimeout         = 60 * time.Second
)

// Stage names accepted by NewServer.
const (
	StageRepos     = "repos"
	StageIssues    = "issues"
	StagePatches   = "patches"
	StageContracts = "contracts"
)

// stage is one runnable pipeline step.
type stage interface {
	Run(ctx context.Context) error
}

// Server holds configuration for one pipeline stage process.
type Server struct {
	cfg   *config.Config
	stage string

	ready atomic.Bool
}

// NewServer initializes a Server running the named stage.
func NewServer(cfg *config.Config, stage string) *Server {
	return &Server{cfg: cfg, stage: stage}
}

// Run builds the stage's dependencies, starts the monitoring server when
// enabled and drives the stage to completion. It blocks until the stage
// finishes or an OS shutdown signal is received.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger = logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("stage", s.stage))
	logger.Info("Starting dataset miner stage")

	run, cleanup, err := s.buildStage(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	s.ready.Store(true)

	if !cfg.Monitoring.Enabled {
		return finished(run.Run(ctx), logger)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stageErr := make(chan error, 1)
	go func() {
		stageErr <- run.Run(serveCtx)
		cancel()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Monitoring.Host, cfg.Monitoring.MetricsPort)
	shutdownTimeout := cfg.Shutdown.Timeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultGracefulShutdownTimeout
	}

	serveErr := httpserver.ServeAndWait(serveCtx, logger, newHTTPServer(addr, s.newRouter(logger)), shutdownTimeout)
	cancel()

	if err := finished(<-stageErr, logger); err != nil {
		return err
	}
	return serveErr
}

// finished maps a signal-driven stop to a clean exit.
func finished(err error, logger *zap.Logger) error {
	if errors.Is(err, context.Canceled) {
		logger.Info("Stage interrupted, partial tables are resumable")
		return nil
	}
	if err == nil {
		logger.Info("Stage complete")
	}
	return err
}

func (s *Server) buildStage(ctx context.Context, logger *zap.Logger) (stage, func(), error) {
	cfg := s.cfg

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (stage, func(), error) {
		cleanup()
		return nil, nil, err
	}

	switch s.stage {
	case StageRepos:
		return miner.NewRepoDiscovery(cfg, github.NewClient(&cfg.GitHub, logger), gitcmd.New(), logger), cleanup, nil

	case StageIssues:
		return miner.NewIssueCollector(cfg, github.NewClient(&cfg.GitHub, logger), logger), cleanup, nil

	case StagePatches:
		scanner, err := s.newScanner(ctx, s.newToolchain(), logger)
		if err != nil {
			return fail(err)
		}
		return miner.NewPatchMiner(cfg, github.NewClient(&cfg.GitHub, logger), gitcmd.New(), scanner, logger), cleanup, nil

	case StageContracts:
		toolchain := s.newToolchain()
		scanner, err := s.newScanner(ctx, toolchain, logger)
		if err != nil {
			return fail(err)
		}

		db, err := pgutil.ConnectDB(&cfg.Database)
		if err != nil {
			return fail(fmt.Errorf("connect address cache db: %w", err))
		}
		cleanups = append(cleanups, func() { _ = db.Close() })
		logger.Info("Database connection established")

		source := etherscan.NewClient(&cfg.Etherscan, logger)
		cleanups = append(cleanups, source.Close)

		chain, err := ethereum.NewClient(&cfg.Ethereum, logger)
		if err != nil {
			return fail(fmt.Errorf("initialize ethereum client: %w", err))
		}
		cleanups = append(cleanups, chain.Close)

		return miner.NewContractVerifier(cfg, gitcmd.New(), scanner, toolchain, source, chain, addrstore.NewStore(db), logger), cleanup, nil

	default:
		return fail(fmt.Errorf("unknown stage %q", s.stage))
	}
}

func (s *Server) newToolchain() *solidity.Toolchain {
	return solidity.NewToolchain(s.cfg.Detectors.Solc.Binary, s.cfg.Detectors.Solc.SelectBinary)
}

// newScanner assembles the enabled detectors and records each one's tool
// version in its log folder README.
func (s *Server) newScanner(ctx context.Context, toolchain *solidity.Toolchain, logger *zap.Logger) (*miner.Scanner, error) {
	cfg := s.cfg

	minVersion, err := goversion.NewVersion(cfg.Miner.MinSolidityVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum solidity version: %w", err)
	}

	book := detlog.NewBook(cfg.Dataset.LogsDir)

	var dets []detectors.Detector
	if cfg.Detectors.Slither.Enabled {
		slither := detectors.NewSlither(cfg.Detectors.Slither.Binary)
		version, err := slither.Version(ctx)
		if err != nil {
			logger.Warn("Slither version probe failed", zap.Error(err))
			version = "unknown"
		}
		if err := book.WriteReadme(slither.Name(), version, cfg.Detectors.Slither.Commit); err != nil {
			return nil, err
		}
		dets = append(dets, slither)
	}
	if cfg.Detectors.Oyente.Enabled {
		oyente := detectors.NewOyente(cfg.Detectors.Oyente.Python, cfg.Detectors.Oyente.Path)
		if err := book.WriteReadme(oyente.Name(), cfg.Detectors.Oyente.Version, cfg.Detectors.Oyente.Commit); err != nil {
			return nil, err
		}
		dets = append(dets, oyente)
	}
	if len(dets) == 0 {
		return nil, fmt.Errorf("no detectors enabled")
	}

	scanner := miner.NewScanner(dets, toolchain, book, minVersion, logger)
	scanner.SetScanTimeout(cfg.Detectors.Timeout)
	return scanner, nil
}

func (s *Server) newRouter(logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	r.Handle("/metrics", promhttp.Handler())
	logger.Info("Metrics enabled", zap.String("path", "/metrics"))

	return r
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  defaultHTTPReadTimeout,
		WriteTimeout: defaultHTTPWriteTimeout,
		IdleTimeout:  defaultHTTPIdleTimeout,
	}
}
