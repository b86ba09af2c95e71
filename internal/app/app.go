// v0
// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cyclesense/analysis/internal/config"
	"cyclesense/analysis/internal/dataset"
	"cyclesense/analysis/internal/httpserver"
	"cyclesense/analysis/internal/ingest"
	"cyclesense/analysis/internal/journal"
	"cyclesense/analysis/internal/metrics"
	"cyclesense/analysis/internal/policy"
	"cyclesense/analysis/internal/similarity"
)

// Application wires configuration, logging, storage, the optional journal
// consumer and the HTTP server of the analysis service.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	logFile  *os.File
	server   *http.Server
	listener net.Listener
	health   *httpserver.HealthState
	journal  *journal.Store
	consumer *ingest.JournalConsumer
	metrics  *metrics.Metrics
}

// New prepares a fully wired service instance. Missing dataset stats are
// not fatal: the analysis endpoints answer 503 until the artifact is built
// and the service restarted.
func New(cfg config.Config) (*Application, error) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return nil, errors.New("listen address cannot be empty")
	}
	logPath := filepath.Clean(cfg.LogFilePath)
	if logPath == "" || logPath == "." {
		return nil, errors.New("log file path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	lf, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger := newLogger(lf)

	pol, err := loadPolicy(cfg)
	if err != nil {
		_ = lf.Close()
		return nil, err
	}
	logger.Info("policy_loaded",
		slog.String("path", cfg.PolicyPath),
		slog.String("default_profile", pol.DefaultProfile),
		slog.Any("profiles", pol.Names()),
		slog.Int("comparator_moderate", pol.Comparator.Moderate),
		slog.Int("comparator_high", pol.Comparator.High),
	)

	m := metrics.New()
	comparator := similarity.NewComparator(loadStats(logger, cfg.StatsPath), pol.Comparator)
	m.SetStatsLoaded(comparator.Available())

	store, err := journal.Open(cfg.JournalPath, logger.With(slog.String("component", "journal")))
	if err != nil {
		_ = lf.Close()
		return nil, fmt.Errorf("journal init: %w", err)
	}

	var consumer *ingest.JournalConsumer
	if cfg.IngestEnabled() {
		ingestLogger := logger.With(slog.String("component", "journal_consumer"))
		consumer, err = ingest.NewJournalConsumer(ingest.Config{
			Brokers:        cfg.KafkaBrokers,
			Topic:          cfg.JournalTopic,
			GroupID:        cfg.JournalGroupID,
			PollTimeout:    cfg.JournalPollTimeout,
			BreakerEnabled: cfg.BreakerEnabled,
			Breaker: ingest.BreakerConfig{
				MaxFailures:  cfg.BreakerMaxFailures,
				ResetTimeout: cfg.BreakerOpenTimeout,
			},
		}, store, m, ingestLogger)
		if err != nil {
			_ = store.Close()
			_ = lf.Close()
			return nil, fmt.Errorf("journal consumer init: %w", err)
		}
		ingestLogger.Info("journal_consumer_config",
			slog.String("topic", cfg.JournalTopic),
			slog.String("group", cfg.JournalGroupID),
			slog.String("brokers", strings.Join(cfg.KafkaBrokers, ",")),
			slog.Duration("pollTimeout", cfg.JournalPollTimeout),
		)
	} else {
		logger.Info("journal_consumer_disabled")
	}

	health := httpserver.NewHealthState()
	h := &httpserver.Handlers{
		Log:         logger.With(slog.String("component", "http")),
		Comparator:  comparator,
		Policy:      pol,
		Journal:     store,
		Metrics:     m,
		StrictQuery: cfg.StrictQuery,
	}
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           httpserver.NewHandler(h, health, logger, cfg.CORSOrigins),
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPWriteTimeout,
	}

	return &Application{
		cfg:      cfg,
		logger:   logger,
		logFile:  lf,
		server:   server,
		health:   health,
		journal:  store,
		consumer: consumer,
		metrics:  m,
	}, nil
}

func loadPolicy(cfg config.Config) (*policy.Policy, error) {
	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("policy load: %w", err)
	}
	if cfg.DefaultProfile == "" {
		return pol, nil
	}
	return pol.WithDefault(cfg.DefaultProfile)
}

func loadStats(logger *slog.Logger, path string) *dataset.Stats {
	stats, err := dataset.Load(path)
	if err != nil {
		logger.Warn("dataset_stats_unavailable",
			slog.String("path", path),
			slog.Any("err", err),
		)
		return nil
	}
	logger.Info("dataset_stats_loaded",
		slog.String("path", path),
		slog.String("generated_at", stats.GeneratedAt),
		slog.Int("total_rows", stats.TotalRows),
		slog.Int("diagnosed", stats.DiagnosedGroup.Count),
		slog.Int("healthy", stats.HealthyGroup.Count),
	)
	return stats
}

// Logger exposes the configured slog logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Addr returns the bound address once Run has started listening, or the
// configured address before that.
func (a *Application) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.cfg.ListenAddress
}

// Listen binds the HTTP listener ahead of Run. Calling it is optional.
func (a *Application) Listen() error {
	if a.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", a.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.ListenAddress, err)
	}
	a.listener = ln
	return nil
}

// Run blocks until the context is cancelled or the HTTP server or journal
// consumer terminates. Readiness is withdrawn before the graceful shutdown.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.Listen(); err != nil {
		return err
	}

	httpCh := make(chan error, 1)
	go func() {
		a.health.SetReady(true)
		a.logger.Info("http_server_listen", slog.String("address", a.Addr()))
		httpCh <- a.server.Serve(a.listener)
	}()

	if a.consumer != nil && a.cfg.JournalEnsureTopic {
		a.ensureJournalTopic(ctx)
	}

	var consumerCh chan error
	if a.consumer != nil {
		consumerCh = make(chan error, 1)
		go func() {
			consumerCh <- a.consumer.Run(ctx)
		}()
	}

	var httpErr error
	var consumerErr error

	for {
		select {
		case err := <-httpCh:
			httpErr = err
			httpCh = nil
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http_server_error", slog.Any("err", err))
			} else {
				a.logger.Info("server_closed")
			}
			cancel()
		case err := <-consumerCh:
			consumerErr = err
			consumerCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("journal_consumer_error", slog.Any("err", err))
			} else if err == nil {
				a.logger.Info("journal_consumer_completed")
			}
			cancel()
		case <-ctx.Done():
			a.logger.Info("shutdown_signal")
			a.health.SetReady(false)
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			if err := a.server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("server_shutdown_failed", slog.Any("err", err))
				if httpErr == nil {
					httpErr = fmt.Errorf("shutdown: %w", err)
				}
			}
			shutdownCancel()

			if httpCh != nil {
				if err := <-httpCh; err != nil && !errors.Is(err, http.ErrServerClosed) && httpErr == nil {
					httpErr = err
				}
			}
			if consumerCh != nil {
				if err := <-consumerCh; err != nil && !errors.Is(err, context.Canceled) && consumerErr == nil {
					consumerErr = err
				}
			}

			if consumerErr != nil && !errors.Is(consumerErr, context.Canceled) {
				return consumerErr
			}
			if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
				return httpErr
			}
			a.logger.Info("shutdown_complete")
			return nil
		}
	}
}

// ensureJournalTopic is best effort; the consumer retries through its breaker
// when the topic is still missing.
func (a *Application) ensureJournalTopic(ctx context.Context) {
	log := a.logger.With(slog.String("component", "topic_init"))
	partitions, err := ingest.EnsureTopic(ctx, log, ingest.TopicSpec{
		Brokers:           a.cfg.KafkaBrokers,
		Topic:             a.cfg.JournalTopic,
		Partitions:        a.cfg.JournalPartitions,
		ReplicationFactor: a.cfg.JournalReplication,
	})
	if err != nil {
		log.Warn("journal_topic_ensure_failed", slog.Any("err", err))
		return
	}
	log.Info("journal_topic_ready",
		slog.String("topic", a.cfg.JournalTopic),
		slog.Int("partitions", partitions),
	)
}

// Close releases the consumer, the journal database and the log file.
func (a *Application) Close() error {
	var errs []error
	if a.consumer != nil {
		errs = append(errs, a.consumer.Close())
		a.consumer = nil
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
		a.journal = nil
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
		a.logFile = nil
	}
	return errors.Join(errs...)
}
