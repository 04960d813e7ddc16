package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testrun/metrics"
	"github.com/ethereum/go-ethereum/log"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = 8080

	MetricsHost = "0.0.0.0"
	MetricsPort = 7300
)

// Config selects which servers run and where
type Config struct {
	HealthzEnabled bool
	HealthzAddr    string
	MetricsEnabled bool
	MetricsAddr    string
}

type Service struct {
	log     log.Logger
	cfg     Config
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(logger log.Logger, cfg Config) *Service {
	if logger == nil {
		logger = log.Root()
	}
	return &Service{
		log:     logger,
		cfg:     cfg,
		Healthz: NewHealthzServer(logger),
		Metrics: NewMetricsServer(logger, nil),
	}
}

// Start starts the enabled servers. It fails if one cannot listen.
func (s *Service) Start() error {
	s.log.Info("service starting")

	if s.cfg.HealthzEnabled {
		if err := s.Healthz.Start(s.cfg.HealthzAddr); err != nil {
			metrics.RecordErrorDetails("healthz_start", err)
			return fmt.Errorf("failed to start healthz server: %w", err)
		}
		s.log.Info("started healthz server", "addr", s.Healthz.Addr())
	}

	if s.cfg.MetricsEnabled {
		if err := s.Metrics.Start(s.cfg.MetricsAddr); err != nil {
			metrics.RecordErrorDetails("metrics_start", err)
			return errors.Join(
				fmt.Errorf("failed to start metrics server: %w", err),
				s.Healthz.Shutdown(context.Background()),
			)
		}
		s.log.Info("started metrics server", "addr", s.Metrics.Addr())
	}

	s.log.Info("service started")
	return nil
}

// Shutdown stops the servers that were started
func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")

	healthzErr := s.Healthz.Shutdown(ctx)
	s.log.Info("healthz stopped")

	metricsErr := s.Metrics.Shutdown(ctx)
	s.log.Info("metrics stopped")

	s.log.Info("service stopped")
	return errors.Join(healthzErr, metricsErr)
}
