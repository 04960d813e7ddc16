package testrun

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testrun/flags"
	"github.com/ethereum-optimism/infra/op-testrun/reporting"
	"github.com/ethereum-optimism/infra/op-testrun/service"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	TestDir      string        // Go module the tests are discovered in and run from
	Packages     []string      // Packages to run; empty means every package with tests
	CaseFile     string        // YAML case list, overrides Packages
	Verbosity    int           // Presenter verbosity, 0 to 2
	GoBinary     string        // Go binary used to run tests
	Timeout      time.Duration // Timeout for every single test, 0 disables it
	TestEnv      []string      // Extra KEY=VALUE environment for test processes
	LogDir       string        // Directory to store per-run logs, empty disables them
	Colors       bool          // Colored console output
	SummaryTable bool          // Print a table of every case after the summary
	Service      service.Config
	Log          log.Logger

	MaxCaptureBytes     int           // Tail kept per captured channel, 0 is unbounded
	CaptureDrainTimeout time.Duration // Wait for a case's output pipes to close
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	cfg := &Config{
		TestDir:      ctx.String(flags.TestDir.Name),
		Packages:     ctx.StringSlice(flags.Packages.Name),
		CaseFile:     ctx.String(flags.Cases.Name),
		Verbosity:    ctx.Int(flags.Verbosity.Name),
		GoBinary:     ctx.String(flags.GoBinary.Name),
		Timeout:      ctx.Duration(flags.Timeout.Name),
		TestEnv:      ctx.StringSlice(flags.TestEnv.Name),
		LogDir:       ctx.String(flags.LogDir.Name),
		Colors:       !ctx.Bool(flags.NoColor.Name),
		SummaryTable: ctx.Bool(flags.SummaryTable.Name),
		Service: service.Config{
			HealthzEnabled: ctx.Bool(flags.HealthzEnabled.Name),
			HealthzAddr: net.JoinHostPort(ctx.String(flags.HealthzAddr.Name),
				strconv.Itoa(ctx.Int(flags.HealthzPort.Name))),
			MetricsEnabled: metricsCfg.Enabled,
			MetricsAddr:    net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort)),
		},
		Log: log,

		MaxCaptureBytes:     ctx.Int(flags.MaxCaptureBytes.Name),
		CaptureDrainTimeout: ctx.Duration(flags.CaptureDrainTimeout.Name),
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths() error {
	var err error
	if c.TestDir, err = filepath.Abs(c.TestDir); err != nil {
		return fmt.Errorf("failed to resolve absolute path for test directory '%s': %w", c.TestDir, err)
	}
	if c.CaseFile != "" {
		if c.CaseFile, err = filepath.Abs(c.CaseFile); err != nil {
			return fmt.Errorf("failed to resolve absolute path for case file '%s': %w", c.CaseFile, err)
		}
	}
	if c.LogDir != "" {
		if c.LogDir, err = filepath.Abs(c.LogDir); err != nil {
			return fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", c.LogDir, err)
		}
	}
	return nil
}

// Check validates the configuration
func (c *Config) Check() error {
	if c.TestDir == "" {
		return errors.New("test directory is required")
	}
	info, err := os.Stat(c.TestDir)
	if err != nil {
		return fmt.Errorf("test directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("test directory %s is not a directory", c.TestDir)
	}
	if c.Verbosity < reporting.VerbosityQuiet || c.Verbosity > reporting.VerbosityVerbose {
		return fmt.Errorf("verbosity must be between %d and %d, got %d",
			reporting.VerbosityQuiet, reporting.VerbosityVerbose, c.Verbosity)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative: %v", c.Timeout)
	}
	if c.MaxCaptureBytes < 0 {
		return fmt.Errorf("max capture bytes cannot be negative: %d", c.MaxCaptureBytes)
	}
	if c.CaptureDrainTimeout < 0 {
		return fmt.Errorf("capture drain timeout cannot be negative: %v", c.CaptureDrainTimeout)
	}
	for _, kv := range c.TestEnv {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("invalid test environment entry %q, expected KEY=VALUE", kv)
		}
	}
	if c.Log == nil {
		return errors.New("logger is required")
	}
	return nil
}
