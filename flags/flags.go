package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testrun/capture"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_TESTRUN"

var (
	TestDir = &cli.StringFlag{
		Name:    "testdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTDIR"),
		Usage:   "Path to the Go module from which to discover and run tests",
	}
	Packages = &cli.StringSliceFlag{
		Name:    "packages",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGES"),
		Usage:   "Packages to run, relative to the test directory (eg. './calc'). Defaults to every package with tests.",
	}
	Cases = &cli.StringFlag{
		Name:    "cases",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CASES"),
		Usage:   "Path to a YAML case list (eg. 'cases.yaml'). Overrides --packages.",
	}
	Verbosity = &cli.IntFlag{
		Name:    "verbosity",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VERBOSITY"),
		Usage:   "0: summary only, 1: one mark per case, 2: one line per case plus captured output",
		Action: func(_ *cli.Context, v int) error {
			if v < 0 || v > 2 {
				return fmt.Errorf("verbosity must be 0, 1 or 2, got %d", v)
			}
			return nil
		},
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TIMEOUT"),
		Usage:   "Timeout for every single test (e.g. '30s'). 0 disables it.",
	}
	TestEnv = &cli.StringSliceFlag{
		Name:    "test-env",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_ENV"),
		Usage:   "Extra KEY=VALUE environment variables for the test processes",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-run log files. Empty disables file logging.",
	}
	MaxCaptureBytes = &cli.IntFlag{
		Name:    "max-capture-bytes",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_CAPTURE_BYTES"),
		Usage:   "Keep only the last N bytes of each captured channel per case. 0 keeps everything.",
	}
	CaptureDrainTimeout = &cli.DurationFlag{
		Name:    "capture-drain-timeout",
		Value:   capture.DefaultDrainTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CAPTURE_DRAIN_TIMEOUT"),
		Usage:   "How long to wait for a case's captured output to close before marking the case as an error",
	}
	NoColor = &cli.BoolFlag{
		Name:    "no-color",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "NO_COLOR"),
		Usage:   "Disable colored console output",
	}
	SummaryTable = &cli.BoolFlag{
		Name:    "summary-table",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUMMARY_TABLE"),
		Usage:   "Print a table of every case after the summary",
	}
	HealthzEnabled = &cli.BoolFlag{
		Name:    "healthz.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ENABLED"),
		Usage:   "Serve /healthz while the run is in progress",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Healthz listening address",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Healthz listening port",
	}
)

var requiredFlags = []cli.Flag{
	TestDir,
}

var optionalFlags = []cli.Flag{
	Packages,
	Cases,
	Verbosity,
	GoBinary,
	Timeout,
	TestEnv,
	LogDir,
	MaxCaptureBytes,
	CaptureDrainTimeout,
	NoColor,
	SummaryTable,
	HealthzEnabled,
	HealthzAddr,
	HealthzPort,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
