package flags

import (
	"testing"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
			require.Equal(t, opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix), envFlags[0])
		})
	}
}

func TestCheckRequired(t *testing.T) {
	run := func(args ...string) error {
		app := &cli.App{
			Flags:  Flags,
			Action: CheckRequired,
		}
		return app.Run(append([]string{"app"}, args...))
	}

	err := run()
	require.ErrorContains(t, err, "flag testdir is required")

	require.NoError(t, run("--testdir", "/tmp/tests"))
}

func TestVerbosityFlag(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		expected    int
		shouldError bool
	}{
		{"default", []string{"app"}, 1, false},
		{"quiet", []string{"app", "--verbosity", "0"}, 0, false},
		{"verbose", []string{"app", "--verbosity", "2"}, 2, false},
		{"too high", []string{"app", "--verbosity", "3"}, 0, true},
		{"negative", []string{"app", "--verbosity=-1"}, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got int
			app := &cli.App{
				Flags: []cli.Flag{Verbosity},
				Action: func(ctx *cli.Context) error {
					got = ctx.Int(Verbosity.Name)
					return nil
				},
			}

			err := app.Run(tc.args)
			if tc.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSliceFlags(t *testing.T) {
	var packages, env []string
	app := &cli.App{
		Flags: []cli.Flag{Packages, TestEnv},
		Action: func(ctx *cli.Context) error {
			packages = ctx.StringSlice(Packages.Name)
			env = ctx.StringSlice(TestEnv.Name)
			return nil
		},
	}

	err := app.Run([]string{"app", "--packages", "./calc", "--packages", "./text", "--test-env", "A=1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"./calc", "./text"}, packages)
	assert.Equal(t, []string{"A=1"}, env)
}
