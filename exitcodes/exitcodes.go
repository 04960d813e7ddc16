// Package exitcodes defines the exit codes of op-testrun.
package exitcodes

// * Success (0): every case succeeded or was skipped
// * TestFailure (1): one or more cases failed or errored
// * RuntimeErr (2): configuration errors, collector bookkeeping failures and other runtime errors
const (
	Success     = 0 // All cases pass
	TestFailure = 1 // Case failures or errors
	RuntimeErr  = 2 // Runtime errors
)
