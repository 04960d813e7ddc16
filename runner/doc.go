// Package runner drives test cases one at a time and reports every step to a
// Lifecycle, which is normally a *collector.Collector.
//
// The main components are:
//   - Case: a unit of work with a stable identity, run against a *T
//   - Runner: executes cases sequentially and emits exactly one outcome per case
//   - GoTestExecutor: builds cases that run a single Go test function in a
//     `go test -json` subprocess and stream its output to the process stdout
package runner
