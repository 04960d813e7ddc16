// Package collector intercepts the lifecycle of test cases and turns each one
// into a types.CaptureRecord.
//
// A host framework drives the collector through its hooks, strictly one case
// at a time:
//
//	OnCaseStart(tc)                  redirect stdout/stderr, start the clock
//	OnSuccess | OnFailure | OnError | OnSkip
//	OnCaseEnd(tc)                    restore the channels, finalize the record
//
// Records are appended to a types.RunSummary in execution order. Events are
// forwarded to a Reporter which writes to the console that was in place
// before any redirection.
package collector
