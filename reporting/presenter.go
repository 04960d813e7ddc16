package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/ethereum/go-ethereum/log"
)

// Verbosity levels understood by the Presenter
const (
	VerbosityQuiet   = 0 // Only the end-of-run summary
	VerbosityDots    = 1 // One character per case
	VerbosityVerbose = 2 // One line per case plus captured output
)

// SeparatorWidth is the width of the separator lines around captured output
const SeparatorWidth = 70

var (
	separator       = strings.Repeat("-", SeparatorWidth)
	doubleSeparator = strings.Repeat("=", SeparatorWidth)
)

// Presenter renders collector events and run summaries as colored text.
// Rendering never fails: write errors are dropped and panics are recovered.
type Presenter struct {
	w         io.Writer
	log       log.Logger
	verbosity int
	painter   painter
}

// NewPresenter creates a Presenter writing to w, which should be the real
// console captured before any case redirects the process channels
func NewPresenter(w io.Writer, logger log.Logger, verbosity int, colors bool) *Presenter {
	if logger == nil {
		logger = log.Root()
	}
	if verbosity < VerbosityQuiet {
		verbosity = VerbosityQuiet
	}
	if verbosity > VerbosityVerbose {
		verbosity = VerbosityVerbose
	}
	return &Presenter{
		w:         w,
		log:       logger,
		verbosity: verbosity,
		painter:   painter{enabled: colors},
	}
}

// Verbosity returns the effective verbosity level
func (p *Presenter) Verbosity() int {
	return p.verbosity
}

func (p *Presenter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func (p *Presenter) recoverRender(what string) {
	if r := recover(); r != nil {
		p.log.Error("Failed to render", "what", what, "panic", r)
	}
}

// CaseStarted prints "<Container>.<Case> ... " in verbose mode
func (p *Presenter) CaseStarted(tc types.TestCase) {
	defer p.recoverRender("case start")
	if p.verbosity >= VerbosityVerbose {
		p.printf("%s ... ", tc.QualifiedName())
	}
}

// CaseOutcome prints the colored outcome word, or a single mark at verbosity 1
func (p *Presenter) CaseOutcome(tc types.TestCase, outcome types.Outcome) {
	defer p.recoverRender("case outcome")
	switch p.verbosity {
	case VerbosityVerbose:
		p.printf("%s\n", p.painter.paint(outcome.Kind, outcomeWord(outcome)))
	case VerbosityDots:
		p.printf("%s", p.painter.paint(outcome.Kind, outcomeMark(outcome.Kind)))
	}
}

// CaseCaptured prints the captured output block in verbose mode, only when
// the case wrote something
func (p *Presenter) CaseCaptured(record types.CaptureRecord) {
	defer p.recoverRender("captured output")
	if p.verbosity < VerbosityVerbose || !record.HasCapturedText() {
		return
	}
	p.printf("%s\n", FormatCapturedBlock(record))
}

// FormatCapturedBlock renders a record's captured text between separators
func FormatCapturedBlock(record types.CaptureRecord) string {
	var b strings.Builder
	b.WriteString(separator + "\n")
	if record.Output != "" {
		b.WriteString("Output:\n")
		b.WriteString(record.Output + "\n")
	}
	if record.ErrorOutput != "" {
		b.WriteString("Error output:\n")
		b.WriteString(record.ErrorOutput + "\n")
	}
	fmt.Fprintf(&b, "Duration: %s\n", FormatSeconds(record.Duration))
	b.WriteString(separator)
	return b.String()
}

// FormatSeconds renders a duration in seconds with 3 decimal places
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// PrintSummary prints failure details, the run line and the result line
func (p *Presenter) PrintSummary(summary *types.RunSummary) {
	defer p.recoverRender("summary")
	if summary == nil {
		return
	}
	if p.verbosity == VerbosityDots && summary.Run > 0 {
		p.printf("\n")
	}

	for _, rec := range summary.FailedRecords() {
		label := "FAIL"
		if rec.Outcome.Kind == types.OutcomeError {
			label = "ERROR"
		}
		p.printf("%s\n", doubleSeparator)
		p.printf("%s: %s\n", p.painter.paint(rec.Outcome.Kind, label), rec.Case.QualifiedName())
		p.printf("%s\n", separator)
		if rec.Outcome.Detail != "" {
			p.printf("%s\n", rec.Outcome.Detail)
		}
		p.printf("\n")
	}

	p.printf("%s\n", separator)
	p.printf("Ran %d %s in %s\n\n", summary.Run, pluralize(summary.Run, "test", "tests"),
		FormatSeconds(summary.Duration))
	p.printf("%s\n", p.ResultLine(summary))
}

// ResultLine is the final line of a run: a single success banner when every
// case succeeded, otherwise the verdict followed by the colored failure, error
// and skip counts
func (p *Presenter) ResultLine(summary *types.RunSummary) string {
	if summary.AllSucceeded() {
		return p.painter.paint(types.OutcomeSuccess, "OK")
	}

	counts := []string{
		p.painter.paint(types.OutcomeFailure, fmt.Sprintf("failures=%d", summary.Failed)),
		p.painter.paint(types.OutcomeError, fmt.Sprintf("errors=%d", summary.Errored)),
		p.painter.paint(types.OutcomeSkipped, fmt.Sprintf("skipped=%d", summary.Skipped)),
	}
	verdict := p.painter.paint(types.OutcomeFailure, "FAILED")
	if summary.WasSuccessful() {
		verdict = p.painter.paint(types.OutcomeSuccess, "OK")
	}
	return fmt.Sprintf("%s (%s)", verdict, strings.Join(counts, ", "))
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
