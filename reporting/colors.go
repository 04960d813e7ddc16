package reporting

import (
	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/jedib0t/go-pretty/v6/text"
)

// outcomeColors maps each outcome to its console color
var outcomeColors = map[types.OutcomeKind]text.Colors{
	types.OutcomeSuccess: {text.FgGreen},
	types.OutcomeFailure: {text.FgRed},
	types.OutcomeError:   {text.FgYellow},
	types.OutcomeSkipped: {text.FgCyan},
}

// ColorFor returns the colors used to render an outcome kind
func ColorFor(kind types.OutcomeKind) text.Colors {
	if c, ok := outcomeColors[kind]; ok {
		return c
	}
	return text.Colors{text.Reset}
}

// painter applies colors unless they are disabled
type painter struct {
	enabled bool
}

func (p painter) paint(kind types.OutcomeKind, s string) string {
	if !p.enabled {
		return s
	}
	return ColorFor(kind).Sprint(s)
}

// outcomeWord is the verbose form of an outcome
func outcomeWord(outcome types.Outcome) string {
	switch outcome.Kind {
	case types.OutcomeSuccess:
		return "ok"
	case types.OutcomeFailure:
		return "FAIL"
	case types.OutcomeError:
		return "ERROR"
	case types.OutcomeSkipped:
		return "skipped '" + outcome.Detail + "'"
	default:
		return "UNKNOWN"
	}
}

// outcomeMark is the single-character form of an outcome
func outcomeMark(kind types.OutcomeKind) string {
	switch kind {
	case types.OutcomeSuccess:
		return "."
	case types.OutcomeFailure:
		return "F"
	case types.OutcomeError:
		return "E"
	case types.OutcomeSkipped:
		return "s"
	default:
		return "?"
	}
}
