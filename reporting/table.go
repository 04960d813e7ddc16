package reporting

import (
	"fmt"
	"io"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableReporter renders every record of a run as a table
type TableReporter struct {
	title  string
	colors bool
}

// NewTableReporter creates a new table reporter
func NewTableReporter(title string, colors bool) *TableReporter {
	return &TableReporter{title: title, colors: colors}
}

// Generate returns the rendered table
func (tr *TableReporter) Generate(summary *types.RunSummary) string {
	t := table.NewWriter()
	tr.build(t, summary)
	return t.Render()
}

// Print renders the table to w
func (tr *TableReporter) Print(w io.Writer, summary *types.RunSummary) error {
	_, err := fmt.Fprintln(w, tr.Generate(summary))
	return err
}

func (tr *TableReporter) build(t table.Writer, summary *types.RunSummary) {
	t.SetTitle(fmt.Sprintf("%s (%s)", tr.title, FormatSeconds(summary.Duration)))
	t.AppendHeader(table.Row{"#", "Case", "Outcome", "Duration", "Stdout", "Stderr", "Detail"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Case", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Stdout", Align: text.AlignRight},
		{Name: "Stderr", Align: text.AlignRight},
		{Name: "Detail", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	p := painter{enabled: tr.colors}
	for i, rec := range summary.Records {
		t.AppendRow(table.Row{
			i + 1,
			rec.Case.QualifiedName(),
			p.paint(rec.Outcome.Kind, string(rec.Outcome.Kind)),
			FormatSeconds(rec.Duration),
			len(rec.Output),
			len(rec.ErrorOutput),
			firstLine(rec.Outcome.Detail),
		})
	}

	t.AppendFooter(table.Row{
		"",
		"TOTAL",
		fmt.Sprintf("%d run", summary.Run),
		FormatSeconds(summary.Duration),
		"",
		"",
		fmt.Sprintf("passed=%d failed=%d errored=%d skipped=%d",
			summary.Passed(), summary.Failed, summary.Errored, summary.Skipped),
	})

	if !tr.colors {
		t.SetStyle(table.StyleLight)
		return
	}
	switch {
	case !summary.WasSuccessful():
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case summary.Skipped > 0:
		t.SetStyle(table.StyleColoredBlackOnCyanWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
