// ABOUTME: Pipeline board, records, and metrics CLI commands
// ABOUTME: Renders the stage board and headline numbers as tables
package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/breakhq/outreach/pipeline"
)

func parseFilters(fs *flag.FlagSet, args []string) pipeline.Filters {
	rangeDays := fs.Int("range", 0, "Only include records active in the last N days (0 = all time)")
	owner := fs.String("owner", "", "Filter by record owner")
	archived := fs.Bool("archived", false, "Include archived records")
	_ = fs.Parse(args)
	return pipeline.Filters{RangeDays: *rangeDays, Owner: *owner, ShowArchived: *archived}
}

// PipelineCommand prints the stage board.
func PipelineCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("pipeline", flag.ExitOnError)
	filters := parseFilters(fs, args)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Stage", "Records", "Targets"})
	for _, col := range engine.Board(filters) {
		targets := make([]string, 0, len(col.Items))
		for _, item := range col.Items {
			name := item.Target
			if item.Locked {
				name += " (locked)"
			}
			targets = append(targets, name)
		}
		t.AppendRow(table.Row{col.Label, len(col.Items), strings.Join(targets, ", ")})
	}
	t.Render()
	return nil
}

// RecordsCommand lists the visible outreach records.
func RecordsCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("records", flag.ExitOnError)
	filters := parseFilters(fs, args)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Target", "Type", "Stage", "Status", "Owner", "Sent", "Replies", "Flags"})
	for _, rec := range engine.VisibleRecords(filters) {
		var flags []string
		if rec.IsDraft {
			flags = append(flags, "draft")
		}
		if rec.Archived {
			flags = append(flags, "archived")
		}
		if rec.Locked {
			flags = append(flags, "locked")
		}
		t.AppendRow(table.Row{
			rec.ID, rec.Target, rec.Type, rec.Stage, rec.Status,
			rec.Owner, rec.EmailsSent, rec.EmailsReplies, strings.Join(flags, ","),
		})
	}
	t.Render()
	return nil
}

// MetricsCommand prints the headline pipeline numbers.
func MetricsCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	filters := parseFilters(fs, args)

	m := engine.MetricsFor(filters)
	fmt.Printf("Total outreach sent:    %d\n", m.TotalOutreach)
	fmt.Printf("Response rate:          %d%%\n", m.ResponseRate)
	fmt.Printf("Conversion to meetings: %d%%\n", m.MeetingConversion)
	fmt.Printf("Closed won vs lost:     %d / %d\n", m.ClosedWon, m.ClosedLost)
	return nil
}
