package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/alexanderjulianmartinez/quality-watch/internal/report"
	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
)

var (
	headerColor = color.New(color.Bold).SprintFunc()
	errorColor  = color.New(color.FgRed, color.Bold).SprintFunc()
	okColor     = color.New(color.FgGreen).SprintFunc()
)

func severity(s string) string {
	switch s {
	case schema.SeverityBlock:
		return color.New(color.FgRed).Sprint(s)
	case schema.SeverityWarn:
		return color.New(color.FgYellow).Sprint(s)
	default:
		return s
	}
}

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the profile and test views of recorded runs",
	}
	cmd.AddCommand(newProfileCmd(a), newTestsCmd(a))
	return cmd
}

func newProfileCmd(a *app) *cobra.Command {
	var table, at string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the measurements and schema of a table at one execution time",
		Long: `Show the measurements and schema of a table at one execution time.
Without --table the first recorded table is used; without --at the latest
execution time is used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.load(); err != nil {
				return err
			}
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			r := report.NewReporter(st, report.NewCache())

			if table == "" {
				tables, err := r.Tables(ctx)
				if err != nil {
					return err
				}
				if len(tables) == 0 {
					return errors.New("no tables recorded yet")
				}
				table = tables[0]
			}
			times, err := r.ExecutionTimes(ctx, store.Measurements)
			if err != nil {
				return err
			}
			when, err := latestTime(at, times)
			if err != nil {
				return err
			}

			p, err := r.Profile(ctx, table, when)
			if err != nil {
				return err
			}
			renderProfile(a, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "Table name as recorded in history")
	cmd.Flags().StringVar(&at, "at", "", `Execution time ("YYYY-MM-DD HH:MM:SS")`)
	return cmd
}

func renderProfile(a *app, p *report.Profile) {
	fmt.Fprintf(a.stdout, "%s %s at %s\n\n", headerColor("Profile of"), p.Table, p.ExecutionDatetime)

	fmt.Fprintln(a.stdout, headerColor("Overview"))
	overview := tablewriter.NewWriter(a.stdout)
	overview.SetHeader([]string{"Metric", "Value"})
	for _, mv := range p.Overview {
		overview.Append([]string{mv.Metric, mv.Value})
	}
	overview.Render()

	if len(p.Columns) > 0 {
		fmt.Fprintln(a.stdout, headerColor("Measurements"))
		metrics := p.ColumnMetrics()
		pivot := tablewriter.NewWriter(a.stdout)
		pivot.SetHeader(append([]string{"Column"}, metrics...))
		for _, col := range p.ColumnNames() {
			row := []string{col}
			for _, m := range metrics {
				row = append(row, p.Columns[col][m])
			}
			pivot.Append(row)
		}
		pivot.Render()
	}

	fmt.Fprintln(a.stdout, headerColor("Schema"))
	if !p.SchemaChange.SchemaChanged {
		renderSchema(a, p.Schema)
		return
	}
	fmt.Fprintln(a.stdout, errorColor("Schema changed!"))
	fmt.Fprintln(a.stdout, "current schema")
	renderSchema(a, p.Schema)
	fmt.Fprintf(a.stdout, "schema at %s\n", p.SchemaChange.LatestExecutionDT)
	renderSchema(a, p.PreviousSchema)
	if len(p.Changes) > 0 {
		renderChanges(a, p.Changes)
	}
}

func newTestsCmd(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "tests",
		Short: "Show test counts and failed tests at one execution time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.load(); err != nil {
				return err
			}
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			r := report.NewReporter(st, report.NewCache())

			times, err := r.ExecutionTimes(ctx, store.TestResults)
			if err != nil {
				return err
			}
			when, err := latestTime(at, times)
			if err != nil {
				return err
			}
			s, err := r.Tests(ctx, when)
			if err != nil {
				return err
			}
			renderTests(a, s)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", `Execution time ("YYYY-MM-DD HH:MM:SS")`)
	return cmd
}

func renderTests(a *app, s *report.TestSummary) {
	fmt.Fprintf(a.stdout, "%s %s\n", headerColor("Tests at"), s.ExecutionDatetime)
	counts := tablewriter.NewWriter(a.stdout)
	counts.SetHeader([]string{"Tests", "Failed", "Skipped", "Success"})
	success := fmt.Sprintf("%d%%", s.SuccessRate)
	if s.NumFailed == 0 {
		success = okColor(success)
	}
	counts.Append([]string{countCell(s.NumTests), countCell(s.NumFailed), countCell(s.NumSkipped), success})
	counts.Render()

	if s.NumFailed == 0 {
		return
	}
	fmt.Fprintln(a.stdout, errorColor("Failed Tests"))
	failed := tablewriter.NewWriter(a.stdout)
	failed.SetHeader([]string{"Table", "Column", "Title", "Expression", "Expression Result"})
	failed.SetAutoWrapText(false)
	for _, tr := range s.Failed {
		failed.Append([]string{
			tr.TableName,
			deref(tr.ColumnName),
			tr.Title,
			deref(tr.Expression),
			floatCell(tr.ExpressionResult),
		})
	}
	failed.Render()
}

func countCell(n int) string {
	return strconv.Itoa(n)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatCell(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
