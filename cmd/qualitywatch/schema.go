package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/alexanderjulianmartinez/quality-watch/internal/drift"
	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect recorded schema snapshots",
	}

	var table string
	latest := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently recorded schema of a table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			snap, err := drift.NewReader(st).GetLatestSchema(cmd.Context(), table)
			if err != nil {
				return err
			}
			if snap == nil {
				fmt.Fprintf(a.stdout, "No schema recorded for %s\n", table)
				return nil
			}
			fmt.Fprintf(a.stdout, "Schema of %s at %s\n", table, snap.ExecutionDatetime)
			renderSchema(a, snap.Schema)
			return nil
		},
	}
	latest.Flags().StringVar(&table, "table", "", "Table name as recorded in history")
	_ = latest.MarkFlagRequired("table")

	cmd.AddCommand(latest)
	return cmd
}

func nullable(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func renderSchema(a *app, s schema.Schema) {
	table := tablewriter.NewWriter(a.stdout)
	table.SetHeader([]string{"Name", "Type", "Nullable"})
	table.SetAutoWrapText(false)
	for _, col := range s {
		table.Append([]string{col.Name, col.Type, nullable(col.Nullable)})
	}
	table.Render()
}

func renderChanges(a *app, changes []schema.Change) {
	table := tablewriter.NewWriter(a.stdout)
	table.SetHeader([]string{"Column", "Change", "From", "To", "Severity"})
	table.SetAutoWrapText(false)
	for _, c := range changes {
		table.Append([]string{c.Column, c.Message, c.From, c.To, severity(c.Severity)})
	}
	table.Render()
}
