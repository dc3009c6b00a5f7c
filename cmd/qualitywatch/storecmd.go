package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStoreCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the historical store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the measurement and test result tables if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "History tables ready: %s, %s\n",
				a.cfg.Store.MeasurementsTable, a.cfg.Store.TestResultsTable)
			return nil
		},
	})
	return cmd
}
