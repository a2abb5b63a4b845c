package main

import (
	"fmt"
	"strings"

	"github.com/golobby/relorm/internal/demo"
	"github.com/jedib0t/go-pretty/table"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo [scenario...]",
	Short: "Seed each scenario and list home users ordered by their home country",
	Long: `demo recreates the users and addresses tables, seeds a scenario,
flushes, clears the session and queries users having a home address ordered
by the country of that address. Scenarios run in order, all by default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scenarios := demo.Scenarios
		if len(args) > 0 {
			scenarios = nil
			for _, name := range args {
				sc, ok := demo.ScenarioByName(strings.ToUpper(name))
				if !ok {
					return fmt.Errorf("unknown scenario %q", name)
				}
				scenarios = append(scenarios, sc)
			}
		}

		conn, err := connect()
		if err != nil {
			return err
		}
		defer conn.Close()

		w := table.NewWriter()
		w.SetOutputMirror(cmd.OutOrStdout())
		w.AppendHeader(table.Row{"Scenario", "Description", "Result"})
		for _, sc := range scenarios {
			names, err := demo.Run(cmd.Context(), conn, sc)
			if err != nil {
				return err
			}
			w.AppendRow(table.Row{sc.Name, sc.Description, strings.Join(names, ", ")})
		}
		w.Render()
		return nil
	},
}
