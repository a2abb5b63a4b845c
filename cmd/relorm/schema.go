package main

import (
	"github.com/spf13/cobra"
)

var flagRefresh bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the mapped tables, optionally recreating them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := connect()
		if err != nil {
			return err
		}
		defer conn.Close()
		if flagRefresh {
			if err := conn.RefreshDatabase(cmd.Context()); err != nil {
				return err
			}
		}
		conn.WriteSchematic(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&flagRefresh, "refresh", false, "drop and recreate the tables first")
}
