package main

import (
	"github.com/golobby/relorm"
	"github.com/golobby/relorm/internal/demo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	flagConfig string
	flagDriver string
	flagDSN    string
	flagDebug  bool
)

var cfg *viper.Viper

var rootCmd = &cobra.Command{
	Use:           "relorm",
	Short:         "relorm runs the User/Address model against a database",
	Version:       relorm.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadConfig(flagConfig)
		if err != nil {
			return err
		}
		if err := v.BindPFlag(cfgKeyDriver, cmd.Flags().Lookup("driver")); err != nil {
			return err
		}
		if err := v.BindPFlag(cfgKeyDSN, cmd.Flags().Lookup("dsn")); err != nil {
			return err
		}
		if err := v.BindPFlag(cfgKeyDebug, cmd.Flags().Lookup("debug")); err != nil {
			return err
		}
		cfg = v
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./relorm.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDriver, "driver", defaultDriver, "database driver: sqlite3, postgres or mysql")
	rootCmd.PersistentFlags().StringVar(&flagDSN, "dsn", defaultDSN, "data source name")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "log every statement")

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(versionCmd)
}

func connect() (*relorm.Connection, error) {
	config := relorm.ConnectionConfig{
		Driver:           cfg.GetString(cfgKeyDriver),
		ConnectionString: cfg.GetString(cfgKeyDSN),
		Entities:         demo.Entities(),
		Debug:            cfg.GetBool(cfgKeyDebug),
	}
	if config.Debug {
		config.LogLevel = relorm.LogLevelDev
	}
	if err := relorm.SetupConnections(config); err != nil {
		return nil, err
	}
	return relorm.GetConnection("default"), nil
}
