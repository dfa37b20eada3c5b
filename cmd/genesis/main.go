package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/genesis/cmd/genesis/cmds"
	"github.com/go-go-golems/genesis/internal/config"
	"github.com/go-go-golems/genesis/pkg/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "genesis",
	Short:         "genesis orchestrates LLM-backed pattern generation with live status",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(); err != nil {
			return err
		}
		c, err := config.Load(viper.GetViper(), configFile)
		if err != nil {
			return err
		}
		if err := logging.Init(c.Log); err != nil {
			return err
		}
		log.Debug().Str("config", viper.ConfigFileUsed()).Msg("Loaded configuration")
		cmds.SetConfig(c)
		return nil
	},
}

func init() {
	config.SetDefaults(viper.GetViper())

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default ./genesis.yaml or ~/.genesis/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8000", "Server URL used by client commands")

	cobra.CheckErr(viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")))
	cobra.CheckErr(viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file")))
	cobra.CheckErr(viper.BindPFlag("client.url", rootCmd.PersistentFlags().Lookup("server")))

	rootCmd.AddCommand(
		cmds.NewServeCommand(),
		cmds.NewStatusCommand(),
		cmds.NewWatchCommand(),
		cmds.NewSwitchProviderCommand(),
		cmds.NewSwitchModeCommand(),
		cmds.NewSetParameterCommand(),
		cmds.NewGenerateCommand(),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("genesis failed")
		os.Exit(1)
	}
}
