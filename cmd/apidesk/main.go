package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfigPath = "./apidesk.yaml"

var rootCmd = &cobra.Command{
	Use:           "apidesk",
	Short:         "Local workspace for browsing and calling a documented API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	v := viper.GetViper()
	v.SetDefault("config", defaultConfigPath)
	v.SetDefault("log_level", "")
	v.SetDefault("addr", "")

	// Environment variables support: APIDESK_CONFIG, APIDESK_LOG_LEVEL, APIDESK_ADDR
	v.SetEnvPrefix("APIDESK")
	v.AutomaticEnv()

	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to the apidesk config yaml")
	rootCmd.PersistentFlags().String("log-level", v.GetString("log_level"), "override logging.level (error, warn, info, debug)")
	serveCmd.Flags().String("addr", v.GetString("addr"), "listen address (overrides server.addr)")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tabsCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reorderCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(clearCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
