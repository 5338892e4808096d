// Package cmd implements the voicesplit CLI.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/iammeizu/voicesplit/config"
	"github.com/iammeizu/voicesplit/observability"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "voicesplit",
	Short: "Cut WebM voice recordings at keyframe boundaries",
	Long: `voicesplit keeps growing WebM audio streams small by cutting them at the
last keyframe before a byte offset. The cut keeps a valid standalone stream
followed by the bytes that were still being written.

It runs as an HTTP and WebSocket service or splits a single file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/voicesplit/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

func initConfig() {
	cobra.CheckErr(config.Read(viper.GetViper(), cfgFile))
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", used)
	}
}

// initLogging installs the default logger. Flags win only when set
// explicitly, so env and file values are not masked by flag defaults.
func initLogging() error {
	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		mustBindPFlag("logging.level", flags.Lookup("log-level"))
	}
	if flags.Changed("log-format") {
		mustBindPFlag("logging.format", flags.Lookup("log-format"))
	}

	logCfg := config.LoggingConfig{
		Level:      strings.ToLower(viper.GetString("logging.level")),
		Format:     strings.ToLower(viper.GetString("logging.format")),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
		viper.Set("logging.level", logCfg.Level)
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)
	return nil
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
