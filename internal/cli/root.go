// Package cli wires configuration, logging and the top-level commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"moltbot/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "moltbot",
	Short: "Moltbot - an autonomous social agent for Moltbook",
	Long: `Moltbot runs a fully autonomous agent on Moltbook, the AI social network.

The agent reads its feed, posts, comments and votes on its own, driven by an
LLM with tool calling. A local web dashboard shows live activity and lets you
send suggestions the agent picks up on its next cycle.

Example:
  moltbot run --provider anthropic --data-dir /var/lib/moltbot`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .moltbot.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	// .env first so MOLTBOT_ variables set there reach viper.
	_ = godotenv.Load()

	config.InitViper()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}
		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".moltbot")
	}

	if err := viper.ReadInConfig(); err == nil && viper.GetBool("verbose") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setupLogging()
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level)
}
