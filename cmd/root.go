package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var jsonLogs bool

var rootCmd = &cobra.Command{
	Use:   "photo-groups",
	Short: "Groups near-duplicate photos and manages their cleanup",
	Long: `Photo Groups clusters image embeddings into groups of near-duplicate
photos, lets the owner confirm or reject each group, and moves the
discarded copies to a trash that is purged after a retention period.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON instead of console output")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	initLogger(os.Getenv("LOG_LEVEL"))
}

func initLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if !jsonLogs {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
