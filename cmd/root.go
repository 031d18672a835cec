package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reid",
	Short: "Person re-identification across surveillance video sessions",
	Long: `Reid processes surveillance footage one video at a time: it tracks people
across frames, extracts face embeddings, and matches them against a
persistent identity catalogue so the same person is recognized across
separate recordings.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
