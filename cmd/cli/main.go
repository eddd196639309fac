package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	authToken     string
	userID        string
	internalToken string
	apiURL        string = "http://localhost:8787"
	output        string = "text" // "text" or "json"
)

var rootCmd = &cobra.Command{
	Use:   "threads-rt",
	Short: "Threads realtime CLI - inspect and drive the realtime server",
	Long: `threads-rt talks to a running realtime server.
Mint development tokens, check who is online, publish domain events and
watch the websocket stream as a given user.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if authToken == "" {
			authToken = os.Getenv("THREADS_TOKEN")
		}
		if userID == "" {
			userID = os.Getenv("THREADS_USER_ID")
		}
		if internalToken == "" {
			internalToken = os.Getenv("INTERNAL_API_TOKEN")
		}
		if output != "text" && output != "json" {
			fmt.Fprintf(os.Stderr, "Error: --output must be text or json\n")
			os.Exit(1)
		}
		initClient()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Authentication token (defaults to THREADS_TOKEN env var)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User id the token belongs to (defaults to THREADS_USER_ID env var)")
	rootCmd.PersistentFlags().StringVar(&internalToken, "internal-token", "", "Shared service token for event ingest (defaults to INTERNAL_API_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "Realtime server URL")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(onlineCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
