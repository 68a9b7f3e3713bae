package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "proofpay-cli",
	Short: "Command line client for the proofpay server",
	Long: `Operational client for the proof settlement pipeline.
Submits prepared witnesses, checks submission status and inspects payments
against a running proofpay-server.`,
}

// Execute adds all child commands to the root command and sets flags
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "proofpay server base URL")
}
