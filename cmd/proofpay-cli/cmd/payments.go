package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "List payment records for a user",
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetUint64("user")

		resp, err := http.Get(serverURL + "/api/v1/payments?user_id=" + strconv.FormatUint(userID, 10))
		if err != nil {
			fmt.Printf("request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		fmt.Printf("status: %s\n%s\n", resp.Status, string(body))
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [payment-id]",
	Short: "Retry a failed payment",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		userID, _ := cmd.Flags().GetUint64("user")

		payload := []byte(`{"user_id":` + strconv.FormatUint(userID, 10) + `}`)
		resp, err := http.Post(serverURL+"/api/v1/payments/"+args[0]+"/retry", "application/json", bytes.NewReader(payload))
		if err != nil {
			fmt.Printf("request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		fmt.Printf("status: %s\n%s\n", resp.Status, string(body))
	},
}

func init() {
	rootCmd.AddCommand(paymentsCmd)
	paymentsCmd.Flags().Uint64P("user", "u", 0, "user id")
	_ = paymentsCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(retryCmd)
	retryCmd.Flags().Uint64P("user", "u", 0, "user id")
	_ = retryCmd.MarkFlagRequired("user")
}
