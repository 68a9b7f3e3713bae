package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a prepared witness for proving and ledger relay",
	Long: `Reads a witness file, posts it to the server's submit endpoint and
prints the resulting proof id and transaction hash.`,
	Run: func(cmd *cobra.Command, args []string) {
		witnessFile, _ := cmd.Flags().GetString("witness")
		circuit, _ := cmd.Flags().GetString("circuit")
		userID, _ := cmd.Flags().GetUint64("user")
		threshold, _ := cmd.Flags().GetString("threshold")
		signature, _ := cmd.Flags().GetString("signature")

		witness, err := os.ReadFile(witnessFile)
		if err != nil {
			fmt.Printf("failed to read witness file: %v\n", err)
			os.Exit(1)
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"user_id":          userID,
			"circuit_id":       circuit,
			"witness":          json.RawMessage(witness),
			"threshold":        threshold,
			"wallet_signature": signature,
		})

		resp, err := http.Post(serverURL+"/api/v1/proofs", "application/json", bytes.NewReader(payload))
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
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringP("witness", "w", "witness.json", "witness file (JSON)")
	submitCmd.Flags().StringP("circuit", "c", "income_threshold", "circuit identifier")
	submitCmd.Flags().Uint64P("user", "u", 0, "user id")
	submitCmd.Flags().StringP("threshold", "t", "0", "claimed threshold")
	submitCmd.Flags().StringP("signature", "s", "", "hex wallet signature over the nullifier digest")
	_ = submitCmd.MarkFlagRequired("user")
}
