package main

import "proofpay-core/cmd/proofpay-cli/cmd"

func main() {
	cmd.Execute()
}
