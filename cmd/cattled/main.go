// Command cattled runs the Cattle Chat server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cattled",
	Short: "Cattle Chat server",
	Long: `cattled accepts Cattle Chat clients over TCP, authenticates them against
an account directory and relays their chat between rooms.

Use 'cattled serve' to start the server and 'cattled hash' to provision
accounts by hand.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
