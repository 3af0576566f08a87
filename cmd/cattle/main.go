// Command cattle is a line-oriented Cattle Chat client.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flags struct {
	server   string
	user     string
	channel  string
	logLevel string
	noColor  bool
}

var rootCmd = &cobra.Command{
	Use:   "cattle",
	Short: "Cattle Chat client",
	Long: `cattle logs on to a Cattle Chat server, creating the account on first use,
and joins a channel. Lines read from stdin are sent as chat; lines starting
with / are commands. Two commands are handled locally:

  /names <room>   list the users in a room
  /quit           leave`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.server, "server", "s", "127.0.0.1:4000", "Server address, host:port")
	f.StringVarP(&flags.user, "user", "u", "", "Account name")
	f.StringVarP(&flags.channel, "channel", "c", "", "Channel to join after logging in")
	f.StringVar(&flags.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	f.BoolVar(&flags.noColor, "no-color", false, "Print chat without colors")
	_ = rootCmd.MarkFlagRequired("user")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
