package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/cattlechat/account"
)

var hashUser string

// hashCmd prints the stored form of a password.
var hashCmd = &cobra.Command{
	Use:   "hash <password>",
	Short: "Print the hash stored for a password",
	Long: `Print the hex SHA1 of a password, as kept by the account file.
With --user the whole account file line is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h := account.HashPassword(args[0])
		if hashUser == "" {
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		}
		if r := account.ValidateName(hashUser); r != account.CreateSuccess {
			return errors.Errorf("invalid account name %q: %s", hashUser, r)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s;%s\n", hashUser, h)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
	hashCmd.Flags().StringVar(&hashUser, "user", "", "Print an account file line for this user")
}
