package token

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/omniface/omniface-go/internal/api/auth"
	"github.com/omniface/omniface-go/internal/conf"
)

// Command creates the command that mints a tenant token for development.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "token <tenant-id>",
		Short: "Mint a tenant JWT signed with security.jwt.secret",
		Long:  "Mint a tenant JWT for local testing. Production tokens come from the account service.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid tenant id %q", args[0])
			}

			tokens, err := auth.NewTokenService(settings.Security.JWT)
			if err != nil {
				return err
			}
			tok, err := tokens.Issue(uint(id))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}
