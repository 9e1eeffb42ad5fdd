package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/privacyops/dsar/internal/auth"
)

type tokenView struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newTokenCommand(rt *session) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API access token for a user",
		Long: `Issue a bearer token signed with JWT_SIGNING_KEY. Tokens are normally
issued by the host platform; this command is meant for operators and tests.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rt.format()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return fmt.Errorf("%w: --ttl must be positive", ErrUsage)
			}
			cfg := rt.loadConfig()
			if cfg.JWTSigningKey == "" {
				return fmt.Errorf("%w: JWT_SIGNING_KEY is not set", ErrConfig)
			}

			tokens := auth.NewTokenService(auth.TokenConfig{
				SigningKey: cfg.JWTSigningKey,
				Issuer:     cfg.JWTIssuer,
				Audience:   cfg.JWTAudience,
			})
			token, expiresAt, err := tokens.Issue(args[0], ttl)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrRuntime, err)
			}

			if format == formatJSON {
				return printJSON(cmd.OutOrStdout(), tokenView{Token: token, ExpiresAt: expiresAt})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
