// Package cli implements dsarctl, the operator command line for the data
// request service.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/privacyops/dsar/internal/app"
	"github.com/privacyops/dsar/internal/config"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
)

// Opener assembles the services for one command.
type Opener func(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app.App, error)

func openApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{Logger: logger})
}

// session is shared by the commands of one invocation.
type session struct {
	v      *viper.Viper
	open   Opener
	config func(files ...string) config.Config
}

// Execute runs dsarctl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCommand(openApp).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. open assembles the services.
func NewRootCommand(open Opener) *cobra.Command {
	return newRootCommand(&session{v: viper.New(), open: open, config: config.Load})
}

func newRootCommand(rt *session) *cobra.Command {
	root := &cobra.Command{
		Use:   "dsarctl",
		Short: "Operate the data subject request service",
		Long: `Operate the data subject request service.

dsarctl inspects retention policies, lists and purges expired scopes and
re-queues stalled data requests. It reads the same environment as the API
and the worker; flags can also be set as DSAR_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("env-file", ".env", "Environment file loaded before the process environment")
	flags.StringP("output", "o", formatText, "Output format: text or json")
	flags.String("actor", "", "User the command acts as (default: SYSTEM_ACTOR_ID)")
	flags.BoolP("verbose", "v", false, "Log service activity to stderr")

	rt.v.SetEnvPrefix("DSAR")
	rt.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	rt.v.AutomaticEnv()
	_ = rt.v.BindPFlags(flags)

	root.AddCommand(
		newScanCommand(rt),
		newPurgeCommand(rt),
		newResolveCommand(rt),
		newRequeueCommand(rt),
		newTokenCommand(rt),
		newVersionCommand(rt),
	)
	return root
}

func (rt *session) loadConfig() config.Config {
	return rt.config(rt.v.GetString("env-file"))
}

func (rt *session) format() (string, error) {
	switch f := rt.v.GetString("output"); f {
	case formatText, formatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported output %q, use 'text' or 'json'", ErrUsage, f)
	}
}

func (rt *session) actor(cfg config.Config) string {
	if a := rt.v.GetString("actor"); a != "" {
		return a
	}
	return cfg.SystemActorID
}

func (rt *session) logger() zerolog.Logger {
	if !rt.v.GetBool("verbose") {
		return zerolog.Nop()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

// withApp opens the services, runs fn and closes them again.
func (rt *session) withApp(cmd *cobra.Command, fn func(cfg config.Config, a *app.App) error) error {
	cfg := rt.loadConfig()
	a, err := rt.open(cmd.Context(), cfg, rt.logger())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer a.Close()
	return fn(cfg, a)
}
