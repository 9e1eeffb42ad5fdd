package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/privacyops/dsar/internal/app"
	"github.com/privacyops/dsar/internal/config"
	"github.com/privacyops/dsar/internal/expiry"
)

func newPurgeCommand(rt *session) *cobra.Command {
	var (
		strategies []string
		confirm    bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete the personal data of expired scopes",
		Long: `Run a deletion pass: every expired scope is recorded, approved for
deletion and purged through the privacy manager.

The acting user needs the manage-registry capability. Runs are skipped while
the system default purpose and category are unset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := rt.format()
			if err != nil {
				return err
			}
			if err := validStrategies(strategies); err != nil {
				return err
			}
			if !confirm {
				return fmt.Errorf("%w: purge deletes personal data, pass --confirm to proceed", ErrUsage)
			}

			return rt.withApp(cmd, func(cfg config.Config, a *app.App) error {
				actor := rt.actor(cfg)
				var results []*expiry.Result
				failed := 0
				for _, d := range selectDeleters(a.Deleters, strategies) {
					res, err := d.Delete(cmd.Context(), actor)
					if err != nil {
						return fmt.Errorf("%w: %s deletion: %v", ErrRuntime, d.Strategy(), err)
					}
					results = append(results, res)
					failed += len(res.Failures)
				}

				out := cmd.OutOrStdout()
				if format == formatJSON {
					if err := printJSON(out, results); err != nil {
						return err
					}
				} else if err := printPurge(cmd, results); err != nil {
					return err
				}
				if failed > 0 {
					return fmt.Errorf("%w: %d scope(s) could not be purged", ErrRuntime, failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&strategies, "strategy", nil, "Limit to strategies: membership, inactivity")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm the deletion")
	return cmd
}

func printPurge(cmd *cobra.Command, results []*expiry.Result) error {
	out := cmd.OutOrStdout()
	t := newTable(out, "STRATEGY", "DELETED", "FAILED", "SKIPPED")
	for _, r := range results {
		t.row(r.Strategy, fmt.Sprint(r.Deleted), fmt.Sprint(len(r.Failures)), fmt.Sprint(r.Skipped))
	}
	if err := t.flush(); err != nil {
		return err
	}
	for _, r := range results {
		for _, f := range r.Failures {
			fmt.Fprintf(out, "failed %s: %s\n", f.ScopeID, f.Error)
		}
	}
	return nil
}
