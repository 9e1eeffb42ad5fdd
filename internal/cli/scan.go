package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/privacyops/dsar/internal/app"
	"github.com/privacyops/dsar/internal/config"
	"github.com/privacyops/dsar/internal/expiry"
)

type scanRow struct {
	Strategy       string    `json:"strategy"`
	ScopeID        string    `json:"scopeId"`
	Level          string    `json:"level"`
	ComparisonTime time.Time `json:"comparisonTime"`
	ExpiresAt      time.Time `json:"expiresAt"`
	PurposeID      string    `json:"purposeId,omitempty"`
	Purpose        string    `json:"purpose"`
	Retention      string    `json:"retention"`
	Source         string    `json:"source"`
}

func toScanRow(rs expiry.ResolvedScope) scanRow {
	row := scanRow{
		Strategy:       rs.Strategy,
		ScopeID:        rs.Scope.ID,
		Level:          rs.Scope.Level.String(),
		ComparisonTime: rs.ComparisonTime,
		ExpiresAt:      rs.ExpiresAt,
	}
	if e := rs.Effective; e != nil {
		row.Retention = e.Retention().String()
		row.Source = e.PurposeSource.String()
		if e.Purpose != nil {
			row.PurposeID = e.Purpose.ID
			row.Purpose = e.Purpose.Name
		}
	}
	return row
}

func newScanCommand(rt *session) *cobra.Command {
	var strategies []string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List expired scopes without deleting anything",
		Long: `List the scopes whose retention period has run out.

The scan is read-only: nothing is recorded or purged. Scopes already cleaned
by an earlier deletion run are left out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := rt.format()
			if err != nil {
				return err
			}
			if err := validStrategies(strategies); err != nil {
				return err
			}

			return rt.withApp(cmd, func(_ config.Config, a *app.App) error {
				var rows []scanRow
				for _, sc := range selectScanners(a.Scanners, strategies) {
					for rs, err := range sc.Scan(cmd.Context()) {
						if err != nil {
							return fmt.Errorf("%w: %s scan: %v", ErrRuntime, sc.Strategy(), err)
						}
						rows = append(rows, toScanRow(rs))
					}
				}

				out := cmd.OutOrStdout()
				if format == formatJSON {
					if rows == nil {
						rows = []scanRow{}
					}
					return printJSON(out, rows)
				}
				t := newTable(out, "STRATEGY", "SCOPE", "LEVEL", "SINCE", "EXPIRED", "PURPOSE", "RETENTION", "SOURCE")
				for _, r := range rows {
					t.row(r.Strategy, r.ScopeID, r.Level, formatTime(r.ComparisonTime), formatTime(r.ExpiresAt),
						orDash(r.Purpose), r.Retention, r.Source)
				}
				if err := t.flush(); err != nil {
					return err
				}
				fmt.Fprintf(out, "%d expired scope(s)\n", len(rows))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&strategies, "strategy", nil, "Limit to strategies: membership, inactivity")
	return cmd
}

func validStrategies(names []string) error {
	for _, n := range names {
		if n != expiry.StrategyMembership && n != expiry.StrategyInactivity {
			return fmt.Errorf("%w: unknown strategy %q", ErrUsage, n)
		}
	}
	return nil
}

func selectScanners(all []*expiry.Scanner, names []string) []*expiry.Scanner {
	if len(names) == 0 {
		return all
	}
	var out []*expiry.Scanner
	for _, s := range all {
		if slices.Contains(names, s.Strategy()) {
			out = append(out, s)
		}
	}
	return out
}

func selectDeleters(all []*expiry.Deleter, names []string) []*expiry.Deleter {
	if len(names) == 0 {
		return all
	}
	var out []*expiry.Deleter
	for _, d := range all {
		if slices.Contains(names, d.Strategy()) {
			out = append(out, d)
		}
	}
	return out
}
