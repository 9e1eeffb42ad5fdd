package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/privacyops/dsar/internal/app"
	"github.com/privacyops/dsar/internal/config"
	"github.com/privacyops/dsar/internal/retention"
)

type policyView struct {
	ScopeID        string `json:"scopeId"`
	Level          string `json:"level"`
	Option         string `json:"option,omitempty"`
	PurposeID      string `json:"purposeId,omitempty"`
	Purpose        string `json:"purpose"`
	Retention      string `json:"retention"`
	PurposeSource  string `json:"purposeSource"`
	CategoryID     string `json:"categoryId,omitempty"`
	Category       string `json:"category,omitempty"`
	CategorySource string `json:"categorySource"`
	SourceScopeID  string `json:"sourceScopeId,omitempty"`
}

func toPolicyView(e *retention.Effective) policyView {
	v := policyView{
		Retention:      e.Retention().String(),
		PurposeSource:  e.PurposeSource.String(),
		CategorySource: e.CategorySource.String(),
		SourceScopeID:  e.SourceScopeID,
	}
	if e.Scope != nil {
		v.ScopeID = e.Scope.ID
		v.Level = e.Scope.Level.String()
	}
	if e.Purpose != nil {
		v.PurposeID = e.Purpose.ID
		v.Purpose = e.Purpose.Name
	}
	if e.Category != nil {
		v.CategoryID = e.Category.ID
		v.Category = e.Category.Name
	}
	return v
}

func newResolveCommand(rt *session) *cobra.Command {
	var (
		purposeID string
		preview   bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <scope-id>",
		Short: "Show the effective retention policy of a scope",
		Long: `Show the purpose and category that apply to a scope and where they come
from: the scope itself, an ancestor, its level or the system defaults.

--purpose answers "what if this scope were bound to that purpose"; an empty
value means "what if it inherited". --preview lists the outcome for every
purpose in the registry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rt.format()
			if err != nil {
				return err
			}
			scopeID := args[0]

			return rt.withApp(cmd, func(_ config.Config, a *app.App) error {
				var views []policyView
				if preview {
					previews, err := a.Resolver.PreviewRetentions(cmd.Context(), scopeID)
					if err != nil {
						return fmt.Errorf("%w: %v", ErrRuntime, err)
					}
					for _, p := range previews {
						v := toPolicyView(p.Effective)
						v.Option = p.OptionPurposeID
						if v.Option == "" {
							v.Option = "inherit"
						}
						views = append(views, v)
					}
				} else {
					var opts retention.ResolveOptions
					if cmd.Flags().Changed("purpose") {
						opts.OverridePurposeID = &purposeID
					}
					e, err := a.Resolver.Resolve(cmd.Context(), scopeID, opts)
					if err != nil {
						return fmt.Errorf("%w: %v", ErrRuntime, err)
					}
					views = append(views, toPolicyView(e))
				}

				out := cmd.OutOrStdout()
				if format == formatJSON {
					if !preview {
						return printJSON(out, views[0])
					}
					return printJSON(out, views)
				}
				headers := []string{"SCOPE", "LEVEL", "PURPOSE", "RETENTION", "FROM", "CATEGORY", "FROM"}
				if preview {
					headers = append([]string{"OPTION"}, headers...)
				}
				t := newTable(out, headers...)
				for _, v := range views {
					cols := []string{v.ScopeID, v.Level, orDash(v.Purpose), v.Retention, v.PurposeSource,
						orDash(v.Category), v.CategorySource}
					if preview {
						cols = append([]string{v.Option}, cols...)
					}
					t.row(cols...)
				}
				return t.flush()
			})
		},
	}
	cmd.Flags().StringVar(&purposeID, "purpose", "", "Resolve as if the scope were bound to this purpose")
	cmd.Flags().BoolVar(&preview, "preview", false, "Show the outcome for every purpose option")
	cmd.MarkFlagsMutuallyExclusive("purpose", "preview")
	return cmd
}
