package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/listsync/internal/config"
)

// ViewSummary describes one validated view.
type ViewSummary struct {
	Name            string   `json:"name"`
	Resource        string   `json:"resource"`
	Namespaces      []string `json:"namespaces"`
	PageSize        int      `json:"page_size"`
	Limit           int      `json:"limit"`
	RefreshInterval string   `json:"refresh_interval"`
	Filtered        bool     `json:"filtered"`
	Pruned          bool     `json:"pruned"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool          `json:"valid"`
	Views []ViewSummary `json:"views"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a view configuration",
		Long: `Load a CUE view configuration (a .cue file or a directory holding one
package), apply schema defaults and report every declared view.

Exit codes:
  0 - Configuration valid
  1 - Configuration invalid

Examples:
  listsync validate ./views.cue
  listsync validate ./config --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(path)
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) && cfgErr.Pos.IsValid() {
			return formatter.Failure(ExitFailure, ErrCodeConfig, err.Error(), map[string]any{
				"field": cfgErr.Field,
				"line":  cfgErr.Pos.Line(),
			})
		}
		return formatter.Failure(ExitFailure, ErrCodeConfig, err.Error(), nil)
	}

	result := ValidationResult{Valid: true, Views: []ViewSummary{}}
	for _, name := range cfg.Names() {
		v := cfg.Views[name]
		formatter.VerboseLog("Validated view: %s", name)
		result.Views = append(result.Views, summarizeView(v))
	}

	return formatter.Success(result, func(w io.Writer) {
		for _, v := range result.Views {
			ns := "all namespaces"
			if len(v.Namespaces) > 0 {
				ns = fmt.Sprintf("%v", v.Namespaces)
			}
			fmt.Fprintf(w, "  %s: %s in %s (page size %d, limit %d, refresh %s)\n",
				v.Name, v.Resource, ns, v.PageSize, v.Limit, v.RefreshInterval)
		}
		fmt.Fprintf(w, "✓ %d view(s) valid\n", len(result.Views))
	})
}

func summarizeView(v config.View) ViewSummary {
	ns := v.Namespaces
	if ns == nil {
		ns = []string{}
	}
	return ViewSummary{
		Name:            v.Name,
		Resource:        v.GVK().String(),
		Namespaces:      ns,
		PageSize:        v.PageSize,
		Limit:           v.Limit,
		RefreshInterval: v.Interval().String(),
		Filtered:        v.Filter() != nil,
		Pruned:          v.Prune() != nil,
	}
}
