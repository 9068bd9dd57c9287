package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/experiment"
	"github.com/adflow/adflow/internal/store"
)

func newExperimentResultsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "results <experimentId>",
		Short: "Show per-flow results and a recommendation",
		Long:  `Show completion, ad and revenue metrics per flow type, with confidence intervals and a recommendation.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "experiment")
			if err != nil {
				return err
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				svc, err := a.experimentService(s)
				if err != nil {
					return err
				}

				e, err := svc.Get(ctx, id)
				if err != nil {
					return friendly(err, "experiment", id)
				}
				res, err := svc.CalculateResults(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to calculate results: %w", err)
				}

				printResults(cmd.OutOrStdout(), e, res)
				return nil
			})
		},
	}
}

func printResults(out io.Writer, e *store.Experiment, res *experiment.Results) {
	fmt.Fprintf(out, "EXPERIMENT: %s (#%d, site %d)\n", e.Name, e.ID, e.SiteID)
	fmt.Fprintf(out, "STATUS: %s\n", e.Status)
	if e.StartDate != nil {
		fmt.Fprintf(out, "STARTED: %s\n", e.StartDate.Format("2006-01-02"))
	}
	fmt.Fprintf(out, "SESSIONS: %s\n", formatNumber(res.TotalSessions))
	fmt.Fprintln(out)

	ciLabel := fmt.Sprintf("%.0f%% CI", e.ConfidenceLevel*100)
	fmt.Fprintf(out, "%-13s  %-8s  %-10s  %-6s  %-6s  %-9s  %-9s  %s\n",
		"FLOW", "SESSIONS", "COMPLETION", "ADS", "CTR", "REVENUE", "REV/SESS", ciLabel)
	fmt.Fprintln(out, strings.Repeat("─", 90))

	var winner string
	if w := res.Recommendation.WinningFlow; w != nil {
		winner = string(*w)
	}

	for _, r := range res.Results {
		indicator := ""
		if string(r.FlowType) == winner {
			indicator = " ← WINNER"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", r.ConfidenceInterval.Lower, r.ConfidenceInterval.Upper)
		if r.Sessions == 0 {
			ciStr = "N/A"
		}

		fmt.Fprintf(out, "%-13s  %-8d  %-10s  %-6.1f  %-6s  %-9s  %-9s  %s%s\n",
			r.FlowType,
			r.Sessions,
			formatPercent(r.CompletionRate),
			r.AvgAdsShown,
			formatPercent(r.ClickThroughRate),
			r.TotalRevenue.StringFixed(2),
			r.RevenuePerSession.StringFixed(2),
			ciStr,
			indicator,
		)
	}

	fmt.Fprintln(out)
	rec := res.Recommendation
	fmt.Fprintf(out, "Recommendation: %s\n", rec.Recommendation)
	if rec.SessionsNeeded > 0 {
		fmt.Fprintf(out, "Sessions needed: %s more\n", formatNumber(rec.SessionsNeeded))
	}
	if rec.WinningFlow != nil {
		fmt.Fprintf(out, "Confidence: %.1f%%\n", rec.Confidence)
	}
}
