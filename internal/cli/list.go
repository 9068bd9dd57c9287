package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/store"
)

func newExperimentListCmd(a *app) *cobra.Command {
	var siteID int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Long:  `List experiments with their status, split and session counts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				svc, err := a.experimentService(s)
				if err != nil {
					return err
				}

				experiments, err := svc.List(ctx, siteID)
				if err != nil {
					return fmt.Errorf("failed to list experiments: %w", err)
				}

				if len(experiments) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No experiments yet.")
					fmt.Fprintln(cmd.OutOrStdout())
					fmt.Fprintln(cmd.OutOrStdout(), "Create one with:")
					fmt.Fprintln(cmd.OutOrStdout(), "  adflow experiment create <siteId> <name>")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tSITE\tNAME\tSTATUS\tSPLIT\tSESSIONS\tCREATED")

				for _, e := range experiments {
					sessions, err := s.ListSessions(ctx, e.ID)
					if err != nil {
						return fmt.Errorf("failed to get sessions for experiment %d: %w", e.ID, err)
					}

					p, m := e.TrafficSplit.Buckets()
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d/%d/%d\t%s\t%s\n",
						e.ID,
						e.SiteID,
						e.Name,
						strings.ToUpper(string(e.Status)),
						p, m, 100-p-m,
						formatNumber(len(sessions)),
						e.CreatedAt.Format("2006-01-02"),
					)
				}

				return w.Flush()
			})
		},
	}

	cmd.Flags().Int64Var(&siteID, "site", 0, "only list experiments of this site")
	return cmd
}
