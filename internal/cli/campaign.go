package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/store"
)

func newCampaignCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage ad campaigns that sponsor questions",
	}
	cmd.AddCommand(newCampaignAddCmd(a), newCampaignListCmd(a))
	return cmd
}

func newCampaignAddCmd(a *app) *cobra.Command {
	var (
		bid       string
		questions []string
		inactive  bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a campaign",
		Long: `Add a campaign. Questions it targets are shown earlier in flows,
highest bid first.

Example:
  adflow campaign add "Running shoes" --bid 1.25 --questions q-age,q-sport`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cpc, err := decimal.NewFromString(bid)
			if err != nil {
				return fmt.Errorf("invalid bid %q: %w", bid, err)
			}
			if cpc.IsNegative() {
				return fmt.Errorf("bid must not be negative")
			}

			var targets []flow.QuestionTarget
			for _, id := range trimAll(questions) {
				targets = append(targets, flow.QuestionTarget{QuestionID: id})
			}

			c := &flow.Campaign{
				Name:      args[0],
				Active:    !inactive,
				CPCBid:    cpc,
				Targeting: flow.Targeting{Questions: targets},
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				if err := s.CreateCampaign(cmd.Context(), c); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created campaign %d '%s' (bid %s, %d questions)\n",
					c.ID, c.Name, c.CPCBid.StringFixed(2), len(targets))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&bid, "bid", "0", "cost-per-click bid")
	cmd.Flags().StringSliceVar(&questions, "questions", nil, "comma-separated targeted question ids")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the campaign paused")
	return cmd
}

func newCampaignListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				campaigns, err := s.ListCampaigns(cmd.Context())
				if err != nil {
					return err
				}
				if len(campaigns) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No campaigns yet")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tACTIVE\tBID\tQUESTIONS")
				for _, c := range campaigns {
					fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\n",
						c.ID, c.Name, c.Active, c.CPCBid.StringFixed(2), strings.Join(c.Targeting.ReferencedQuestionIDs(), ", "))
				}
				return w.Flush()
			})
		},
	}
}
