package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/store"
)

func newSiteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "site",
		Short: "Manage sites and their flow configuration",
	}
	cmd.AddCommand(newSiteCreateCmd(a), newSiteListCmd(a), newSiteConfigCmd(a))
	return cmd
}

// flowFlags binds the flow configuration flags shared by site create and
// site config.
type flowFlags struct {
	flowType       string
	questionsPerAd int
	maxQuestions   int
	maxAds         int
	requireEmail   bool
}

func (f *flowFlags) register(cmd *cobra.Command) {
	d := flow.DefaultConfig()
	cmd.Flags().StringVar(&f.flowType, "type", string(d.Type), "flow type (progressive, minimal, front_loaded)")
	cmd.Flags().IntVar(&f.questionsPerAd, "questions-per-ad", d.QuestionsPerAd, "questions between ads (progressive)")
	cmd.Flags().IntVar(&f.maxQuestions, "max-questions", d.MaxQuestions, "maximum questions per session")
	cmd.Flags().IntVar(&f.maxAds, "max-ads", d.MaxAds, "maximum ads per session")
	cmd.Flags().BoolVar(&f.requireEmail, "require-email", d.RequireEmail, "start with email capture and personal info")
}

func (f *flowFlags) changed(cmd *cobra.Command) bool {
	for _, name := range []string{"type", "questions-per-ad", "max-questions", "max-ads", "require-email"} {
		if cmd.Flags().Changed(name) {
			return true
		}
	}
	return false
}

// apply overlays the flags the user set onto cfg.
func (f *flowFlags) apply(cmd *cobra.Command, cfg flow.Config) (flow.Config, error) {
	changed := cmd.Flags().Changed
	if changed("type") {
		t, err := flow.ParseType(f.flowType)
		if err != nil {
			return cfg, err
		}
		cfg.Type = t
	}
	if changed("questions-per-ad") {
		cfg.QuestionsPerAd = f.questionsPerAd
	}
	if changed("max-questions") {
		cfg.MaxQuestions = f.maxQuestions
	}
	if changed("max-ads") {
		cfg.MaxAds = f.maxAds
	}
	if changed("require-email") {
		cfg.RequireEmail = f.requireEmail
	}
	if cfg.QuestionsPerAd < 0 || cfg.MaxQuestions < 0 || cfg.MaxAds < 0 {
		return cfg, fmt.Errorf("flow limits must not be negative")
	}
	return cfg, nil
}

func newSiteCreateCmd(a *app) *cobra.Command {
	var domain string
	var ff flowFlags

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a site",
		Long: `Create a site. Flow flags that are not given keep their defaults
(progressive, 2 questions per ad, 6 questions, 3 ads, email required).

Examples:
  adflow site create quiz --domain quiz.example.com
  adflow site create quiz --type minimal --max-questions 4 --require-email=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *flow.Config
			if ff.changed(cmd) {
				c, err := ff.apply(cmd, flow.DefaultConfig())
				if err != nil {
					return err
				}
				cfg = &c
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				site, err := s.CreateSite(cmd.Context(), args[0], domain, cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created site %d '%s'\n", site.ID, site.Name)
				printFlowConfig(cmd, site.EffectiveFlowConfig())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "site domain (optional)")
	ff.register(cmd)
	return cmd
}

func newSiteListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *store.SQLiteStore) error {
				sites, err := s.ListSites(cmd.Context())
				if err != nil {
					return err
				}
				if len(sites) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sites yet. Create one with: adflow site create <name>")
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tDOMAIN\tFLOW\tQUESTIONS\tADS\tEMAIL\tCREATED")
				for _, site := range sites {
					cfg := site.EffectiveFlowConfig()
					flowType := string(cfg.Type)
					if site.FlowConfig == nil {
						flowType += " (default)"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
						site.ID, site.Name, site.Domain, flowType,
						cfg.MaxQuestions, cfg.MaxAds, cfg.RequireEmail,
						site.CreatedAt.Format("2006-01-02"),
					)
				}
				return w.Flush()
			})
		},
	}
}

func newSiteConfigCmd(a *app) *cobra.Command {
	var ff flowFlags

	cmd := &cobra.Command{
		Use:   "config <siteId>",
		Short: "Show or change a site's flow configuration",
		Long: `Show a site's flow configuration, or update it when flow flags are given.

Examples:
  adflow site config 1
  adflow site config 1 --type front_loaded --max-ads 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "site")
			if err != nil {
				return err
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				site, err := s.GetSite(ctx, id)
				if err != nil {
					return friendly(err, "site", id)
				}

				cfg, err := ff.apply(cmd, site.EffectiveFlowConfig())
				if err != nil {
					return err
				}
				if ff.changed(cmd) {
					if err := s.SetSiteFlowConfig(ctx, id, cfg); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Updated flow configuration of site %d\n", id)
				}
				printFlowConfig(cmd, cfg)
				return nil
			})
		},
	}

	ff.register(cmd)
	return cmd
}

func printFlowConfig(cmd *cobra.Command, cfg flow.Config) {
	data, _ := json.MarshalIndent(cfg, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
}
