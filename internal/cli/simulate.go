package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/store"
)

// maxSimulatedSteps bounds a simulation in case a configuration never
// reaches completion.
const maxSimulatedSteps = 1000

func newSimulateCmd(a *app) *cobra.Command {
	var (
		flowType  string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "simulate <siteId>",
		Short: "Walk through a site's flow without recording anything",
		Long: `Drive a site's flow locally and print each step a visitor would see.

The flow type comes from --type, otherwise from the site's running
experiment (assigned by --session or a random session id), otherwise from
the site's own configuration.

Examples:
  adflow simulate 1
  adflow simulate 1 --type minimal
  adflow simulate 1 --session visitor-42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteID, err := parseID(args[0], "site")
			if err != nil {
				return err
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				site, err := s.GetSite(ctx, siteID)
				if err != nil {
					return friendly(err, "site", siteID)
				}
				cfg := site.EffectiveFlowConfig()

				if sessionID == "" {
					sessionID = uuid.NewString()
				}

				switch {
				case flowType != "":
					t, err := flow.ParseType(flowType)
					if err != nil {
						return err
					}
					cfg = cfg.WithType(t)
				default:
					svc, err := a.experimentService(s)
					if err != nil {
						return err
					}
					e, err := svc.ActiveExperiment(ctx, siteID)
					if err != nil && !errors.Is(err, store.ErrNotFound) {
						return err
					}
					if err == nil {
						cfg = cfg.WithType(svc.AssignFlowType(e, sessionID))
						fmt.Fprintf(out, "Experiment %d '%s' assigns session %s to %s\n", e.ID, e.Name, sessionID, cfg.Type)
					}
				}

				stored, err := s.ListQuestions(ctx, siteID)
				if err != nil {
					return err
				}
				questions := make([]flow.Question, len(stored))
				for i, q := range stored {
					questions[i] = q.Question
				}
				campaigns, err := s.ListActiveCampaigns(ctx)
				if err != nil {
					return err
				}

				ctl := flow.NewController(cfg, questions, campaigns)
				fmt.Fprintf(out, "Site %d '%s': %s flow, %d questions available\n\n",
					site.ID, site.Name, ctl.Config().Type, len(questions))
				return runSimulation(cmd, ctl)
			})
		},
	}

	cmd.Flags().StringVar(&flowType, "type", "", "force a flow type (progressive, minimal, front_loaded)")
	cmd.Flags().StringVar(&sessionID, "session", "", "session id used for experiment assignment")
	return cmd
}

func runSimulation(cmd *cobra.Command, ctl *flow.Controller) error {
	out := cmd.OutOrStdout()

	for step := 1; step <= maxSimulatedSteps; step++ {
		action := ctl.NextAction()
		switch action {
		case flow.ActionEmailCapture:
			fmt.Fprintf(out, "%3d. email capture\n", step)
			ctl.CompleteEmailCapture()
		case flow.ActionPersonalInfo:
			fmt.Fprintf(out, "%3d. personal info\n", step)
			ctl.CompletePersonalInfo()
		case flow.ActionQuestion:
			q, _ := ctl.CurrentQuestion()
			fmt.Fprintf(out, "%3d. question  %s: %s\n", step, q.ID, q.Text)
			ctl.CompleteQuestion()
		case flow.ActionAd:
			fmt.Fprintf(out, "%3d. ad        #%d\n", step, ctl.State().AdsShown+1)
			ctl.CompleteAd()
		case flow.ActionComplete:
			p := ctl.Progress()
			fmt.Fprintf(out, "%3d. complete\n\n", step)
			fmt.Fprintf(out, "Answered %d/%d questions, saw %d/%d ads\n",
				p.QuestionsCompleted, p.TotalQuestions, p.AdsShown, p.TotalAds)
			return nil
		default:
			return fmt.Errorf("unexpected flow action %q", action)
		}
	}
	return fmt.Errorf("flow did not complete within %d steps", maxSimulatedSteps)
}
