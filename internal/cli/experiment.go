package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/experiment"
	"github.com/adflow/adflow/internal/store"
)

func newExperimentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experiment",
		Aliases: []string{"exp"},
		Short:   "Manage flow A/B experiments",
	}
	cmd.AddCommand(
		newExperimentCreateCmd(a),
		newExperimentListCmd(a),
		newExperimentResultsCmd(a),
		newTransitionCmd(a, "start", "Start an experiment; new sessions on its site are split across flows",
			(*experiment.Service).Start),
		newTransitionCmd(a, "pause", "Pause a running experiment; new sessions use the site's own flow",
			(*experiment.Service).Pause),
		newTransitionCmd(a, "stop", "Complete an experiment; completed experiments cannot be restarted",
			(*experiment.Service).Stop),
	)
	return cmd
}

type transition func(*experiment.Service, context.Context, int64) (*store.Experiment, error)

func newTransitionCmd(a *app, name, short string, fn transition) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <experimentId>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "experiment")
			if err != nil {
				return err
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				svc, err := a.experimentService(s)
				if err != nil {
					return err
				}
				e, err := fn(svc, cmd.Context(), id)
				if err != nil {
					return friendly(err, "experiment", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Experiment %d '%s' is now %s\n", e.ID, e.Name, e.Status)
				return nil
			})
		},
	}
}
