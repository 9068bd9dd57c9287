package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/experiment"
	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/store"
)

func newExperimentCreateCmd(a *app) *cobra.Command {
	var (
		progressive int
		minimal     int
		minSample   int
		confidence  float64
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "create <siteId> <name>",
		Short: "Create a draft experiment for a site",
		Long: `Create a draft flow experiment. Sessions hash into buckets 0-99:
the first --progressive buckets get the progressive flow, the next --minimal
get the minimal flow and the rest get front-loaded. Both default to 33.

Examples:
  adflow experiment create 1 "flow test"
  adflow experiment create 1 "two way" --progressive 50 --minimal 50
  adflow experiment create 1 "flow test" --interactive`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteID, err := parseID(args[0], "site")
			if err != nil {
				return err
			}

			var split flow.TrafficSplit
			if interactive {
				split, err = promptSplit()
				if err != nil {
					return err
				}
			} else {
				if cmd.Flags().Changed("progressive") {
					split.Progressive = &progressive
				}
				if cmd.Flags().Changed("minimal") {
					split.Minimal = &minimal
				}
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				if _, err := s.GetSite(ctx, siteID); err != nil {
					return friendly(err, "site", siteID)
				}
				svc, err := a.experimentService(s)
				if err != nil {
					return err
				}

				e, err := svc.Create(ctx, experiment.CreateParams{
					SiteID:          siteID,
					Name:            args[1],
					TrafficSplit:    split,
					MinSampleSize:   minSample,
					ConfidenceLevel: confidence,
				})
				if err != nil {
					return err
				}

				p, m := e.TrafficSplit.Buckets()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment %d '%s' (draft) on site %d\n", e.ID, e.Name, e.SiteID)
				fmt.Fprintf(out, "  progressive:  %d%%\n", p)
				fmt.Fprintf(out, "  minimal:      %d%%\n", m)
				fmt.Fprintf(out, "  front_loaded: %d%%\n", 100-p-m)
				fmt.Fprintf(out, "  min sample %d, confidence %.0f%%\n", e.MinSampleSize, e.ConfidenceLevel*100)
				fmt.Fprintf(out, "Start it with: adflow experiment start %d\n", e.ID)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&progressive, "progressive", 33, "percent of sessions on the progressive flow")
	cmd.Flags().IntVar(&minimal, "minimal", 33, "percent of sessions on the minimal flow")
	cmd.Flags().IntVar(&minSample, "min-sample", experiment.DefaultMinSampleSize, "sessions required before a winner is declared")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.95, "confidence level (0-1)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "choose the traffic split interactively")
	return cmd
}

// promptSplit asks for the traffic split on the terminal.
func promptSplit() (flow.TrafficSplit, error) {
	presets := []string{
		"Even three-way (33/33/34)",
		"Progressive vs minimal (50/50)",
		"Progressive vs front-loaded (50/50)",
		"Custom",
	}

	sel := promptui.Select{
		Label: "Traffic split",
		Items: presets,
		Size:  len(presets),
	}
	idx, _, err := sel.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return flow.TrafficSplit{}, fmt.Errorf("cancelled")
		}
		return flow.TrafficSplit{}, err
	}

	switch idx {
	case 0:
		return flow.TrafficSplit{}, nil
	case 1:
		return splitOf(50, 50), nil
	case 2:
		return splitOf(50, 0), nil
	}

	p, err := promptPercent("Progressive %", 100)
	if err != nil {
		return flow.TrafficSplit{}, err
	}
	m, err := promptPercent("Minimal %", 100-p)
	if err != nil {
		return flow.TrafficSplit{}, err
	}
	return splitOf(p, m), nil
}

func promptPercent(label string, limit int) (int, error) {
	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			n, err := strconv.Atoi(input)
			if err != nil {
				return errors.New("enter a whole number")
			}
			if n < 0 || n > limit {
				return fmt.Errorf("must be between 0 and %d", limit)
			}
			return nil
		},
	}
	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return 0, fmt.Errorf("cancelled")
		}
		return 0, err
	}
	return strconv.Atoi(result)
}

func splitOf(progressive, minimal int) flow.TrafficSplit {
	return flow.TrafficSplit{Progressive: &progressive, Minimal: &minimal}
}
