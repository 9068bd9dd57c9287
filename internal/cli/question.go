package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/flow"
	"github.com/adflow/adflow/internal/store"
)

func newQuestionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "question",
		Short: "Manage a site's questions",
	}
	cmd.AddCommand(newQuestionAddCmd(a), newQuestionListCmd(a))
	return cmd
}

func newQuestionAddCmd(a *app) *cobra.Command {
	var (
		id       string
		qType    string
		options  []string
		position int
	)

	cmd := &cobra.Command{
		Use:   "add <siteId> <text>",
		Short: "Add a question to a site",
		Long: `Add a question to a site. Without --position the question is
appended after the site's existing questions.

Examples:
  adflow question add 1 "How old are you?" --type choice --options "18-24,25-34,35+"
  adflow question add 1 "What brings you here?" --id intent`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteID, err := parseID(args[0], "site")
			if err != nil {
				return err
			}
			text := strings.TrimSpace(args[1])
			if text == "" {
				return fmt.Errorf("question text is required")
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				if _, err := s.GetSite(ctx, siteID); err != nil {
					return friendly(err, "site", siteID)
				}

				if !cmd.Flags().Changed("position") {
					existing, err := s.ListQuestions(ctx, siteID)
					if err != nil {
						return err
					}
					position = len(existing) + 1
				}

				q := &store.Question{
					Question: flow.Question{
						ID:      id,
						Text:    text,
						Type:    qType,
						Options: trimAll(options),
					},
					SiteID:   siteID,
					Position: position,
				}
				if err := s.CreateQuestion(ctx, q); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added question %s to site %d at position %d\n", q.ID, siteID, q.Position)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "question id (default: generated)")
	cmd.Flags().StringVar(&qType, "type", "text", "question type (text, choice, ...)")
	cmd.Flags().StringSliceVar(&options, "options", nil, "comma-separated answer options")
	cmd.Flags().IntVar(&position, "position", 0, "position in the site's question order")
	return cmd
}

func newQuestionListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <siteId>",
		Short: "List a site's questions in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			siteID, err := parseID(args[0], "site")
			if err != nil {
				return err
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				questions, err := s.ListQuestions(cmd.Context(), siteID)
				if err != nil {
					return err
				}
				if len(questions) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Site %d has no questions\n", siteID)
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "POS\tID\tTYPE\tTEXT\tOPTIONS")
				for _, q := range questions {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", q.Position, q.ID, q.Type, q.Text, strings.Join(q.Options, ", "))
				}
				return w.Flush()
			})
		},
	}
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
