package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/store"
)

func newExportCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <experimentId>",
		Short: "Export an experiment's session records",
		Long: `Export an experiment's session records in CSV or JSON format.

Examples:
  adflow export 1 --format csv > sessions.csv
  adflow export 1 --format json > sessions.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("invalid format: must be 'csv' or 'json'")
			}
			id, err := parseID(args[0], "experiment")
			if err != nil {
				return err
			}

			return a.withStore(func(s *store.SQLiteStore) error {
				ctx := cmd.Context()
				if _, err := s.GetExperiment(ctx, id); err != nil {
					return friendly(err, "experiment", id)
				}

				sessions, err := s.ListSessions(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to get sessions: %w", err)
				}

				if format == "csv" {
					return exportCSV(cmd.OutOrStdout(), sessions)
				}
				return exportJSON(cmd.OutOrStdout(), sessions)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	return cmd
}

func exportCSV(out io.Writer, sessions []*store.ABSession) error {
	w := csv.NewWriter(out)

	header := []string{
		"timestamp", "session_id", "flow_type", "device_type", "questions_answered",
		"ads_shown", "ads_clicked", "completed_flow", "abandoned_at", "conversion_value", "time_spent",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, sess := range sessions {
		abandoned := ""
		if sess.AbandonedAt != nil {
			abandoned = *sess.AbandonedAt
		}
		row := []string{
			strconv.FormatInt(sess.CreatedAt.Unix(), 10),
			sess.SessionID,
			string(sess.FlowType),
			sess.DeviceType,
			strconv.Itoa(sess.QuestionsAnswered),
			strconv.Itoa(sess.AdsShown),
			strconv.Itoa(sess.AdsClicked),
			strconv.FormatBool(sess.CompletedFlow),
			abandoned,
			sess.ConversionValue.String(),
			strconv.Itoa(sess.TimeSpent),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Sessions []*store.ABSession `json:"sessions"`
}

func exportJSON(out io.Writer, sessions []*store.ABSession) error {
	if sessions == nil {
		sessions = []*store.ABSession{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonExport{Sessions: sessions})
}
