package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/adflow/adflow/internal/config"
	"github.com/adflow/adflow/internal/logging"
)

// app carries the global flags and the configuration they resolve to.
type app struct {
	configPath string
	dbPath     string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "adflow",
		Short: "adflow - question and ad flows with flow-strategy A/B testing",
		Long: `adflow serves questionnaire flows that interleave questions and ads,
and A/B tests the progressive, minimal and front-loaded flow strategies.
Single Go binary, embedded SQLite, optional Redis state cache.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	// Global flags
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./adflow.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides config)")

	root.AddCommand(
		newServeCmd(a),
		newTokenCmd(a),
		newSiteCmd(a),
		newQuestionCmd(a),
		newCampaignCmd(a),
		newExperimentCmd(a),
		newSimulateCmd(a),
		newExportCmd(a),
	)
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	return nil
}
