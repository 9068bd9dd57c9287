package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/adflow/adflow/internal/experiment"
	"github.com/adflow/adflow/internal/stats"
	"github.com/adflow/adflow/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func (a *app) withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(a.cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func (a *app) experimentService(s *store.SQLiteStore) (*experiment.Service, error) {
	mode, err := stats.ParsePValueMode(a.cfg.Stats.PValueMode)
	if err != nil {
		return nil, err
	}
	return experiment.NewService(s, experiment.WithLogger(a.logger), experiment.WithPValueMode(mode)), nil
}

// tokenFilePath returns the configured token file, or one alongside the
// database.
func (a *app) tokenFilePath() string {
	if a.cfg.Server.TokenFile != "" {
		return a.cfg.Server.TokenFile
	}
	return filepath.Join(filepath.Dir(a.cfg.Database.Path), ".adflow-token")
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id: %q", what, s)
	}
	return id, nil
}

// friendly turns store.ErrNotFound into a readable message.
func friendly(err error, what string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %d not found", what, id)
	}
	return err
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", rate)
}
