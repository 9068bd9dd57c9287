package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/adflow/adflow/internal/flow"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sites (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    domain TEXT NOT NULL DEFAULT '',
    flow_config TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS questions (
    id TEXT PRIMARY KEY,
    site_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'text',
    options TEXT,
    position INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (site_id) REFERENCES sites(id)
);

CREATE INDEX IF NOT EXISTS idx_questions_site ON questions(site_id, position);

CREATE TABLE IF NOT EXISTS campaigns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    cpc_bid TEXT NOT NULL DEFAULT '0',
    targeting TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE TABLE IF NOT EXISTS flow_ab_tests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    site_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    traffic_split TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL DEFAULT 'draft',
    min_sample_size INTEGER NOT NULL DEFAULT 100,
    confidence_level REAL NOT NULL DEFAULT 0.95,
    start_date INTEGER,
    end_date INTEGER,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (site_id) REFERENCES sites(id)
);

CREATE INDEX IF NOT EXISTS idx_ab_tests_site_status ON flow_ab_tests(site_id, status);

CREATE TABLE IF NOT EXISTS flow_ab_test_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id INTEGER NOT NULL,
    session_id TEXT NOT NULL,
    flow_type TEXT NOT NULL,
    device_type TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    questions_answered INTEGER NOT NULL DEFAULT 0,
    ads_shown INTEGER NOT NULL DEFAULT 0,
    ads_clicked INTEGER NOT NULL DEFAULT 0,
    completed_flow INTEGER NOT NULL DEFAULT 0,
    abandoned_at TEXT,
    conversion_value TEXT NOT NULL DEFAULT '0',
    time_spent INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_id) REFERENCES flow_ab_tests(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ab_sessions_dedup ON flow_ab_test_sessions(experiment_id, session_id);

CREATE TABLE IF NOT EXISTS flow_sessions (
    session_id TEXT PRIMARY KEY,
    site_id INTEGER NOT NULL,
    experiment_id INTEGER,
    flow_type TEXT NOT NULL,
    config TEXT NOT NULL DEFAULT '{}',
    questions TEXT NOT NULL DEFAULT '[]',
    state TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	// Databases created before flow sessions kept a snapshot
	for _, col := range []struct{ name, ddl string }{
		{"config", `ALTER TABLE flow_sessions ADD COLUMN config TEXT NOT NULL DEFAULT '{}'`},
		{"questions", `ALTER TABLE flow_sessions ADD COLUMN questions TEXT NOT NULL DEFAULT '[]'`},
	} {
		if err := addColumnIfMissing(db, "flow_sessions", col.name, col.ddl); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func addColumnIfMissing(db *sql.DB, table, column, ddl string) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateSite(ctx context.Context, name, domain string, cfg *flow.Config) (*Site, error) {
	cfgJSON, err := marshalConfig(cfg)
	if err != nil {
		return nil, err
	}

	now := s.now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (name, domain, flow_config, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		name, domain, cfgJSON, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &Site{
		ID:         id,
		Name:       name,
		Domain:     domain,
		FlowConfig: cfg,
		CreatedAt:  time.Unix(now, 0),
		UpdatedAt:  time.Unix(now, 0),
	}, nil
}

const siteColumns = `id, name, domain, flow_config, created_at, updated_at`

func scanSite(row interface{ Scan(...any) error }) (*Site, error) {
	var site Site
	var cfgJSON sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&site.ID, &site.Name, &site.Domain, &cfgJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if cfgJSON.Valid && cfgJSON.String != "" {
		cfg, err := flow.ParseConfig([]byte(cfgJSON.String))
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", site.ID, err)
		}
		site.FlowConfig = &cfg
	}

	site.CreatedAt = time.Unix(createdAt, 0)
	site.UpdatedAt = time.Unix(updatedAt, 0)
	return &site, nil
}

func (s *SQLiteStore) GetSite(ctx context.Context, id int64) (*Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	site, err := scanSite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return site, nil
}

func (s *SQLiteStore) ListSites(ctx context.Context) ([]*Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []*Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (s *SQLiteStore) SetSiteFlowConfig(ctx context.Context, id int64, cfg flow.Config) error {
	cfgJSON, err := marshalConfig(&cfg)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE sites SET flow_config = ?, updated_at = ? WHERE id = ?`,
		cfgJSON, s.now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update flow config: %w", err)
	}
	return requireRow(result)
}

func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Type == "" {
		q.Type = "text"
	}

	var optionsJSON []byte
	if len(q.Options) > 0 {
		var err error
		optionsJSON, err = json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
	}

	now := s.now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (id, site_id, text, type, options, position, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.SiteID, q.Text, q.Type, nullableString(optionsJSON), q.Position, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}
	q.CreatedAt = time.Unix(now, 0)
	return nil
}

// ListQuestions returns a site's questions in authoring order.
func (s *SQLiteStore) ListQuestions(ctx context.Context, siteID int64) ([]*Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, site_id, text, type, options, position, created_at
		 FROM questions WHERE site_id = ? ORDER BY position, created_at, id`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		var q Question
		var optionsJSON sql.NullString
		var createdAt int64
		if err := rows.Scan(&q.ID, &q.SiteID, &q.Text, &q.Type, &optionsJSON, &q.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if optionsJSON.Valid && optionsJSON.String != "" {
			if err := json.Unmarshal([]byte(optionsJSON.String), &q.Options); err != nil {
				return nil, fmt.Errorf("failed to unmarshal options: %w", err)
			}
		}
		q.CreatedAt = time.Unix(createdAt, 0)
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c *flow.Campaign) error {
	targetingJSON, err := json.Marshal(c.Targeting)
	if err != nil {
		return fmt.Errorf("failed to marshal targeting: %w", err)
	}

	now := s.now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (name, active, cpc_bid, targeting, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Active, c.CPCBid.String(), string(targetingJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}

	c.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context) ([]flow.Campaign, error) {
	return s.queryCampaigns(ctx, `SELECT id, name, active, cpc_bid, targeting FROM campaigns ORDER BY id`)
}

func (s *SQLiteStore) ListActiveCampaigns(ctx context.Context) ([]flow.Campaign, error) {
	return s.queryCampaigns(ctx, `SELECT id, name, active, cpc_bid, targeting FROM campaigns WHERE active = 1 ORDER BY id`)
}

func (s *SQLiteStore) queryCampaigns(ctx context.Context, query string) ([]flow.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []flow.Campaign
	for rows.Next() {
		var c flow.Campaign
		var bid, targetingJSON string
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &bid, &targetingJSON); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		c.CPCBid, err = decimal.NewFromString(bid)
		if err != nil {
			return nil, fmt.Errorf("campaign %d has invalid cpc bid %q: %w", c.ID, bid, err)
		}
		if err := json.Unmarshal([]byte(targetingJSON), &c.Targeting); err != nil {
			return nil, fmt.Errorf("failed to unmarshal targeting: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func marshalConfig(cfg *flow.Config) (sql.NullString, error) {
	if cfg == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal flow config: %w", err)
	}
	return nullableString(data), nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
