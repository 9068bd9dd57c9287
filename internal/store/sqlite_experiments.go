package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adflow/adflow/internal/flow"
)

const experimentColumns = `id, site_id, name, traffic_split, status, min_sample_size, confidence_level,
	start_date, end_date, created_at, updated_at`

func (s *SQLiteStore) CreateExperiment(ctx context.Context, e *Experiment) error {
	splitJSON, err := json.Marshal(e.TrafficSplit)
	if err != nil {
		return fmt.Errorf("failed to marshal traffic split: %w", err)
	}
	if e.Status == "" {
		e.Status = StatusDraft
	}

	now := s.now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO flow_ab_tests (site_id, name, traffic_split, status, min_sample_size, confidence_level,
			start_date, end_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SiteID, e.Name, string(splitJSON), string(e.Status), e.MinSampleSize, e.ConfidenceLevel,
		nullableTime(e.StartDate), nullableTime(e.EndDate), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	e.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.CreatedAt = time.Unix(now, 0)
	e.UpdatedAt = e.CreatedAt
	return nil
}

func scanExperiment(row interface{ Scan(...any) error }) (*Experiment, error) {
	var e Experiment
	var splitJSON string
	var startDate, endDate sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&e.ID, &e.SiteID, &e.Name, &splitJSON, &e.Status, &e.MinSampleSize, &e.ConfidenceLevel,
		&startDate, &endDate, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(splitJSON), &e.TrafficSplit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traffic split: %w", err)
	}
	e.StartDate = timeFromNull(startDate)
	e.EndDate = timeFromNull(endDate)
	e.CreatedAt = time.Unix(createdAt, 0)
	e.UpdatedAt = time.Unix(updatedAt, 0)
	return &e, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, id int64) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+experimentColumns+` FROM flow_ab_tests WHERE id = ?`, id)
	e, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return e, nil
}

// ListExperiments returns the experiments of a site, or of every site when
// siteID is 0, newest first.
func (s *SQLiteStore) ListExperiments(ctx context.Context, siteID int64) ([]*Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM flow_ab_tests`
	var args []any
	if siteID != 0 {
		query += ` WHERE site_id = ?`
		args = append(args, siteID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

// GetRunningExperiment returns the site's running experiment. Should more
// than one be running, the most recently started wins.
func (s *SQLiteStore) GetRunningExperiment(ctx context.Context, siteID int64) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM flow_ab_tests
		 WHERE site_id = ? AND status = ? ORDER BY start_date DESC, id DESC LIMIT 1`,
		siteID, string(StatusRunning),
	)
	e, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get running experiment: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) UpdateExperiment(ctx context.Context, e *Experiment) error {
	splitJSON, err := json.Marshal(e.TrafficSplit)
	if err != nil {
		return fmt.Errorf("failed to marshal traffic split: %w", err)
	}

	now := s.now().Unix()
	result, err := s.db.ExecContext(ctx,
		`UPDATE flow_ab_tests SET name = ?, traffic_split = ?, status = ?, min_sample_size = ?,
			confidence_level = ?, start_date = ?, end_date = ?, updated_at = ?
		 WHERE id = ?`,
		e.Name, string(splitJSON), string(e.Status), e.MinSampleSize, e.ConfidenceLevel,
		nullableTime(e.StartDate), nullableTime(e.EndDate), now, e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	e.UpdatedAt = time.Unix(now, 0)
	return nil
}

// InsertSession records a session start with zeroed counters. A second
// insert for the same experiment and session returns ErrAlreadyExists.
func (s *SQLiteStore) InsertSession(ctx context.Context, sess *ABSession) error {
	now := s.now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO flow_ab_test_sessions
			(experiment_id, session_id, flow_type, device_type, user_agent, conversion_value, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '0', ?, ?)`,
		sess.ExperimentID, sess.SessionID, string(sess.FlowType), sess.DeviceType, sess.UserAgent, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	sess.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	sess.QuestionsAnswered, sess.AdsShown, sess.AdsClicked, sess.TimeSpent = 0, 0, 0, 0
	sess.CompletedFlow = false
	sess.AbandonedAt = nil
	sess.ConversionValue = decimal.Zero
	sess.CreatedAt = time.Unix(now, 0)
	sess.UpdatedAt = sess.CreatedAt
	return nil
}

const sessionColumns = `id, experiment_id, session_id, flow_type, device_type, user_agent, questions_answered,
	ads_shown, ads_clicked, completed_flow, abandoned_at, conversion_value, time_spent, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*ABSession, error) {
	var sess ABSession
	var flowType, conversionValue string
	var abandonedAt sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&sess.ID, &sess.ExperimentID, &sess.SessionID, &flowType, &sess.DeviceType, &sess.UserAgent,
		&sess.QuestionsAnswered, &sess.AdsShown, &sess.AdsClicked, &sess.CompletedFlow, &abandonedAt,
		&conversionValue, &sess.TimeSpent, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	sess.FlowType = flow.Type(flowType)
	if abandonedAt.Valid {
		sess.AbandonedAt = &abandonedAt.String
	}
	sess.ConversionValue, err = decimal.NewFromString(conversionValue)
	if err != nil {
		return nil, fmt.Errorf("session %s has invalid conversion value %q: %w", sess.SessionID, conversionValue, err)
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, experimentID int64, sessionID string) (*ABSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM flow_ab_test_sessions WHERE experiment_id = ? AND session_id = ?`,
		experimentID, sessionID,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// UpdateSession applies the non-nil fields of u to one session row.
func (s *SQLiteStore) UpdateSession(ctx context.Context, experimentID int64, sessionID string, u SessionUpdate) error {
	if u.empty() {
		_, err := s.GetSession(ctx, experimentID, sessionID)
		return err
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if u.QuestionsAnswered != nil {
		set("questions_answered", *u.QuestionsAnswered)
	}
	if u.AdsShown != nil {
		set("ads_shown", *u.AdsShown)
	}
	if u.AdsClicked != nil {
		set("ads_clicked", *u.AdsClicked)
	}
	if u.CompletedFlow != nil {
		set("completed_flow", *u.CompletedFlow)
	}
	if u.AbandonedAt != nil {
		set("abandoned_at", *u.AbandonedAt)
	}
	if u.ConversionValue != nil {
		set("conversion_value", u.ConversionValue.String())
	}
	if u.TimeSpent != nil {
		set("time_spent", *u.TimeSpent)
	}
	set("updated_at", s.now().Unix())

	args = append(args, experimentID, sessionID)
	result, err := s.db.ExecContext(ctx,
		`UPDATE flow_ab_test_sessions SET `+strings.Join(sets, ", ")+` WHERE experiment_id = ? AND session_id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return requireRow(result)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, experimentID int64) ([]*ABSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM flow_ab_test_sessions WHERE experiment_id = ? ORDER BY id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ABSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// SaveFlowSession inserts or replaces the live state of a session.
func (s *SQLiteStore) SaveFlowSession(ctx context.Context, fs *FlowSession) error {
	stateJSON, err := json.Marshal(fs.State)
	if err != nil {
		return fmt.Errorf("failed to marshal flow state: %w", err)
	}
	configJSON, err := json.Marshal(fs.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal flow config: %w", err)
	}
	questions := fs.Questions
	if questions == nil {
		questions = []flow.Question{}
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("failed to marshal flow questions: %w", err)
	}

	var experimentID sql.NullInt64
	if fs.ExperimentID != nil {
		experimentID = sql.NullInt64{Int64: *fs.ExperimentID, Valid: true}
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flow_sessions (session_id, site_id, experiment_id, flow_type, config, questions, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			site_id = excluded.site_id,
			experiment_id = excluded.experiment_id,
			flow_type = excluded.flow_type,
			config = excluded.config,
			questions = excluded.questions,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		fs.SessionID, fs.SiteID, experimentID, string(fs.FlowType), string(configJSON), string(questionsJSON),
		string(stateJSON), now.Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save flow session: %w", err)
	}

	if fs.CreatedAt.IsZero() {
		fs.CreatedAt = time.Unix(now.Unix(), 0)
	}
	fs.UpdatedAt = time.Unix(now.Unix(), 0)
	return nil
}

func (s *SQLiteStore) GetFlowSession(ctx context.Context, sessionID string) (*FlowSession, error) {
	var fs FlowSession
	var experimentID sql.NullInt64
	var flowType, configJSON, questionsJSON, stateJSON string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, site_id, experiment_id, flow_type, config, questions, state, created_at, updated_at
		 FROM flow_sessions WHERE session_id = ?`, sessionID,
	).Scan(&fs.SessionID, &fs.SiteID, &experimentID, &flowType, &configJSON, &questionsJSON, &stateJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow session: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &fs.State); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow state: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &fs.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow config: %w", err)
	}
	if err := json.Unmarshal([]byte(questionsJSON), &fs.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow questions: %w", err)
	}
	if experimentID.Valid {
		id := experimentID.Int64
		fs.ExperimentID = &id
	}
	fs.FlowType = flow.Type(flowType)
	fs.CreatedAt = time.Unix(createdAt, 0)
	fs.UpdatedAt = time.Unix(updatedAt, 0)
	return &fs, nil
}
