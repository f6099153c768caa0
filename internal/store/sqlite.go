package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matthewbaird/rentpulse/internal/types"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a SQLite database. Status transitions use a
// conditional UPDATE so concurrent approve/reject/expire calls have exactly
// one winner.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := NewSQLiteStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an already-open database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS automation_rules (
			id             TEXT PRIMARY KEY,
			seq            INTEGER NOT NULL,
			body           TEXT NOT NULL,
			trigger_count  INTEGER NOT NULL DEFAULT 0,
			last_triggered INTEGER
		);

		CREATE TABLE IF NOT EXISTS automation_settings (
			key  TEXT PRIMARY KEY,
			body TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pending_actions (
			id                TEXT PRIMARY KEY,
			unit_id           TEXT NOT NULL,
			rule_id           TEXT NOT NULL,
			rule_name         TEXT NOT NULL,
			action            TEXT NOT NULL,
			follow_ups        TEXT NOT NULL,
			recommended_value REAL NOT NULL,
			current_value     REAL NOT NULL,
			confidence        REAL NOT NULL,
			risk_level        TEXT NOT NULL,
			reasoning         TEXT NOT NULL,
			created_at        INTEGER NOT NULL,
			expires_at        INTEGER NOT NULL,
			status            TEXT NOT NULL,
			approved_by       TEXT NOT NULL DEFAULT '',
			approved_at       INTEGER,
			rejected_by       TEXT NOT NULL DEFAULT '',
			rejected_at       INTEGER,
			executed_at       INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_actions_status_created
			ON pending_actions (status, created_at DESC);

		CREATE TABLE IF NOT EXISTS automation_logs (
			id           TEXT PRIMARY KEY,
			ts           INTEGER NOT NULL,
			unit_id      TEXT NOT NULL,
			rule_id      TEXT NOT NULL,
			action_id    TEXT NOT NULL,
			action       TEXT NOT NULL,
			old_value    REAL NOT NULL,
			new_value    REAL NOT NULL,
			success      INTEGER NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			triggered_by TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_logs_unit_ts
			ON automation_logs (unit_id, ts DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrating sqlite store: %w", err)
	}
	return nil
}

// ── Rules ────────────────────────────────────────────────────────────────────

func (s *SQLiteStore) ListRules(ctx context.Context) ([]types.AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body, trigger_count, last_triggered FROM automation_rules ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var out []types.AutomationRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRule(ctx context.Context, id string) (types.AutomationRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body, trigger_count, last_triggered FROM automation_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AutomationRule{}, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) PutRule(ctx context.Context, rule types.AutomationRule) error {
	body, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encoding rule %s: %w", rule.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_rules (id, seq, body, trigger_count, last_triggered)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM automation_rules), ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			trigger_count = excluded.trigger_count,
			last_triggered = excluded.last_triggered`,
		rule.ID, string(body), rule.TriggerCount, nullTime(rule.LastTriggered))
	if err != nil {
		return fmt.Errorf("upserting rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", id, err)
	}
	return requireOneRow(res)
}

func (s *SQLiteStore) RecordTrigger(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET trigger_count = trigger_count + 1, last_triggered = ?
		WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("recording trigger on rule %s: %w", id, err)
	}
	return requireOneRow(res)
}

func scanRule(sc scanner) (types.AutomationRule, error) {
	var (
		body  string
		count int
		last  sql.NullInt64
		r     types.AutomationRule
	)
	if err := sc.Scan(&body, &count, &last); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return r, fmt.Errorf("decoding rule: %w", err)
	}
	r.TriggerCount = count
	r.LastTriggered = timePtr(last)
	return r, nil
}

// ── Settings ─────────────────────────────────────────────────────────────────

const settingsKey = "automation"

func (s *SQLiteStore) LoadSettings(ctx context.Context) (types.AutomationSettings, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM automation_settings WHERE key = ?`, settingsKey).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AutomationSettings{}, false, nil
	}
	if err != nil {
		return types.AutomationSettings{}, false, fmt.Errorf("loading settings: %w", err)
	}
	var out types.AutomationSettings
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return out, false, fmt.Errorf("decoding settings: %w", err)
	}
	return out, true, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings types.AutomationSettings) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_settings (key, body) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET body = excluded.body`, settingsKey, string(body))
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// ── Actions ──────────────────────────────────────────────────────────────────

const actionColumns = `id, unit_id, rule_id, rule_name, action, follow_ups,
	recommended_value, current_value, confidence, risk_level, reasoning,
	created_at, expires_at, status, approved_by, approved_at,
	rejected_by, rejected_at, executed_at`

func (s *SQLiteStore) CreateAction(ctx context.Context, a types.PendingAction) error {
	action, err := json.Marshal(a.Action)
	if err != nil {
		return fmt.Errorf("encoding action %s: %w", a.ID, err)
	}
	followUps, err := json.Marshal(a.FollowUps)
	if err != nil {
		return fmt.Errorf("encoding follow-ups for %s: %w", a.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UnitID, a.RuleID, a.RuleName, string(action), string(followUps),
		a.RecommendedValue, a.CurrentValue, a.Confidence, string(a.RiskLevel), a.Reasoning,
		a.CreatedAt.UnixNano(), a.ExpiresAt.UnixNano(), string(a.Status),
		a.ApprovedBy, nullTime(a.ApprovedAt), a.RejectedBy, nullTime(a.RejectedAt), nullTime(a.ExecutedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting action %s: %w", a.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetAction(ctx context.Context, id string) (types.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM pending_actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.PendingAction{}, ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) ListActions(ctx context.Context, status types.ActionStatus) ([]types.PendingAction, error) {
	query := `SELECT ` + actionColumns + ` FROM pending_actions`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var out []types.PendingAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TransitionAction(ctx context.Context, id string, from types.ActionStatus, fn func(*types.PendingAction)) (types.PendingAction, bool, error) {
	a, err := s.GetAction(ctx, id)
	if err != nil {
		return types.PendingAction{}, false, err
	}
	if a.Status != from {
		return a, false, nil
	}
	fn(&a)

	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions
		SET status = ?, approved_by = ?, approved_at = ?,
			rejected_by = ?, rejected_at = ?, executed_at = ?
		WHERE id = ? AND status = ?`,
		string(a.Status), a.ApprovedBy, nullTime(a.ApprovedAt),
		a.RejectedBy, nullTime(a.RejectedAt), nullTime(a.ExecutedAt),
		id, string(from))
	if err != nil {
		return types.PendingAction{}, false, fmt.Errorf("transitioning action %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.PendingAction{}, false, fmt.Errorf("transitioning action %s: %w", id, err)
	}
	if n == 0 {
		// Lost the race to another writer.
		current, err := s.GetAction(ctx, id)
		return current, false, err
	}
	return a, true, nil
}

func scanAction(sc scanner) (types.PendingAction, error) {
	var (
		a                                  types.PendingAction
		action, followUps, risk, status    string
		created, expires                   int64
		approvedAt, rejectedAt, executedAt sql.NullInt64
	)
	err := sc.Scan(&a.ID, &a.UnitID, &a.RuleID, &a.RuleName, &action, &followUps,
		&a.RecommendedValue, &a.CurrentValue, &a.Confidence, &risk, &a.Reasoning,
		&created, &expires, &status, &a.ApprovedBy, &approvedAt,
		&a.RejectedBy, &rejectedAt, &executedAt)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(action), &a.Action); err != nil {
		return a, fmt.Errorf("decoding action %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(followUps), &a.FollowUps); err != nil {
		return a, fmt.Errorf("decoding follow-ups for %s: %w", a.ID, err)
	}
	a.RiskLevel = types.RiskLevel(risk)
	a.Status = types.ActionStatus(status)
	a.CreatedAt = time.Unix(0, created).UTC()
	a.ExpiresAt = time.Unix(0, expires).UTC()
	a.ApprovedAt = timePtr(approvedAt)
	a.RejectedAt = timePtr(rejectedAt)
	a.ExecutedAt = timePtr(executedAt)
	return a, nil
}

// ── Logs ─────────────────────────────────────────────────────────────────────

func (s *SQLiteStore) AppendLog(ctx context.Context, e types.AutomationLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_logs
			(id, ts, unit_id, rule_id, action_id, action, old_value, new_value, success, error, triggered_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixNano(), e.UnitID, e.RuleID, e.ActionID, e.Action,
		e.OldValue, e.NewValue, e.Success, e.Error, string(e.TriggeredBy))
	if err != nil {
		return fmt.Errorf("appending log %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListLogs(ctx context.Context, q LogQuery) ([]types.AutomationLog, error) {
	var conditions []string
	var args []any
	if q.UnitID != "" {
		conditions = append(conditions, "unit_id = ?")
		args = append(args, q.UnitID)
	}
	if q.Since != nil {
		conditions = append(conditions, "ts >= ?")
		args = append(args, q.Since.UnixNano())
	}

	query := `SELECT id, ts, unit_id, rule_id, action_id, action, old_value, new_value,
		success, error, triggered_by FROM automation_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY ts DESC, rowid DESC LIMIT ?"
	args = append(args, q.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var out []types.AutomationLog
	for rows.Next() {
		var (
			e    types.AutomationLog
			ts   int64
			trig string
		)
		if err := rows.Scan(&e.ID, &ts, &e.UnitID, &e.RuleID, &e.ActionID, &e.Action,
			&e.OldValue, &e.NewValue, &e.Success, &e.Error, &trig); err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.TriggeredBy = types.TriggeredBy(trig)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ── helpers ──────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
