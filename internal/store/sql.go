package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/leadflow/internal/domain"
	"github.com/ashureev/leadflow/internal/shared"
	"github.com/bytedance/sonic"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

const (
	maxBusyRetries    = 3
	busyRetryBaseWait = 50 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	step TEXT NOT NULL,
	answers_json TEXT NOT NULL,
	follow_ups_json TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0,
	flow_completed INTEGER NOT NULL DEFAULT 0,
	phone TEXT NOT NULL DEFAULT '',
	phone_collected INTEGER NOT NULL DEFAULT 0,
	score INTEGER,
	confirmation TEXT NOT NULL DEFAULT '',
	lawyers_notified INTEGER NOT NULL DEFAULT 0,
	notify_error TEXT NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

CREATE TABLE IF NOT EXISTS leads (
	session_id TEXT PRIMARY KEY,
	phone TEXT NOT NULL,
	score INTEGER NOT NULL,
	qualified INTEGER NOT NULL DEFAULT 0,
	priority TEXT NOT NULL DEFAULT '',
	area TEXT NOT NULL DEFAULT '',
	payload_json TEXT NOT NULL,
	created_at BIGINT NOT NULL
);
`

// SQLStore implements Repository over database/sql for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *SQLStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := s.rebind(`
		SELECT id, step, answers_json, follow_ups_json, message_count, flow_completed,
		       phone, phone_collected, score, confirmation, lawyers_notified, notify_error,
		       created_at, updated_at
		FROM sessions WHERE id = ?`)

	row := s.db.QueryRowContext(ctx, query, id)

	var (
		sess                                           domain.Session
		step, answersJSON, followUpsJSON               string
		flowCompleted, phoneCollected, lawyersNotified int
		score                                          sql.NullInt64
		createdAt, updatedAt                           int64
	)
	err := row.Scan(
		&sess.ID, &step, &answersJSON, &followUpsJSON, &sess.MessageCount, &flowCompleted,
		&sess.Phone, &phoneCollected, &score, &sess.Confirmation, &lawyersNotified, &sess.NotifyError,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess.Step = domain.Step(step)
	sess.Answers = domain.Answers{}
	if err := sonic.UnmarshalString(answersJSON, &sess.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := sonic.UnmarshalString(followUpsJSON, &sess.FollowUps); err != nil {
		return nil, fmt.Errorf("decode follow-ups: %w", err)
	}
	sess.FlowCompleted = flowCompleted != 0
	sess.PhoneCollected = phoneCollected != 0
	sess.LawyersNotified = lawyersNotified != 0
	if score.Valid {
		v := int(score.Int64)
		sess.Score = &v
	}
	sess.CreatedAt = time.UnixMilli(createdAt).UTC()
	sess.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return &sess, nil
}

// SaveSession creates or replaces a session.
func (s *SQLStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	answersJSON, err := sonic.MarshalString(sess.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	followUps := sess.FollowUps
	if followUps == nil {
		followUps = []string{}
	}
	followUpsJSON, err := sonic.MarshalString(followUps)
	if err != nil {
		return fmt.Errorf("encode follow-ups: %w", err)
	}

	var score sql.NullInt64
	if sess.Score != nil {
		score = sql.NullInt64{Int64: int64(*sess.Score), Valid: true}
	}

	query := s.rebind(`
		INSERT INTO sessions (id, step, answers_json, follow_ups_json, message_count, flow_completed,
		                      phone, phone_collected, score, confirmation, lawyers_notified, notify_error,
		                      created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			step = excluded.step,
			answers_json = excluded.answers_json,
			follow_ups_json = excluded.follow_ups_json,
			message_count = excluded.message_count,
			flow_completed = excluded.flow_completed,
			phone = excluded.phone,
			phone_collected = excluded.phone_collected,
			score = excluded.score,
			confirmation = excluded.confirmation,
			lawyers_notified = excluded.lawyers_notified,
			notify_error = excluded.notify_error,
			updated_at = excluded.updated_at`)

	return s.execWithRetry(ctx, "upsert session", query,
		sess.ID, string(sess.Step), answersJSON, followUpsJSON, sess.MessageCount, boolToInt(sess.FlowCompleted),
		sess.Phone, boolToInt(sess.PhoneCollected), score, sess.Confirmation, boolToInt(sess.LawyersNotified), sess.NotifyError,
		sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli(),
	)
}

// DeleteSession removes a session.
func (s *SQLStore) DeleteSession(ctx context.Context, id string) error {
	return s.execWithRetry(ctx, "delete session", s.rebind(`DELETE FROM sessions WHERE id = ?`), id)
}

// CleanupExpiredSessions removes sessions not updated within ttl.
func (s *SQLStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).UnixMilli()
	result, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM sessions WHERE updated_at < ?`), cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// SaveLead records a collected lead.
func (s *SQLStore) SaveLead(ctx context.Context, lead domain.LeadSnapshot) error {
	payload, err := sonic.MarshalString(lead)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}
	query := s.rebind(`
		INSERT INTO leads (session_id, phone, score, qualified, priority, area, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			phone = excluded.phone,
			score = excluded.score,
			qualified = excluded.qualified,
			priority = excluded.priority,
			area = excluded.area,
			payload_json = excluded.payload_json`)

	return s.execWithRetry(ctx, "upsert lead", query,
		lead.SessionID, lead.Phone, lead.Score, boolToInt(lead.Decision.Qualified),
		lead.Decision.Priority, lead.Decision.Area, payload, time.Now().UnixMilli(),
	)
}

// execWithRetry retries SQLite busy/locked errors with exponential backoff.
func (s *SQLStore) execWithRetry(ctx context.Context, op, query string, args ...any) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		_, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if s.dialect != dialectSQLite || !shared.IsSQLiteConflictError(err) || attempt == maxBusyRetries-1 {
			break
		}
		delay := busyRetryBaseWait * time.Duration(1<<attempt)
		slog.Debug("Database locked, retrying", "op", op, "attempt", attempt+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// rebind converts ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
