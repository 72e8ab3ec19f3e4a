package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions and messages in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_sessions (
			session_id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			worker_kind TEXT NOT NULL,
			topic TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_activity_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			message_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES agent_sessions(session_id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_sessions_workspace_activity
			ON agent_sessions (workspace_id, last_activity_at);`,
		`CREATE INDEX IF NOT EXISTS idx_session_messages_session_created
			ON session_messages (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = sess.CreatedAt
	}
	if sess.Status == "" {
		sess.Status = SessionActive
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_sessions (session_id, workspace_id, worker_kind, topic, status, created_at, last_activity_at, message_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.WorkspaceID, sess.WorkerKind, sess.Topic, sess.Status,
		sess.CreatedAt, sess.LastActivityAt, sess.MessageCount,
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: create session: %v", ErrUnavailable, err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, workspace_id, worker_kind, topic, status, created_at, last_activity_at, message_count
		 FROM agent_sessions WHERE session_id=$1`, id)
	return scanSessionRow(row)
}

func (s *PostgresStore) LatestActiveSession(ctx context.Context, workspaceID string) (Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, workspace_id, worker_kind, topic, status, created_at, last_activity_at, message_count
		 FROM agent_sessions
		 WHERE workspace_id=$1 AND status IN ('active', 'needs_approval')
		 ORDER BY last_activity_at DESC LIMIT 1`, workspaceID)
	return scanSessionRow(row)
}

func scanSessionRow(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.WorkspaceID, &sess.WorkerKind, &sess.Topic,
		&sess.Status, &sess.CreatedAt, &sess.LastActivityAt, &sess.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("%w: scan session row: %v", ErrUnavailable, err)
	}
	return sess, nil
}

func (s *PostgresStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_sessions SET last_activity_at=GREATEST(last_activity_at, $2) WHERE session_id=$1`,
		id, at)
	if err != nil {
		return fmt.Errorf("%w: touch session: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateSessionRouting(ctx context.Context, id, workerKind, topic string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_sessions
		 SET worker_kind=CASE WHEN $2 <> '' THEN $2 ELSE worker_kind END,
		     topic=CASE WHEN $3 <> '' THEN $3 ELSE topic END
		 WHERE session_id=$1`,
		id, workerKind, topic)
	if err != nil {
		return fmt.Errorf("%w: update session routing: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, id, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE agent_sessions SET status=$2 WHERE session_id=$1`, id, status)
	if err != nil {
		return fmt.Errorf("%w: update session status: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m Message) (Message, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("%w: begin append message: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE agent_sessions
		 SET message_count=message_count+1, last_activity_at=GREATEST(last_activity_at, $2)
		 WHERE session_id=$1`,
		m.SessionID, m.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("%w: bump session activity: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return Message{}, ErrSessionNotFound
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO session_messages (message_id, session_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.SessionID, m.Role, m.Content, m.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("%w: insert message: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("%w: commit append message: %v", ErrUnavailable, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, session_id, role, content, created_at
		 FROM session_messages WHERE session_id=$1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: query messages: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	return collectMessages(rows, 0)
}

func (s *PostgresStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, session_id, role, content, created_at
		 FROM session_messages WHERE session_id=$1 ORDER BY created_at DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query recent messages: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	items, err := collectMessages(rows, limit)
	if err != nil {
		return nil, err
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func collectMessages(rows pgx.Rows, capHint int) ([]Message, error) {
	items := make([]Message, 0, capHint)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan message row: %v", ErrUnavailable, err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate message rows: %v", ErrUnavailable, err)
	}
	return items, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, workspaceID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, workspace_id, worker_kind, topic, status, created_at, last_activity_at, message_count
		 FROM agent_sessions WHERE workspace_id=$1 ORDER BY last_activity_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: query sessions: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.WorkspaceID, &sess.WorkerKind, &sess.Topic,
			&sess.Status, &sess.CreatedAt, &sess.LastActivityAt, &sess.MessageCount); err != nil {
			return nil, fmt.Errorf("%w: scan session row: %v", ErrUnavailable, err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate session rows: %v", ErrUnavailable, err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
