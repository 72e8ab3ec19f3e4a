package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists Activities in PostgreSQL.
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
		`CREATE TABLE IF NOT EXISTS agent_activities (
			activity_id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			worker_kind TEXT NOT NULL DEFAULT '',
			action_kind TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			request_text TEXT NOT NULL DEFAULT '',
			worker_payload JSONB,
			requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
			decided_by TEXT,
			decided_at TIMESTAMPTZ,
			execution_note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_activities_workspace_created
			ON agent_activities (workspace_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_activities_workspace_status
			ON agent_activities (workspace_id, status);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, a Activity) (Activity, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.Status = StatusPending
	a.RequiresApproval = true

	payload, err := marshalPayload(a.WorkerPayload)
	if err != nil {
		return Activity{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO agent_activities (activity_id, workspace_id, session_id, worker_kind, action_kind, status, request_text, worker_payload, requires_approval, execution_note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.WorkspaceID, a.SessionID, a.WorkerKind, a.ActionKind, a.Status,
		a.RequestText, payload, a.RequiresApproval, a.ExecutionNote, a.CreatedAt,
	)
	if err != nil {
		return Activity{}, fmt.Errorf("create activity: %w", err)
	}
	return a, nil
}

const activityColumns = `activity_id, workspace_id, session_id, worker_kind, action_kind, status,
	request_text, worker_payload, requires_approval, decided_by, decided_at, execution_note, created_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (Activity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM agent_activities WHERE activity_id=$1`, id)
	return scanActivityRow(row)
}

func (s *PostgresStore) List(ctx context.Context, workspaceID, statusFilter string) ([]Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM agent_activities WHERE workspace_id=$1`
	args := []any{workspaceID}
	if statusFilter != "" {
		query += ` AND status=$2`
		args = append(args, statusFilter)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	out := make([]Activity, 0)
	for rows.Next() {
		a, err := scanActivityRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Decide(ctx context.Context, id, decision, decidedBy, reason string, at time.Time) (Activity, error) {
	var status string
	note := ""
	switch decision {
	case DecisionApprove:
		status = StatusApproved
	case DecisionReject:
		status = StatusRejected
		note = reason
	default:
		return Activity{}, fmt.Errorf("unknown decision %q", decision)
	}

	// The status='pending' guard makes the first decision the only one
	// that lands; decided_by and decided_at are never overwritten.
	row := s.pool.QueryRow(ctx,
		`UPDATE agent_activities
		 SET status=$2, decided_by=$3, decided_at=$4,
		     execution_note=CASE WHEN $5 <> '' THEN $5 ELSE execution_note END
		 WHERE activity_id=$1 AND status='pending'
		 RETURNING `+activityColumns,
		id, status, decidedBy, at.UTC(), note)

	a, err := scanActivityRow(row)
	if errors.Is(err, ErrActivityNotFound) {
		return s.explainMissedCAS(ctx, id, StatusPending)
	}
	if err != nil {
		return Activity{}, err
	}
	return a, nil
}

func (s *PostgresStore) MarkExecuted(ctx context.Context, id, outcome, note string) (Activity, error) {
	if outcome != StatusCompleted && outcome != StatusFailed {
		return Activity{}, fmt.Errorf("unknown execution outcome %q", outcome)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE agent_activities
		 SET status=$2,
		     execution_note=CASE WHEN $3 <> '' THEN $3 ELSE execution_note END
		 WHERE activity_id=$1 AND status='approved'
		 RETURNING `+activityColumns,
		id, outcome, note)

	a, err := scanActivityRow(row)
	if errors.Is(err, ErrActivityNotFound) {
		return s.explainMissedCAS(ctx, id, StatusApproved)
	}
	if err != nil {
		return Activity{}, err
	}
	return a, nil
}

// explainMissedCAS distinguishes a missing Activity from one that was in
// the wrong state when the guarded update matched zero rows.
func (s *PostgresStore) explainMissedCAS(ctx context.Context, id, wantStatus string) (Activity, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	return Activity{}, fmt.Errorf("%w: transition requires %s, activity is %s", ErrInvalidTransition, wantStatus, current.Status)
}

func (s *PostgresStore) CountPending(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM agent_activities WHERE status='pending' AND ($1 = '' OR workspace_id = $1)`,
		workspaceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending activities: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanActivityRow(row pgx.Row) (Activity, error) {
	var (
		a         Activity
		payload   []byte
		decidedBy *string
	)
	err := row.Scan(&a.ID, &a.WorkspaceID, &a.SessionID, &a.WorkerKind, &a.ActionKind,
		&a.Status, &a.RequestText, &payload, &a.RequiresApproval, &decidedBy,
		&a.DecidedAt, &a.ExecutionNote, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Activity{}, ErrActivityNotFound
	}
	if err != nil {
		return Activity{}, fmt.Errorf("scan activity row: %w", err)
	}
	if decidedBy != nil {
		a.DecidedBy = *decidedBy
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.WorkerPayload); err != nil {
			return Activity{}, fmt.Errorf("decode worker payload: %w", err)
		}
	}
	return a, nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode worker payload: %w", err)
	}
	return b, nil
}
