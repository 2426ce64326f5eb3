package postgres

import (
	"context"
	"fmt"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY READER
// Read-only queries over the tutoring platform's activity tables.
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRepository implements badge.ActivityReader for PostgreSQL.
type ActivityRepository struct {
	conn *Connection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

var _ badge.ActivityReader = (*ActivityRepository)(nil)

const (
	queryCountContributions = `SELECT COUNT(*) FROM session_contributions WHERE user_id = $1`
	queryCountChatMessages  = `SELECT COUNT(*) FROM chat_messages WHERE user_id = $1`
	queryCountCoordinator   = `SELECT COUNT(*) FROM tutorial_sessions WHERE coordinator_id = $1`
	queryCountReporter      = `SELECT COUNT(*) FROM tutorial_sessions WHERE reporter_id = $1`
	queryCountPeerEvals     = `SELECT COUNT(*) FROM peer_evaluations WHERE evaluator_id = $1`
	queryCountReferences    = `SELECT COUNT(*) FROM session_references WHERE user_id = $1`

	queryContributionSessions = `SELECT session_id::text FROM session_contributions WHERE user_id = $1`

	queryGrades = `
		SELECT grade
		FROM evaluations
		WHERE student_id = $1
		  AND is_archived = FALSE
		  AND grade IS NOT NULL
		ORDER BY created_at ASC, id ASC
	`
)

// CountContributions counts session contributions of the user.
func (r *ActivityRepository) CountContributions(ctx context.Context, userID shared.UserID) (int, error) {
	return r.count(ctx, "contributions", queryCountContributions, userID)
}

// CountChatMessages counts chat messages sent by the user.
func (r *ActivityRepository) CountChatMessages(ctx context.Context, userID shared.UserID) (int, error) {
	return r.count(ctx, "chat_messages", queryCountChatMessages, userID)
}

// CountCoordinatorTimes counts sessions the user coordinated.
func (r *ActivityRepository) CountCoordinatorTimes(ctx context.Context, userID shared.UserID) (int, error) {
	return r.count(ctx, "coordinator_times", queryCountCoordinator, userID)
}

// CountReporterTimes counts sessions the user reported.
func (r *ActivityRepository) CountReporterTimes(ctx context.Context, userID shared.UserID) (int, error) {
	return r.count(ctx, "reporter_times", queryCountReporter, userID)
}

// CountPeerEvaluations counts evaluations the user gave to peers.
func (r *ActivityRepository) CountPeerEvaluations(ctx context.Context, userID shared.UserID) (int, error) {
	return r.count(ctx, "peer_evaluations", queryCountPeerEvals, userID)
}

// CountReferences counts references the user shared.
func (r *ActivityRepository) CountReferences(ctx context.Context, userID shared.UserID) (int, error) {
	return r.count(ctx, "references_shared", queryCountReferences, userID)
}

// ListContributionSessions returns one session id per contribution.
func (r *ActivityRepository) ListContributionSessions(ctx context.Context, userID shared.UserID) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, queryContributionSessions, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query contribution sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contribution sessions: %w", err)
	}

	return ids, nil
}

// ListGrades returns non-archived grades, oldest first.
func (r *ActivityRepository) ListGrades(ctx context.Context, userID shared.UserID) ([]badge.Grade, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, queryGrades, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query grades: %w", err)
	}
	defer rows.Close()

	var grades []badge.Grade
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan grade: %w", err)
		}
		grades = append(grades, badge.NormalizeGrade(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grades: %w", err)
	}

	return grades, nil
}

func (r *ActivityRepository) count(ctx context.Context, metric, query string, userID shared.UserID) (int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.conn.QueryRow(ctx, query, userID.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", metric, err)
	}
	return int(n), nil
}

func (r *ActivityRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := r.conn.QueryTimeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}
