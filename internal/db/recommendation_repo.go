package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"envmonitor/internal/types"
)

const defaultRecommendationLimit = 50

// RecommendationRepository provides data access for the recommendations table.
type RecommendationRepository struct {
	db TxDB
}

// NewRecommendationRepository creates a new RecommendationRepository.
func NewRecommendationRepository(db TxDB) *RecommendationRepository {
	return &RecommendationRepository{db: db}
}

const recommendationColumns = `id, device_id, user_id, type, title, message, priority, status,
	metadata, acknowledged_at, dismissed_at, created_at, updated_at`

func scanRecommendation(row pgx.Row) (*types.Recommendation, error) {
	var rec types.Recommendation
	err := row.Scan(
		&rec.ID,
		&rec.DeviceID,
		&rec.UserID,
		&rec.Type,
		&rec.Title,
		&rec.Message,
		&rec.Priority,
		&rec.Status,
		&rec.Metadata,
		&rec.AcknowledgedAt,
		&rec.DismissedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// dedupLockKey names the advisory lock serializing inserts for one
// (device, type) pair.
func dedupLockKey(deviceID string, t types.RecommendationType) string {
	return "recommendation:" + deviceID + ":" + string(t)
}

// CreateIfAbsent inserts rec as pending unless a pending recommendation of the
// same device and type was created at or after since. The check and the
// insert run under a transaction-scoped advisory lock keyed on (device, type),
// so concurrent generators cannot both insert. created reports whether a row
// was written.
//
// rec.CreatedAt is stored as created_at so that it is on the same clock as
// since; a zero CreatedAt is replaced with the current time.
func (r *RecommendationRepository) CreateIfAbsent(ctx context.Context, rec *types.Recommendation, since time.Time) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var created bool
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			dedupLockKey(rec.DeviceID, rec.Type),
		); err != nil {
			return err
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO recommendations
			   (id, device_id, user_id, type, title, message, priority, status, metadata, created_at, updated_at)
			 SELECT $1, $2, $3, $4, $5, $6, $7, 'pending', $8, $10, $10
			 WHERE NOT EXISTS (
			   SELECT 1 FROM recommendations
			   WHERE device_id = $2 AND type = $4 AND status = 'pending' AND created_at >= $9
			 )
			 RETURNING created_at, updated_at`,
			rec.ID,
			rec.DeviceID,
			rec.UserID,
			string(rec.Type),
			rec.Title,
			rec.Message,
			string(rec.Priority),
			rec.Metadata,
			since,
			rec.CreatedAt,
		).Scan(&rec.CreatedAt, &rec.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create recommendation", err)
	}
	if created {
		rec.Status = types.StatusPending
	}
	return created, nil
}

// GetByID returns the recommendation if it belongs to userID.
func (r *RecommendationRepository) GetByID(ctx context.Context, userID, id string) (*types.Recommendation, error) {
	rec, err := scanRecommendation(r.db.QueryRow(ctx,
		`SELECT `+recommendationColumns+`
		 FROM recommendations
		 WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRecommendation, "recommendation not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get recommendation", err)
	}
	return rec, nil
}

// List returns recommendations matching f, newest first.
func (r *RecommendationRepository) List(ctx context.Context, f types.RecommendationFilter) ([]types.Recommendation, error) {
	where := []string{"user_id = $1"}
	args := []any{f.UserID}
	if f.DeviceID != "" {
		args = append(args, f.DeviceID)
		where = append(where, fmt.Sprintf("device_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultRecommendationLimit
	}
	args = append(args, limit)

	query := `SELECT ` + recommendationColumns + `
		 FROM recommendations
		 WHERE ` + strings.Join(where, " AND ") + `
		 ORDER BY created_at DESC
		 LIMIT $` + fmt.Sprint(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list recommendations", err)
	}
	defer rows.Close()

	recs := []types.Recommendation{}
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan recommendation row", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating recommendation rows", err)
	}
	return recs, nil
}

// Transition moves a pending recommendation owned by userID to a terminal
// status and stamps the matching timestamp column. A recommendation that is
// not pending yields conflict_recommendation_not_pending; one that does not
// exist for the user yields not_found_recommendation.
func (r *RecommendationRepository) Transition(ctx context.Context, userID, id string, to types.RecommendationStatus, at time.Time) (*types.Recommendation, error) {
	var column string
	switch to {
	case types.StatusAcknowledged:
		column = "acknowledged_at"
	case types.StatusDismissed:
		column = "dismissed_at"
	default:
		return nil, types.NewAppError(types.ErrCodeValidationInvalidStatus,
			fmt.Sprintf("cannot transition to %q", to), nil)
	}

	rec, err := scanRecommendation(r.db.QueryRow(ctx,
		`UPDATE recommendations
		 SET status = $3, `+column+` = $4, updated_at = $4
		 WHERE id = $1 AND user_id = $2 AND status = 'pending'
		 RETURNING `+recommendationColumns,
		id,
		userID,
		string(to),
		at,
	))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update recommendation", err)
	}

	// Distinguish a missing row from one already in a terminal state.
	current, err := r.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictNotPending,
		"recommendation is not pending", nil,
		map[string]any{"status": string(current.Status)})
}
