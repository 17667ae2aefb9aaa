package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/polish/internal/models"
)

const operationColumns = `
	id, collection_id, owner_id, op_type, snapshot_before, snapshot_after,
	payload, changes_made, created_at, expires_at, undone
`

// OperationRepository persists the undo log.
type OperationRepository struct {
	db *sql.DB
}

// NewOperationRepository creates a new OperationRepository with the given database connection
func NewOperationRepository(db *sql.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

// Create inserts op and sets its ID.
func (r *OperationRepository) Create(ctx context.Context, op *models.Operation) error {
	if err := op.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payload, err := models.EncodePayload(op.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO operations (
			collection_id, owner_id, op_type, snapshot_before, snapshot_after,
			payload, changes_made, created_at, expires_at, undone
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		op.CollectionID,
		op.OwnerID,
		string(op.Type),
		op.SnapshotBefore,
		op.SnapshotAfter,
		string(payload),
		op.ChangesMade,
		op.CreatedAt.UTC(),
		op.ExpiresAt.UTC(),
		op.Undone,
	)
	if err != nil {
		return fmt.Errorf("failed to insert operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read operation id: %w", err)
	}
	op.ID = id
	return nil
}

// Get retrieves an operation by ID.
func (r *OperationRepository) Get(ctx context.Context, id int64) (*models.Operation, error) {
	op, err := scanOperation(r.db.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "operation", strconv.FormatInt(id, 10))
	}
	return op, nil
}

// LatestUndoable returns the newest entry for the playlist and owner that changed something,
// is not undone and has not expired at now. It returns nil when there is none.
func (r *OperationRepository) LatestUndoable(ctx context.Context, collectionID, ownerID string, now time.Time) (*models.Operation, error) {
	query := `
		SELECT ` + operationColumns + ` FROM operations
		WHERE collection_id = ? AND owner_id = ?
			AND undone = 0 AND changes_made = 1 AND expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	op, err := scanOperation(r.db.QueryRowContext(ctx, query, collectionID, ownerID, now.UTC()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest operation: %w", err)
	}
	return op, nil
}

// History lists entries for a playlist and owner, newest first.
func (r *OperationRepository) History(ctx context.Context, collectionID, ownerID string, limit int) ([]*models.Operation, error) {
	query := `
		SELECT ` + operationColumns + ` FROM operations
		WHERE collection_id = ? AND owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return r.list(ctx, query, collectionID, ownerID, limitOrDefault(limit))
}

// HistoryForOwner lists entries across all of an owner's playlists, newest first.
func (r *OperationRepository) HistoryForOwner(ctx context.Context, ownerID string, limit int) ([]*models.Operation, error) {
	query := `
		SELECT ` + operationColumns + ` FROM operations
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return r.list(ctx, query, ownerID, limitOrDefault(limit))
}

// MarkUndone flags an entry as reversed.
func (r *OperationRepository) MarkUndone(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE operations SET undone = 1 WHERE id = ? AND undone = 0`, id)
	if err != nil {
		return fmt.Errorf("failed to mark operation undone: %w", err)
	}
	return affected(result, "undoable operation", strconv.FormatInt(id, 10))
}

// DeleteExpired removes entries whose horizon has passed at now.
func (r *OperationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM operations WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired operations: %w", err)
	}
	return result.RowsAffected()
}

func (r *OperationRepository) list(ctx context.Context, query string, args ...any) ([]*models.Operation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []*models.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return ops, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}

func scanOperation(row rowScanner) (*models.Operation, error) {
	var (
		op      models.Operation
		opType  string
		payload string
	)

	err := row.Scan(
		&op.ID,
		&op.CollectionID,
		&op.OwnerID,
		&opType,
		&op.SnapshotBefore,
		&op.SnapshotAfter,
		&payload,
		&op.ChangesMade,
		&op.CreatedAt,
		&op.ExpiresAt,
		&op.Undone,
	)
	if err != nil {
		return nil, err
	}

	op.Type = models.OpType(opType)
	op.CreatedAt = op.CreatedAt.UTC()
	op.ExpiresAt = op.ExpiresAt.UTC()
	op.Payload, err = models.DecodePayload(op.Type, []byte(payload))
	if err != nil {
		return nil, err
	}
	return &op, nil
}
