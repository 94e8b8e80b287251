package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/lunalab/luna-kernel/internal/apperror"
	"github.com/lunalab/luna-kernel/internal/model"
	"github.com/lunalab/luna-kernel/internal/repository"
)

// Compile-time check that *DB implements the repository interface.
var _ repository.ExecutionHistoryRepository = (*DB)(nil)

// Record persists one execution result and its artifact blobs in a
// single transaction.
func (db *DB) Record(ctx context.Context, res *model.ExecutionResult) (*model.ExecutionRecord, error) {
	rec := &model.ExecutionRecord{
		ID:             xid.New().String(),
		NotebookID:     res.NotebookID,
		CellID:         res.CellID,
		SequenceNumber: res.SequenceNumber,
		Status:         res.Status,
		Stdout:         res.Stdout,
		Stderr:         res.Stderr,
		ExecutionCount: res.ExecutionCount,
		ArtifactCount:  len(res.Artifacts),
		Duration:       res.Duration,
		CreatedAt:      time.Now(),
	}
	if res.Error != nil {
		rec.ErrorKind = res.Error.Kind
		rec.ErrorMessage = res.Error.Message
		rec.ErrorTrace = res.Error.Trace
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning record tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (id, notebook_id, cell_id, sequence_number, status,
		                         stdout, stderr, error_kind, error_message, error_trace,
		                         execution_count, artifact_count, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.NotebookID,
		rec.CellID,
		rec.SequenceNumber,
		string(rec.Status),
		rec.Stdout,
		rec.Stderr,
		rec.ErrorKind,
		rec.ErrorMessage,
		rec.ErrorTrace,
		rec.ExecutionCount,
		rec.ArtifactCount,
		rec.Duration.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recording execution: %w", err)
	}

	for _, a := range res.Artifacts {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO artifacts (execution_id, idx, mime_type, data) VALUES (?, ?, ?, ?)`,
			rec.ID, a.Index, a.MIMEType, a.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: recording artifact %d: %w", a.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing record tx: %w", err)
	}
	return rec, nil
}

// ListByNotebook returns a notebook's execution records, newest first.
func (db *DB) ListByNotebook(ctx context.Context, notebookID string, opts repository.ListOptions) ([]model.ExecutionRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, notebook_id, cell_id, sequence_number, status,
		        stdout, stderr, error_kind, error_message, error_trace,
		        execution_count, artifact_count, duration_ms, created_at
		 FROM executions
		 WHERE notebook_id = ?
		 ORDER BY created_at DESC, sequence_number DESC
		 LIMIT ? OFFSET ?`,
		notebookID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing executions: %w", err)
	}
	defer rows.Close()

	records := make([]model.ExecutionRecord, 0, limit)
	for rows.Next() {
		var rec model.ExecutionRecord
		var status string
		var durationMS int64
		if err := rows.Scan(
			&rec.ID, &rec.NotebookID, &rec.CellID, &rec.SequenceNumber, &status,
			&rec.Stdout, &rec.Stderr, &rec.ErrorKind, &rec.ErrorMessage, &rec.ErrorTrace,
			&rec.ExecutionCount, &rec.ArtifactCount, &durationMS, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning execution row: %w", err)
		}
		rec.Status = model.Status(status)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating executions: %w", err)
	}
	return records, nil
}

// GetArtifact returns one artifact's raw bytes.
func (db *DB) GetArtifact(ctx context.Context, executionID string, index int) ([]byte, error) {
	var data []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM artifacts WHERE execution_id = ? AND idx = ?`,
		executionID, index,
	).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("artifact", fmt.Sprintf("%s/%d", executionID, index))
		}
		return nil, fmt.Errorf("sqlite: getting artifact %s/%d: %w", executionID, index, err)
	}
	return data, nil
}

// Purge deletes a notebook's entire execution history. Artifact rows go
// with their executions via ON DELETE CASCADE.
func (db *DB) Purge(ctx context.Context, notebookID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM executions WHERE notebook_id = ?`,
		notebookID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purging history for %s: %w", notebookID, err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return deleted, nil
}
