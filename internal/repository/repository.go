// Package repository declares the storage interfaces the service layer
// depends on. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/lunalab/luna-kernel/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ExecutionHistoryRepository persists execution results so the front end
// can show past runs after a reload. Recording must never affect result
// delivery — the service logs store errors and moves on.
type ExecutionHistoryRepository interface {
	Record(ctx context.Context, res *model.ExecutionResult) (*model.ExecutionRecord, error)
	ListByNotebook(ctx context.Context, notebookID string, opts ListOptions) ([]model.ExecutionRecord, error)
	GetArtifact(ctx context.Context, executionID string, index int) ([]byte, error)
	Purge(ctx context.Context, notebookID string) (int64, error)
}
