package repository

import (
	"context"
	"fmt"

	"codesync/internal/models"

	"gorm.io/gorm"
)

// EditRepositoryImpl handles the append-only edit history.
type EditRepositoryImpl struct {
	db *gorm.DB
}

// NewEditRepository creates a new edit repository.
func NewEditRepository(db *gorm.DB) *EditRepositoryImpl {
	return &EditRepositoryImpl{db: db}
}

// AppendEdit inserts one edit record. The KSUID is generated in the
// BeforeCreate hook. Failures are classified into the gateway taxonomy
// so the relay can tell a retriable conflict from a rejected payload.
func (r *EditRepositoryImpl) AppendEdit(ctx context.Context, edit *models.CodeEdit) error {
	if err := r.db.WithContext(ctx).Create(edit).Error; err != nil {
		return fmt.Errorf("failed to append edit: %w", classifyPgError(err))
	}
	return nil
}

// ListBySnippet returns a snippet's edit history in the order the edits
// were accepted. KSUID breaks ties within the same timestamp.
func (r *EditRepositoryImpl) ListBySnippet(ctx context.Context, snippetID string, limit, offset int) ([]*models.CodeEdit, error) {
	var edits []*models.CodeEdit

	err := r.db.WithContext(ctx).
		Where("snippet_id = ?", snippetID).
		Order("timestamp ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&edits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}

	return edits, nil
}
