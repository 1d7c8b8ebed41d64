package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codesync/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// SnippetRepositoryImpl handles snippet reads and live-session writes
// using GORM. This is the IMPLEMENTATION - consumers declare the
// interfaces they need.
type SnippetRepositoryImpl struct {
	db *gorm.DB
}

// NewSnippetRepository creates a new snippet repository.
// Returns concrete type - "Accept interfaces, return structs"
func NewSnippetRepository(db *gorm.DB) *SnippetRepositoryImpl {
	return &SnippetRepositoryImpl{db: db}
}

// GetAuthorization fetches the admission set for a snippet: its owner
// plus all collaborators. Returns ErrNotFound when the snippet is
// absent or soft-deleted.
func (r *SnippetRepositoryImpl) GetAuthorization(ctx context.Context, snippetID string) (*models.Authorization, error) {
	var snippet models.Snippet

	err := r.db.WithContext(ctx).
		Preload("Collaborators").
		First(&snippet, "id = ?", snippetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: snippet %s", ErrNotFound, snippetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snippet authorization: %w", err)
	}

	return &models.Authorization{
		SnippetID:     snippet.ID,
		OwnerID:       snippet.AuthorID,
		Collaborators: snippet.Collaborators,
	}, nil
}

// SaveSession overwrites the snippet's live-session columns with the
// relay's current presence snapshot. The store is eventually consistent
// with in-memory presence; a lost update here is repaired by the next
// join or leave on the same snippet.
func (r *SnippetRepositoryImpl) SaveSession(ctx context.Context, snippetID string, isLive bool, activeUsers []string, startedAt *time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Snippet{}).
		Where("id = ?", snippetID).
		Updates(map[string]interface{}{
			"is_live":      isLive,
			"active_users": pq.StringArray(activeUsers),
			"started_at":   startedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to save live session: %w", classifyPgError(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: snippet %s", ErrNotFound, snippetID)
	}

	return nil
}
