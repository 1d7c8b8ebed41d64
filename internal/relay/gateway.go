package relay

import (
	"context"
	"time"

	"codesync/internal/models"
)

// Gateway is what the relay needs from the durable snippet store. The
// repository package provides the implementation; the relay only cares
// about these three calls, so the interface lives here with its
// consumer.
type Gateway interface {
	// GetAuthorization resolves a snippet's owner and collaborators,
	// or repository.ErrNotFound.
	GetAuthorization(ctx context.Context, snippetID string) (*models.Authorization, error)

	// SaveSession persists a presence snapshot for a snippet.
	SaveSession(ctx context.Context, snippetID string, isLive bool, activeUsers []string, startedAt *time.Time) error

	// AppendEdit appends one record to the snippet's edit history.
	// Failures classify as repository.ErrConflict, repository.ErrValidation,
	// or remain generic.
	AppendEdit(ctx context.Context, edit *models.CodeEdit) error
}
