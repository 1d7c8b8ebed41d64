package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockDB wires GORM onto a sqlmock connection. Simple protocol keeps
// the generated SQL inline so the regexp expectations below match it.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func TestGetAuthorization(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnippetRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "snippets" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "language", "author_id"}).
			AddRow("snip-1", "demo", "go", "owner-1"))
	mock.ExpectQuery(`SELECT \* FROM "collaborators"`).
		WillReturnRows(sqlmock.NewRows([]string{"snippet_id", "user_id", "permission"}).
			AddRow("snip-1", "user-2", "edit").
			AddRow("snip-1", "user-3", "view"))

	authz, err := repo.GetAuthorization(context.Background(), "snip-1")

	require.NoError(t, err)
	assert.Equal(t, "snip-1", authz.SnippetID)
	assert.Equal(t, "owner-1", authz.OwnerID)
	require.Len(t, authz.Collaborators, 2)
	assert.True(t, authz.Allows("owner-1"))
	assert.True(t, authz.Allows("user-2"))
	assert.True(t, authz.Allows("user-3"), "view permission still admits to the relay")
	assert.False(t, authz.Allows("stranger"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAuthorizationNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnippetRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "snippets"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	authz, err := repo.GetAuthorization(context.Background(), "missing")

	assert.Nil(t, authz)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSession(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnippetRepository(db)
	startedAt := time.Now()

	mock.ExpectExec(`UPDATE "snippets" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveSession(context.Background(), "snip-1", true, []string{"u1", "u2"}, &startedAt)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSessionUnknownSnippet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnippetRepository(db)

	mock.ExpectExec(`UPDATE "snippets" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveSession(context.Background(), "missing", false, nil, nil)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSessionClassifiesConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSnippetRepository(db)

	mock.ExpectExec(`UPDATE "snippets" SET`).
		WillReturnError(&pgconn.PgError{Code: "40001"})

	err := repo.SaveSession(context.Background(), "snip-1", true, []string{"u1"}, nil)

	assert.ErrorIs(t, err, ErrConflict)
}
