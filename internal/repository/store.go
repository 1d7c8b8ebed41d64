package repository

import "gorm.io/gorm"

// Store bundles the snippet and edit repositories behind one handle.
// It is the durable side of the relay: the relay package declares the
// Gateway interface it needs and Store satisfies it.
type Store struct {
	*SnippetRepositoryImpl
	*EditRepositoryImpl
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		SnippetRepositoryImpl: NewSnippetRepository(db),
		EditRepositoryImpl:    NewEditRepository(db),
	}
}
