package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

type Permission string

const (
	PermissionView Permission = "view"
	PermissionEdit Permission = "edit"
)

// Snippet is the shared code document being collaboratively edited.
// The live-session columns (is_live, active_users, started_at) mirror
// the relay's in-memory presence state; the relay overwrites them on
// every join and leave, and in-memory state is authoritative while a
// session is live.
type Snippet struct {
	ID           string  `json:"id" gorm:"type:char(27);primaryKey"`
	Title        string  `json:"title" gorm:"type:text;not null"`
	Language     string  `json:"language" gorm:"type:varchar(50);not null"`
	AuthorID     string  `json:"author_id" gorm:"type:char(27);not null;index"`
	CollectionID *string `json:"collection_id,omitempty" gorm:"type:char(27);index"`

	IsLive      bool           `json:"is_live" gorm:"column:is_live;not null;default:false"`
	ActiveUsers pq.StringArray `json:"active_users" gorm:"column:active_users;type:text[]"`
	StartedAt   *time.Time     `json:"started_at,omitempty" gorm:"column:started_at"`

	Collaborators []Collaborator `json:"collaborators" gorm:"foreignKey:SnippetID"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate hook generates KSUID before inserting
func (s *Snippet) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = ksuid.New().String()
	}
	return nil
}

// Collaborator grants a user view or edit standing on a snippet.
type Collaborator struct {
	SnippetID  string     `json:"snippet_id" gorm:"type:char(27);primaryKey"`
	UserID     string     `json:"user_id" gorm:"type:char(27);primaryKey"`
	Permission Permission `json:"permission" gorm:"type:varchar(10);not null;default:'edit'"`
}

// Authorization is the admission set for one snippet: the owner plus
// everyone the owner shared it with. The relay reads it once per join
// to decide admission and never writes it.
type Authorization struct {
	SnippetID     string
	OwnerID       string
	Collaborators []Collaborator
}

// Allows reports whether userID has owner or collaborator standing.
// Either permission level admits; view-only enforcement happens in the
// editor, not the relay.
func (a *Authorization) Allows(userID string) bool {
	if userID == a.OwnerID {
		return true
	}
	for _, c := range a.Collaborators {
		if c.UserID == userID {
			return true
		}
	}
	return false
}
