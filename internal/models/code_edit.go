package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

type EditAction string

const (
	ActionInsert EditAction = "insert"
	ActionDelete EditAction = "delete"
	ActionUpdate EditAction = "update"
)

// CodeEdit is one immutable entry in a snippet's edit history. Rows are
// append-only: the relay inserts them and never updates or deletes them.
type CodeEdit struct {
	ID        string     `json:"id" gorm:"type:char(27);primaryKey"`
	SnippetID string     `json:"snippet_id" gorm:"type:char(27);not null;index"`
	UserID    string     `json:"user_id" gorm:"type:char(27);not null"`
	Action    EditAction `json:"action" gorm:"type:varchar(16);not null;check:action IN ('insert','delete','update')"`
	StartLine int        `json:"start_line" gorm:"not null"`
	EndLine   int        `json:"end_line" gorm:"not null"`
	Code      string     `json:"code" gorm:"type:text;not null"`
	Timestamp time.Time  `json:"timestamp" gorm:"not null"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate hook generates KSUID before inserting
func (e *CodeEdit) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = ksuid.New().String()
	}
	return nil
}
