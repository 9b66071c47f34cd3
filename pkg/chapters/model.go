// Package chapters stores chapter progress records and imports them in bulk.
package chapters

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var (
	// ErrNotFound indicates no chapter exists with the requested id.
	ErrNotFound = errors.New("chapter not found")

	// ErrInvalidID indicates the id is not a well-formed chapter id.
	ErrInvalidID = errors.New("invalid chapter id")
)

// Status values accepted for a chapter.
const (
	StatusNotStarted = "Not Started"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// Chapter is one chapter's study progress record.
type Chapter struct {
	bun.BaseModel `bun:"table:chapters" json:"-"`

	ID                    uuid.UUID      `bun:"id,pk,type:text" json:"_id"`
	Subject               string         `bun:"subject,notnull" json:"subject" validate:"required"`
	Chapter               string         `bun:"chapter,notnull" json:"chapter" validate:"required"`
	Class                 string         `bun:"class,notnull" json:"class" validate:"required"`
	Unit                  string         `bun:"unit,notnull" json:"unit" validate:"required"`
	Status                string         `bun:"status,notnull" json:"status" validate:"required,oneof='Not Started' 'In Progress' 'Completed'"`
	IsWeakChapter         bool           `bun:"is_weak_chapter,notnull" json:"isWeakChapter"`
	QuestionSolved        int            `bun:"question_solved,notnull" json:"questionSolved" validate:"gte=0"`
	YearWiseQuestionCount map[string]int `bun:"year_wise_question_count" json:"yearWiseQuestionCount" validate:"dive,keys,required,endkeys,gte=0"`
	CreatedAt             time.Time      `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt             time.Time      `bun:"updated_at,notnull" json:"updatedAt"`
}

// Filter selects chapters by exact field match. Nil fields are ignored.
type Filter struct {
	Class         *string
	Unit          *string
	Status        *string
	Subject       *string
	IsWeakChapter *bool
}

// IsZero reports whether no filter field is set.
func (f Filter) IsZero() bool {
	return f.Class == nil && f.Unit == nil && f.Status == nil && f.Subject == nil && f.IsWeakChapter == nil
}

// ParseID parses a chapter id, returning ErrInvalidID when malformed.
func ParseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
