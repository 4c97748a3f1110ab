package model

import "time"

// Note is a titled markdown note. Pinned notes are listed first.
// This is a pure domain model with no database-specific dependencies or tags.
type Note struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Body        string       `json:"body"`
	Pinned      bool         `json:"pinned"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// NoteInput carries the user-editable fields of a note from a form or JSON body.
type NoteInput struct {
	Title string `json:"title" form:"title" validate:"required,notblank,max=200"`
	Body  string `json:"body" form:"body" validate:"max=20000"`
}
