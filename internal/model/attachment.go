package model

import "time"

// Attachment is a file stored in object storage and linked to a note.
type Attachment struct {
	ID          string    `json:"id"`
	NoteID      string    `json:"note_id"`
	Filename    string    `json:"filename"`
	StoragePath string    `json:"storage_path"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsImage reports whether the attachment can be previewed inline.
func (a Attachment) IsImage() bool {
	return len(a.ContentType) > 6 && a.ContentType[:6] == "image/"
}
