package view

import (
	"hxnotes/internal/model"
	"hxnotes/internal/service"
	"hxnotes/internal/validate"
)

// NoteForm is the create form with the last submitted input.
type NoteForm struct {
	Input  model.NoteInput
	Errors validate.FieldErrors
}

// NoteIndex is the notes/index page.
type NoteIndex struct {
	List *service.NoteListResult
	Form NoteForm
}

// NoteEdit is the inline edit form of one note.
type NoteEdit struct {
	Note   *model.Note
	Input  model.NoteInput
	Errors validate.FieldErrors
}

// NoteShow is the notes/show page. Files carries upload errors after a
// plain form post.
type NoteShow struct {
	Note  *model.Note
	Files Attachments
}

// ShowOf builds the notes/show data for n.
func ShowOf(n *model.Note) NoteShow {
	return NoteShow{Note: n, Files: AttachmentsOf(n)}
}

// Attachments is the file panel of one note.
type Attachments struct {
	NoteID string
	Items  []model.Attachment
	Errors validate.FieldErrors
}

// AttachmentsOf builds the file panel for n.
func AttachmentsOf(n *model.Note) Attachments {
	return Attachments{NoteID: n.ID, Items: n.Attachments}
}

// ErrorPage describes a failed request without internal details.
type ErrorPage struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

// Flash is a short notice swapped into #flash out of band.
type Flash struct {
	Kind    string
	Message string
}
