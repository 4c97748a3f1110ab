package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"hxnotes/internal/http/htmx"
	"hxnotes/internal/validate"
	"hxnotes/internal/view"
)

// UploadAttachment stores a file for a note and returns the refreshed file panel.
func (p *Pages) UploadAttachment(c *fiber.Ctx) error {
	id, err := noteID(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return p.attachmentErrors(c, id, validate.FieldErrors{"file": "file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot open uploaded file")
	}
	defer f.Close()

	ct := fh.Header.Get(fiber.HeaderContentType)
	if ct == "" {
		ct = "application/octet-stream"
	}

	_, err = p.Attachments.Upload(c.UserContext(), id, f, fh.Filename, ct, fh.Size)
	if fe, ok := validate.AsFieldErrors(err); ok {
		return p.attachmentErrors(c, id, fe)
	}
	if err != nil {
		return err
	}

	if !htmx.IsFragment(c) {
		return seeOther(c, "/notes/"+id)
	}
	items, err := p.Attachments.List(c.UserContext(), id)
	if err != nil {
		return err
	}
	return p.Views.Fragment(c, fiber.StatusOK, "partials/attachments", view.Attachments{NoteID: id, Items: items})
}

// attachmentErrors answers a rejected upload with 422: the file panel for
// fragment requests, the whole note page for plain form posts.
func (p *Pages) attachmentErrors(c *fiber.Ctx, noteID string, fe validate.FieldErrors) error {
	if !htmx.IsFragment(c) {
		n, err := p.Notes.Get(c.UserContext(), noteID)
		if err != nil {
			return err
		}
		show := view.ShowOf(n)
		show.Files.Errors = fe
		return p.Views.Page(c, fiber.StatusUnprocessableEntity, "notes/show", n.Title, show)
	}
	items, err := p.Attachments.List(c.UserContext(), noteID)
	if err != nil {
		return err
	}
	return p.Views.Fragment(c, fiber.StatusUnprocessableEntity, "partials/attachments",
		view.Attachments{NoteID: noteID, Items: items, Errors: fe})
}

// DownloadAttachment redirects to a short-lived presigned URL.
func (p *Pages) DownloadAttachment(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.ErrNotFound
	}
	u, err := p.Attachments.URL(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Redirect(u, fiber.StatusFound)
}

// DeleteAttachment removes a file from its note.
func (p *Pages) DeleteAttachment(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return fiber.ErrNotFound
	}
	a, err := p.Attachments.Delete(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !htmx.IsFragment(c) {
		return seeOther(c, "/notes/"+a.NoteID)
	}
	return empty(c)
}
