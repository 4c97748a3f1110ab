package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"hxnotes/internal/http/htmx"
	"hxnotes/internal/model"
	"hxnotes/internal/service"
	"hxnotes/internal/validate"
	"hxnotes/internal/view"
)

// Pages serves the HTML interface. Each handler fetches its data once and
// then picks the template: a partial for htmx fragment requests, the full
// page otherwise. Plain form posts are answered with 303 redirects so the
// app keeps working without JavaScript.
type Pages struct {
	Notes       service.NoteService
	Attachments service.AttachmentService
	Views       *view.Renderer
	PageSize    int
}

func (p *Pages) pageSize() int {
	if p.PageSize <= 0 {
		return service.DefaultPageSize
	}
	return p.PageSize
}

// noteID returns the :id param, or 404 when it cannot be a note.
func noteID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", fiber.ErrNotFound
	}
	return id, nil
}

func seeOther(c *fiber.Ctx, location string) error {
	return c.Redirect(location, fiber.StatusSeeOther)
}

// empty answers a fragment request with an empty 200 body, which removes the
// target under an outerHTML swap.
func empty(c *fiber.Ctx) error {
	htmx.Vary(c)
	return c.Status(fiber.StatusOK).Send(nil)
}

func parseNoteInput(c *fiber.Ctx) (model.NoteInput, error) {
	var in model.NoteInput
	if err := c.BodyParser(&in); err != nil {
		return in, fiber.ErrBadRequest
	}
	return in, nil
}

// Home redirects to the note list.
func (p *Pages) Home(c *fiber.Ctx) error {
	return c.Redirect("/notes", fiber.StatusFound)
}

// Index lists notes. Fragment requests (search, paging) get partials/note_list.
func (p *Pages) Index(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	size := p.pageSize()

	res, err := p.Notes.List(c.UserContext(), c.Query("q"), size, (page-1)*size)
	if err != nil {
		return err
	}

	if htmx.IsFragment(c) {
		return p.Views.Fragment(c, fiber.StatusOK, "partials/note_list", res)
	}
	return p.Views.Page(c, fiber.StatusOK, "notes/index", "Notes", view.NoteIndex{List: res})
}

// Create adds a note. Invalid input is answered with 422 and the annotated
// form, swapped over #note-form.
func (p *Pages) Create(c *fiber.Ctx) error {
	in, err := parseNoteInput(c)
	if err != nil {
		return err
	}

	n, err := p.Notes.Create(c.UserContext(), in)
	if fe, ok := validate.AsFieldErrors(err); ok {
		form := view.NoteForm{Input: in, Errors: fe}
		if htmx.IsFragment(c) {
			htmx.Retarget(c, "#note-form")
			htmx.Reswap(c, htmx.OuterHTML)
			return p.Views.Fragment(c, fiber.StatusUnprocessableEntity, "partials/note_form", form)
		}
		res, lErr := p.Notes.List(c.UserContext(), "", p.pageSize(), 0)
		if lErr != nil {
			return lErr
		}
		return p.Views.Page(c, fiber.StatusUnprocessableEntity, "notes/index", "Notes", view.NoteIndex{List: res, Form: form})
	}
	if err != nil {
		return err
	}

	if !htmx.IsFragment(c) {
		return seeOther(c, "/notes/"+n.ID)
	}
	if err := htmx.Trigger(c, "note:created", fiber.Map{"id": n.ID}); err != nil {
		return err
	}
	return p.Views.Fragments(c, fiber.StatusOK,
		view.Part{Name: "partials/note", Data: n},
		view.Part{Name: "partials/flash", Data: view.Flash{Kind: "info", Message: "Note created"}},
	)
}

// Show renders one note with its attachments.
func (p *Pages) Show(c *fiber.Ctx) error {
	id, err := noteID(c)
	if err != nil {
		return err
	}
	n, err := p.Notes.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if htmx.IsFragment(c) {
		return p.Views.Fragment(c, fiber.StatusOK, "partials/note", n)
	}
	return p.Views.Page(c, fiber.StatusOK, "notes/show", n.Title, view.ShowOf(n))
}

// Edit returns the inline edit form of a note, or the edit page without htmx.
func (p *Pages) Edit(c *fiber.Ctx) error {
	id, err := noteID(c)
	if err != nil {
		return err
	}
	n, err := p.Notes.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return p.editForm(c, fiber.StatusOK, view.NoteEdit{
		Note:  n,
		Input: model.NoteInput{Title: n.Title, Body: n.Body},
	})
}

func (p *Pages) editForm(c *fiber.Ctx, status int, data view.NoteEdit) error {
	if htmx.IsFragment(c) {
		return p.Views.Fragment(c, status, "partials/note_edit", data)
	}
	return p.Views.Page(c, status, "notes/edit", "Edit note", data)
}

// Update saves an edited note. Invalid input re-renders the edit form, or the
// edit page for plain form posts, with 422.
func (p *Pages) Update(c *fiber.Ctx) error {
	id, err := noteID(c)
	if err != nil {
		return err
	}
	in, err := parseNoteInput(c)
	if err != nil {
		return err
	}

	n, err := p.Notes.Update(c.UserContext(), id, in)
	if fe, ok := validate.AsFieldErrors(err); ok {
		return p.editForm(c, fiber.StatusUnprocessableEntity, view.NoteEdit{
			Note:   &model.Note{ID: id},
			Input:  in,
			Errors: fe,
		})
	}
	if err != nil {
		return err
	}

	if !htmx.IsFragment(c) {
		return seeOther(c, "/notes/"+n.ID)
	}
	return p.Views.Fragment(c, fiber.StatusOK, "partials/note", n)
}

// TogglePin flips the pinned flag of a note.
func (p *Pages) TogglePin(c *fiber.Ctx) error {
	id, err := noteID(c)
	if err != nil {
		return err
	}
	n, err := p.Notes.TogglePin(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !htmx.IsFragment(c) {
		return seeOther(c, "/notes")
	}
	return p.Views.Fragment(c, fiber.StatusOK, "partials/note", n)
}

// Delete removes a note. The empty body makes the client drop the element.
func (p *Pages) Delete(c *fiber.Ctx) error {
	id, err := noteID(c)
	if err != nil {
		return err
	}
	if err := p.Notes.Delete(c.UserContext(), id); err != nil {
		return err
	}
	if !htmx.IsFragment(c) {
		return seeOther(c, "/notes")
	}
	if err := htmx.Trigger(c, "note:deleted", fiber.Map{"id": id, "message": "Note deleted"}); err != nil {
		return err
	}
	return empty(c)
}
