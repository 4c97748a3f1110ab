package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"hxnotes/internal/model"
	"hxnotes/internal/service"
	"hxnotes/internal/validate"
)

// ListNotes godoc
// @Summary List notes
// @Description Pinned notes first, then most recently updated.
// @Tags notes
// @Produce json
// @Param q query string false "case-insensitive title/body search"
// @Param limit query int false "page size (max 100)" default(20)
// @Param offset query int false "offset" default(0)
// @Success 200 {object} service.NoteListResult
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/v1/notes [get]
func ListNotes(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", strconv.Itoa(service.DefaultPageSize)))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), c.Query("q"), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// CreateNote godoc
// @Summary Create a note
// @Tags notes
// @Accept json
// @Produce json
// @Param X-CSRF-Token header string true "token from the csrf-token meta tag"
// @Param note body model.NoteInput true "note"
// @Success 201 {object} model.Note
// @Failure 400 {object} errorPayload
// @Failure 403 {object} errorPayload
// @Failure 422 {object} errorPayload
// @Router /api/v1/notes [post]
func CreateNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in model.NoteInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		n, err := svc.Create(c.UserContext(), in)
		if err != nil {
			if fe, ok := validate.AsFieldErrors(err); ok {
				return writeErrorFields(c, fiber.StatusUnprocessableEntity, "VALIDATION_FAILED", "validation failed", fe)
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		c.Location("/api/v1/notes/" + n.ID)
		return c.Status(fiber.StatusCreated).JSON(n)
	}
}

// GetNote godoc
// @Summary Get a note with its attachments
// @Tags notes
// @Produce json
// @Param id path string true "note id (uuid)"
// @Success 200 {object} model.Note
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/v1/notes/{id} [get]
func GetNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		n, err := svc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "note not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(n)
	}
}

// DeleteNote godoc
// @Summary Delete a note and its attachments
// @Tags notes
// @Param X-CSRF-Token header string true "token from the csrf-token meta tag"
// @Param id path string true "note id (uuid)"
// @Success 204
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /api/v1/notes/{id} [delete]
func DeleteNote(svc service.NoteService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "note not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
