package validate

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hxnotes/internal/model"
)

func TestValidator_NoteInput(t *testing.T) {
	v := New()

	tests := []struct {
		name   string
		in     model.NoteInput
		fields FieldErrors
	}{
		{name: "valid", in: model.NoteInput{Title: "Groceries", Body: "milk"}},
		{name: "empty body is fine", in: model.NoteInput{Title: "Groceries"}},
		{
			name:   "missing title",
			in:     model.NoteInput{Body: "x"},
			fields: FieldErrors{"title": "title is required"},
		},
		{
			name:   "blank title",
			in:     model.NoteInput{Title: "   "},
			fields: FieldErrors{"title": "title is required"},
		},
		{
			name:   "title too long",
			in:     model.NoteInput{Title: strings.Repeat("a", 201)},
			fields: FieldErrors{"title": "title must be at most 200 characters long"},
		},
		{
			name: "both fields invalid",
			in:   model.NoteInput{Title: "", Body: strings.Repeat("b", 20001)},
			fields: FieldErrors{
				"title": "title is required",
				"body":  "body must be at most 20000 characters long",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			fe, ok := AsFieldErrors(err)
			require.True(t, ok)
			assert.Equal(t, tt.fields, fe)
		})
	}
}

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{"title": "title is required", "body": "body is invalid"}
	assert.Equal(t, "validation failed: body: body is invalid, title: title is required", fe.Error())
	assert.Equal(t, "title is required", fe.Get("title"))
	assert.Empty(t, fe.Get("missing"))

	var nilErrs FieldErrors
	assert.Empty(t, nilErrs.Get("title"))

	wrapped := fmt.Errorf("create note: %w", fe)
	got, ok := AsFieldErrors(wrapped)
	assert.True(t, ok)
	assert.Equal(t, fe, got)

	_, ok = AsFieldErrors(errors.New("other"))
	assert.False(t, ok)
}
