package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttachment_IsImage(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"image/png", true},
		{"image/svg+xml", true},
		{"image/", false},
		{"application/pdf", false},
		{"text/plain; charset=utf-8", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, Attachment{ContentType: tt.contentType}.IsImage())
		})
	}
}
