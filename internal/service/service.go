// Package service implements the notes use cases on top of the repositories
// and object storage. Handlers depend on the interfaces declared here.
package service

import "errors"

var (
	ErrIDRequired = errors.New("id is required")
	ErrNotFound   = errors.New("not found")
	ErrReaderNil  = errors.New("reader is nil")
)
