package pagestore

import "errors"

// --- Error Definitions ---

var (
	ErrIO               = errors.New("i/o error")
	ErrTableNotOpen     = errors.New("table file is not open")
	ErrInvalidTableFile = errors.New("invalid table file")
	ErrShortPageBuffer  = errors.New("page buffer size does not match page size")
	ErrRawWriteOverlap  = errors.New("raw append would overwrite an existing page")
	ErrStoreClosed      = errors.New("page store is not open")
)
