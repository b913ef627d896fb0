package bufferpool

import "errors"

// --- Error Definitions ---

var (
	ErrInvalidConfig         = errors.New("invalid buffer pool configuration")
	ErrAllocationFailure     = errors.New("cannot allocate buffer pool memory")
	ErrVictimUnavailable     = errors.New("buffer pool is full and every slot is pinned")
	ErrBindingAnomaly        = errors.New("buffer binding not found in hashtable")
	ErrPreconditionViolation = errors.New("invalid buffer slot")
	ErrPoolClosed            = errors.New("buffer pool is closed")
	ErrInvalidPage           = errors.New("invalid page for free-page list")
	ErrCorruptFreeList       = errors.New("table free-page list is corrupt")
)
