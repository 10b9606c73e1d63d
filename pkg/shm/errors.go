package shm

import (
	"errors"

	internalshm "github.com/srediag/printq/internal/shm"
)

var (
	// ErrUnsupported is returned on platforms without System V shared memory.
	ErrUnsupported = internalshm.ErrUnsupported
	// ErrSegmentNotFound means no segment exists for the agreed key.
	ErrSegmentNotFound = errors.New("shared segment not found")
	// ErrSegmentInUse means a segment with the key exists and still has attachments.
	ErrSegmentInUse = errors.New("shared segment in use")
	// ErrSemaphoreNotFound means a named semaphore has not been created.
	ErrSemaphoreNotFound = errors.New("semaphore not found")
	// ErrSemaphoreExists means a named semaphore is already present.
	ErrSemaphoreExists = errors.New("semaphore already exists")
	// ErrProtocolViolation reports a capacity mismatch or a broken queue invariant.
	// Continuing after it would corrupt state shared with every participant.
	ErrProtocolViolation = errors.New("queue protocol violation")
	// ErrInvalidRequest rejects a request that cannot be stored in a slot.
	ErrInvalidRequest = errors.New("invalid print request")
	// ErrClosed is returned when a handle is used after Close or Detach.
	ErrClosed = errors.New("shared handle closed")
)
