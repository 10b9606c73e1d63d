package shm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	internalshm "github.com/srediag/printq/internal/shm"
)

// Named semaphore file layout under /dev/shm:
//
//	0x00 value   uint32  futex word
//	0x04 waiters uint32  processes sleeping on value
//	0x08 magic   uint32
const (
	semFileSize   = 64
	semOffValue   = 0x00
	semOffWaiters = 0x04
	semOffMagic   = 0x08
	semMagic      = uint32(0x5051534d) // "MSQP"
	semPerm       = 0o644

	// pollSlice bounds a single futex sleep in WaitContext so cancellation is
	// noticed without an extra wake-up channel.
	pollSlice = 50 * time.Millisecond
)

// SemaphoreDir holds the backing files of named semaphores.
const SemaphoreDir = internalshm.ShmDir

// Semaphore is a counting semaphore visible to every process on the host by
// name. The count lives in a shared file and blocking uses a process-shared
// futex, the same construction as POSIX named semaphores on Linux.
type Semaphore struct {
	name    string
	region  *internalshm.MappedRegion
	value   *uint32
	waiters *uint32
	closed  atomic.Bool
}

// CreateSemaphore creates the named semaphore with an initial count. It fails
// with ErrSemaphoreExists when the name is already taken.
func CreateSemaphore(name string, initial uint32) (*Semaphore, error) {
	region, err := internalshm.MapRegion(internalshm.MapOptions{
		Name:      name,
		Size:      semFileSize,
		Create:    true,
		Exclusive: true,
		Perm:      semPerm,
	})
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrSemaphoreExists, name)
		}
		return nil, fmt.Errorf("create semaphore %s: %w", name, err)
	}
	s := newSemaphore(name, region)
	atomic.StoreUint32(s.value, initial)
	atomic.StoreUint32(s.waiters, 0)
	internalshm.AtomicStoreUint32(region.Addr, semOffMagic, semMagic)
	return s, nil
}

// OpenSemaphore opens an existing named semaphore without changing its count.
func OpenSemaphore(name string) (*Semaphore, error) {
	region, err := internalshm.MapRegion(internalshm.MapOptions{Name: name, Size: semFileSize})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSemaphoreNotFound, name)
		}
		return nil, fmt.Errorf("open semaphore %s: %w", name, err)
	}
	if m := internalshm.AtomicLoadUint32(region.Addr, semOffMagic); m != semMagic {
		_ = internalshm.UnmapRegion(region)
		return nil, fmt.Errorf("%w: %s is not a semaphore (magic %#x)", ErrProtocolViolation, name, m)
	}
	return newSemaphore(name, region), nil
}

// UnlinkSemaphore removes the name. Processes holding it open keep working on
// the old object; a later CreateSemaphore starts clean.
func UnlinkSemaphore(name string) error {
	return internalshm.UnlinkRegion(name)
}

func newSemaphore(name string, region *internalshm.MappedRegion) *Semaphore {
	return &Semaphore{
		name:    name,
		region:  region,
		value:   internalshm.Word32(region.Addr, semOffValue),
		waiters: internalshm.Word32(region.Addr, semOffWaiters),
	}
}

// Name returns the semaphore name.
func (s *Semaphore) Name() string { return s.name }

// TryWait decrements the count if it is positive and reports whether it did.
func (s *Semaphore) TryWait() bool {
	if s.closed.Load() {
		return false
	}
	for {
		v := atomic.LoadUint32(s.value)
		if v == 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(s.value, v, v-1) {
			return true
		}
	}
}

// Wait blocks until the count is positive, then decrements it.
func (s *Semaphore) Wait() error {
	return s.wait(context.Background(), 0)
}

// WaitContext is Wait that gives up when ctx is done, without taking a token.
func (s *Semaphore) WaitContext(ctx context.Context) error {
	if ctx.Done() == nil {
		return s.wait(ctx, 0)
	}
	return s.wait(ctx, pollSlice)
}

func (s *Semaphore) wait(ctx context.Context, slice time.Duration) error {
	for {
		if s.closed.Load() {
			return ErrClosed
		}
		if s.TryWait() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		// Registering before the futex check pairs with Post's increment-then-
		// load of waiters: either Post sees us or the kernel sees value != 0.
		atomic.AddUint32(s.waiters, 1)
		err := internalshm.FutexWait(s.value, 0, slice)
		atomic.AddUint32(s.waiters, ^uint32(0))
		if err != nil && !errors.Is(err, internalshm.ErrTimeout) {
			return fmt.Errorf("semaphore %s: %w", s.name, err)
		}
	}
}

// Post increments the count and wakes one waiter, if any.
func (s *Semaphore) Post() error {
	if s.closed.Load() {
		return ErrClosed
	}
	atomic.AddUint32(s.value, 1)
	if atomic.LoadUint32(s.waiters) == 0 {
		return nil
	}
	if _, err := internalshm.FutexWake(s.value, 1); err != nil {
		return fmt.Errorf("semaphore %s: %w", s.name, err)
	}
	return nil
}

// Value returns the current count. It is stale as soon as it returns and is
// meant for diagnostics only.
func (s *Semaphore) Value() int {
	if s.closed.Load() {
		return -1
	}
	return int(atomic.LoadUint32(s.value))
}

// Close unmaps the semaphore from this process. It must not race with a
// blocked Wait on the same handle.
func (s *Semaphore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return internalshm.UnmapRegion(s.region)
}
