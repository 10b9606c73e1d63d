package shm

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SemaphoreNames are the agreed, host-global names of the three semaphores.
type SemaphoreNames struct {
	Mutex string
	Empty string
	Full  string
}

// DefaultSemaphoreNames derives the three names from prefix.
func DefaultSemaphoreNames(prefix string) SemaphoreNames {
	return SemaphoreNames{
		Mutex: prefix + ".mutex",
		Empty: prefix + ".empty",
		Full:  prefix + ".full",
	}
}

func (n SemaphoreNames) all() []string {
	return []string{n.Mutex, n.Empty, n.Full}
}

// SemaphoreSet holds the mutex, empty-slot and full-slot semaphores. The
// handles stay inside this package; Queue is the only user.
type SemaphoreSet struct {
	names SemaphoreNames
	mutex *Semaphore
	empty *Semaphore
	full  *Semaphore
}

// staleRetries bounds unlink-then-recreate attempts on leftover names.
const staleRetries = 3

// CreateSemaphoreSet creates the set with counts mutex=1, empty=capacity,
// full=0. Existing names are taken as left behind by a crashed run, unlinked
// and created again, so callers must first rule out a live owner, for
// example by creating the region for the run.
func CreateSemaphoreSet(names SemaphoreNames, capacity int) (*SemaphoreSet, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid capacity %d", capacity)
	}
	var set *SemaphoreSet
	op := func() error {
		s, err := createSemaphoreSet(names, capacity)
		if err == nil {
			set = s
			return nil
		}
		if !errors.Is(err, ErrSemaphoreExists) {
			return backoff.Permanent(err)
		}
		if uerr := UnlinkSemaphoreSet(names); uerr != nil {
			return backoff.Permanent(fmt.Errorf("recover stale semaphores: %w", uerr))
		}
		return err
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), staleRetries)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return set, nil
}

func createSemaphoreSet(names SemaphoreNames, capacity int) (*SemaphoreSet, error) {
	var created []*Semaphore
	rollback := func() {
		for _, s := range created {
			_ = s.Close()
			_ = UnlinkSemaphore(s.Name())
		}
	}
	initial := map[string]uint32{names.Mutex: 1, names.Empty: uint32(capacity), names.Full: 0}
	for _, name := range names.all() {
		s, err := CreateSemaphore(name, initial[name])
		if err != nil {
			rollback()
			return nil, err
		}
		created = append(created, s)
	}
	return &SemaphoreSet{names: names, mutex: created[0], empty: created[1], full: created[2]}, nil
}

// OpenSemaphoreSet opens a set created by the coordinator. A missing member
// yields ErrSemaphoreNotFound: setup has not finished and the caller must not
// proceed.
func OpenSemaphoreSet(names SemaphoreNames) (*SemaphoreSet, error) {
	var opened []*Semaphore
	for _, name := range names.all() {
		s, err := OpenSemaphore(name)
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, err
		}
		opened = append(opened, s)
	}
	return &SemaphoreSet{names: names, mutex: opened[0], empty: opened[1], full: opened[2]}, nil
}

// UnlinkSemaphoreSet removes all three names.
func UnlinkSemaphoreSet(names SemaphoreNames) error {
	var errs []error
	for _, name := range names.all() {
		if err := UnlinkSemaphore(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns the names the set was created or opened with.
func (s *SemaphoreSet) Names() SemaphoreNames { return s.names }

// Values returns the current counts for diagnostics.
func (s *SemaphoreSet) Values() (mutex, empty, full int) {
	return s.mutex.Value(), s.empty.Value(), s.full.Value()
}

// Close closes this process's handles. The names stay linked.
func (s *SemaphoreSet) Close() error {
	return errors.Join(s.mutex.Close(), s.empty.Close(), s.full.Close())
}

// Unlink removes the names from the host namespace.
func (s *SemaphoreSet) Unlink() error {
	return UnlinkSemaphoreSet(s.names)
}
