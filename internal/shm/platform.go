// Package shm contains platform-specific helpers for the shared memory print queue:
// System V segments addressed by a numeric key, named files under /dev/shm mapped
// MAP_SHARED, and process-shared futex wait/wake on words inside those mappings.
package shm

import "errors"

// ShmDir is the tmpfs directory holding named shared files.
const ShmDir = "/dev/shm"

var (
	// ErrUnsupported is returned by every operation on platforms without
	// System V shared memory and futexes.
	ErrUnsupported = errors.New("shared memory not supported on this platform")
	// ErrTimeout is returned by FutexWait when the timeout elapses first.
	ErrTimeout = errors.New("futex timeout")
	// ErrInvalidName is returned for names that would escape ShmDir.
	ErrInvalidName = errors.New("invalid shared object name")
)

// Segment is a System V shared memory segment attached to this process.
type Segment struct {
	ID   int
	Key  int
	Addr []byte
}

// SegmentInfo is the kernel's view of a segment (IPC_STAT).
type SegmentInfo struct {
	ID         int
	Size       int
	Attached   uint64
	CreatorPID int
}

// MappedRegion is a named file under ShmDir mapped into this process.
type MappedRegion struct {
	Path string
	Addr []byte
}

// MapOptions defines options for mapping a named shared file.
type MapOptions struct {
	Name string
	Size int
	// Create creates the file if it does not exist and sizes it to Size.
	Create bool
	// Exclusive makes Create fail when the file already exists.
	Exclusive bool
	Perm      uint32
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return false
		}
	}
	return true
}
