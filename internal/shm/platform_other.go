//go:build !linux

package shm

import "time"

// Every operation below reports ErrUnsupported: System V segments and
// process-shared futexes are only implemented for Linux.

// CreateSegment is not supported on this platform.
func CreateSegment(key, size int, perm uint32) (*Segment, error) { return nil, ErrUnsupported }

// AttachSegment is not supported on this platform.
func AttachSegment(key int) (*Segment, error) { return nil, ErrUnsupported }

// StatSegment is not supported on this platform.
func StatSegment(key int) (SegmentInfo, error) { return SegmentInfo{}, ErrUnsupported }

// DetachSegment is not supported on this platform.
func DetachSegment(seg *Segment) error { return ErrUnsupported }

// RemoveSegmentID is not supported on this platform.
func RemoveSegmentID(id int) error { return ErrUnsupported }

// RemoveSegment is not supported on this platform.
func RemoveSegment(key int) error { return ErrUnsupported }

// MapRegion is not supported on this platform.
func MapRegion(opts MapOptions) (*MappedRegion, error) { return nil, ErrUnsupported }

// UnmapRegion is not supported on this platform.
func UnmapRegion(region *MappedRegion) error { return ErrUnsupported }

// UnlinkRegion is not supported on this platform.
func UnlinkRegion(name string) error { return ErrUnsupported }

// FutexWait is not supported on this platform.
func FutexWait(addr *uint32, val uint32, timeout time.Duration) error { return ErrUnsupported }

// FutexWake is not supported on this platform.
func FutexWake(addr *uint32, n int) (int, error) { return 0, ErrUnsupported }
