//go:build linux

package shm

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CreateSegment creates a new segment for key and attaches it. It fails with an
// error matching os.ErrExist when a segment with that key already exists.
func CreateSegment(key, size int, perm uint32) (*Segment, error) {
	id, err := unix.SysvShmGet(key, size, unix.IPC_CREAT|unix.IPC_EXCL|int(perm&0o777))
	if err != nil {
		return nil, fmt.Errorf("shmget: %w", err)
	}
	addr, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, fmt.Errorf("shmat: %w", err)
	}
	return &Segment{ID: id, Key: key, Addr: addr}, nil
}

// AttachSegment attaches the existing segment for key. A missing segment is
// reported with an error matching os.ErrNotExist.
func AttachSegment(key int) (*Segment, error) {
	id, err := unix.SysvShmGet(key, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmget: %w", err)
	}
	addr, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat: %w", err)
	}
	return &Segment{ID: id, Key: key, Addr: addr}, nil
}

// StatSegment reports the kernel's bookkeeping for the segment behind key.
func StatSegment(key int) (SegmentInfo, error) {
	id, err := unix.SysvShmGet(key, 0, 0)
	if err != nil {
		return SegmentInfo{}, fmt.Errorf("shmget: %w", err)
	}
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		return SegmentInfo{}, fmt.Errorf("shmctl IPC_STAT: %w", err)
	}
	return SegmentInfo{
		ID:         id,
		Size:       int(desc.Segsz),
		Attached:   uint64(desc.Nattch),
		CreatorPID: int(desc.Cpid),
	}, nil
}

// DetachSegment unmaps the segment from this process. Other attachments stay valid.
func DetachSegment(seg *Segment) error {
	if seg == nil || seg.Addr == nil {
		return nil
	}
	if err := unix.SysvShmDetach(seg.Addr); err != nil {
		return fmt.Errorf("shmdt: %w", err)
	}
	seg.Addr = nil
	return nil
}

// RemoveSegmentID marks the segment for destruction. The kernel frees it once
// the last attachment is gone.
func RemoveSegmentID(id int) error {
	if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil {
		if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EIDRM) {
			return nil
		}
		return fmt.Errorf("shmctl IPC_RMID: %w", err)
	}
	return nil
}

// RemoveSegment marks the segment behind key for destruction. A missing key is not an error.
func RemoveSegment(key int) error {
	id, err := unix.SysvShmGet(key, 0, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("shmget: %w", err)
	}
	return RemoveSegmentID(id)
}

// MapRegion maps or creates a named shared file.
func MapRegion(opts MapOptions) (*MappedRegion, error) {
	if !validName(opts.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, opts.Name)
	}
	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT
		if opts.Exclusive {
			flags |= unix.O_EXCL
		}
	}
	perm := opts.Perm
	if perm == 0 {
		perm = 0o600
	}
	path := filepath.Join(ShmDir, opts.Name)
	fd, err := unix.Open(path, flags, perm)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// the mapping outlives the descriptor
	defer unix.Close(fd)

	if opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			return nil, fmt.Errorf("ftruncate %s: %w", path, err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			return nil, fmt.Errorf("fstat %s: %w", path, err)
		}
		if st.Size < int64(opts.Size) {
			return nil, fmt.Errorf("%s: size %d smaller than %d", path, st.Size, opts.Size)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MappedRegion{Path: path, Addr: addr}, nil
}

// UnmapRegion unmaps the shared file from this process.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	return nil
}

// UnlinkRegion removes the name from ShmDir. A missing name is not an error.
func UnlinkRegion(name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := unix.Unlink(filepath.Join(ShmDir, name)); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("unlink %s: %w", name, err)
	}
	return nil
}
