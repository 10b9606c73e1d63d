package shm

import (
	"errors"
	"fmt"
	"os"
	"sync"

	internalshm "github.com/srediag/printq/internal/shm"
)

const segmentPerm = 0o666

// Region is this process's handle on the shared segment. The segment itself is
// created once by the coordinator and attached, never copied, by every worker.
type Region struct {
	mu       sync.Mutex
	seg      *internalshm.Segment
	id       int
	key      int
	capacity int
	mem      []byte
}

// CreateRegion creates and initializes the segment for key with capacity slots.
// A leftover segment with no attachments (a crashed earlier run) is removed and
// recreated; one that is still attached yields ErrSegmentInUse.
func CreateRegion(key, capacity int) (*Region, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid capacity %d", capacity)
	}
	size := RegionSize(capacity)
	seg, err := internalshm.CreateSegment(key, size, segmentPerm)
	if errors.Is(err, os.ErrExist) {
		info, serr := internalshm.StatSegment(key)
		if serr != nil {
			return nil, fmt.Errorf("inspect existing segment %d: %w", key, serr)
		}
		if info.Attached > 0 {
			return nil, fmt.Errorf("%w: key %d has %d attachments", ErrSegmentInUse, key, info.Attached)
		}
		if rerr := internalshm.RemoveSegmentID(info.ID); rerr != nil {
			return nil, fmt.Errorf("remove stale segment %d: %w", key, rerr)
		}
		seg, err = internalshm.CreateSegment(key, size, segmentPerm)
	}
	if err != nil {
		return nil, fmt.Errorf("create segment %d: %w", key, err)
	}
	r := &Region{seg: seg, id: seg.ID, key: key, capacity: capacity, mem: seg.Addr}
	if len(r.mem) < size {
		_ = r.Detach()
		_ = r.Remove()
		return nil, fmt.Errorf("segment %d: mapped %d bytes, need %d", key, len(r.mem), size)
	}
	r.initialize(os.Getpid())
	return r, nil
}

// AttachRegion attaches the existing segment for key and verifies that it was
// laid out for the same schema and capacity as this process expects.
func AttachRegion(key, capacity int) (*Region, error) {
	seg, err := internalshm.AttachSegment(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: key %d", ErrSegmentNotFound, key)
		}
		return nil, fmt.Errorf("attach segment %d: %w", key, err)
	}
	r := &Region{seg: seg, id: seg.ID, key: key, capacity: capacity, mem: seg.Addr}
	if err := r.validate(); err != nil {
		_ = r.Detach()
		return nil, err
	}
	return r, nil
}

// RemoveRegion marks the segment for key for removal without attaching it.
func RemoveRegion(key int) error {
	return internalshm.RemoveSegment(key)
}

func (r *Region) initialize(pid int) {
	clear(r.mem[:RegionSize(r.capacity)])
	internalshm.AtomicStoreUint32(r.mem, offVersion, LayoutVersion)
	internalshm.AtomicStoreUint32(r.mem, offCapacity, uint32(r.capacity))
	internalshm.AtomicStoreUint32(r.mem, offSlotSize, SlotSize)
	internalshm.AtomicStoreUint32(r.mem, offOwnerPID, uint32(pid))
	// magic goes last: a half-initialized segment never validates
	copy(r.mem[offMagic:offMagic+len(Magic)], Magic)
}

func (r *Region) validate() error {
	if len(r.mem) < HeaderSize {
		return fmt.Errorf("%w: segment %d is %d bytes", ErrProtocolViolation, r.key, len(r.mem))
	}
	if string(r.mem[offMagic:offMagic+len(Magic)]) != Magic {
		return fmt.Errorf("%w: segment %d has no queue header", ErrProtocolViolation, r.key)
	}
	if v := internalshm.AtomicLoadUint32(r.mem, offVersion); v != LayoutVersion {
		return fmt.Errorf("%w: layout version %d, expected %d", ErrProtocolViolation, v, LayoutVersion)
	}
	if s := internalshm.AtomicLoadUint32(r.mem, offSlotSize); s != SlotSize {
		return fmt.Errorf("%w: slot size %d, expected %d", ErrProtocolViolation, s, SlotSize)
	}
	if c := int(internalshm.AtomicLoadUint32(r.mem, offCapacity)); c != r.capacity {
		return fmt.Errorf("%w: capacity %d, expected %d", ErrProtocolViolation, c, r.capacity)
	}
	if len(r.mem) < RegionSize(r.capacity) {
		return fmt.Errorf("%w: segment %d is %d bytes, need %d", ErrProtocolViolation, r.key, len(r.mem), RegionSize(r.capacity))
	}
	return nil
}

// Key returns the System V key of the segment.
func (r *Region) Key() int { return r.key }

// Capacity returns the slot count.
func (r *Region) Capacity() int { return r.capacity }

// OwnerPID returns the pid of the process that created the segment.
func (r *Region) OwnerPID() (int, error) {
	mem, err := r.memory()
	if err != nil {
		return 0, err
	}
	return int(internalshm.AtomicLoadUint32(mem, offOwnerPID)), nil
}

// Detach unmaps the segment from this process. It is idempotent and leaves
// other attachments intact.
func (r *Region) Detach() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return nil
	}
	r.mem = nil
	return internalshm.DetachSegment(r.seg)
}

// Remove marks the segment for destruction. The kernel defers it until every
// participant has detached, so calling it while workers run is safe.
func (r *Region) Remove() error {
	return internalshm.RemoveSegmentID(r.id)
}

func (r *Region) memory() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mem == nil {
		return nil, ErrClosed
	}
	return r.mem, nil
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// meta is the queue metadata read inside the critical section.
type meta struct {
	length, front, back int
}

// The methods below must only run between mutex Wait and Post.

func (r *Region) enter(mem []byte) uint32 {
	return internalshm.AtomicAddUint32(mem, offOccupants, 1)
}

func (r *Region) leave(mem []byte) {
	internalshm.AtomicAddUint32(mem, offOccupants, ^uint32(0))
}

func (r *Region) loadMeta(mem []byte) (meta, error) {
	m := meta{
		length: int(internalshm.AtomicLoadUint32(mem, offLength)),
		front:  int(internalshm.AtomicLoadUint32(mem, offFront)),
		back:   int(internalshm.AtomicLoadUint32(mem, offBack)),
	}
	c := r.capacity
	switch {
	case m.length < 0 || m.length > c:
		return m, violation("length %d outside [0, %d]", m.length, c)
	case m.front < 0 || m.front >= c:
		return m, violation("front %d outside [0, %d)", m.front, c)
	case m.back < 0 || m.back >= c:
		return m, violation("back %d outside [0, %d)", m.back, c)
	case m.length > 0 && m.back != (m.front+m.length-1)%c:
		return m, violation("back %d inconsistent with front %d and length %d", m.back, m.front, m.length)
	}
	return m, nil
}

func (r *Region) storeMeta(mem []byte, m meta) {
	internalshm.AtomicStoreUint32(mem, offLength, uint32(m.length))
	internalshm.AtomicStoreUint32(mem, offFront, uint32(m.front))
	internalshm.AtomicStoreUint32(mem, offBack, uint32(m.back))
}

func (r *Region) slot(mem []byte, idx int) []byte {
	off := slotOffset(idx)
	return mem[off : off+SlotSize]
}

func (r *Region) push(req Request) error {
	mem, err := r.memory()
	if err != nil {
		return err
	}
	n := r.enter(mem)
	defer r.leave(mem)
	if n != 1 {
		return violation("%d processes inside the critical section", n)
	}
	m, err := r.loadMeta(mem)
	if err != nil {
		return err
	}
	if m.length == r.capacity {
		return violation("push into a full queue")
	}
	m.length++
	m.back = (m.front + m.length - 1) % r.capacity
	encodeSlot(r.slot(mem, m.back), req)
	r.storeMeta(mem, m)
	internalshm.AtomicAddUint64(mem, offPushed, 1)
	return nil
}

func (r *Region) pop() (Request, error) {
	mem, err := r.memory()
	if err != nil {
		return Request{}, err
	}
	n := r.enter(mem)
	defer r.leave(mem)
	if n != 1 {
		return Request{}, violation("%d processes inside the critical section", n)
	}
	m, err := r.loadMeta(mem)
	if err != nil {
		return Request{}, err
	}
	if m.length == 0 {
		return Request{}, violation("pop from an empty queue")
	}
	req := decodeSlot(r.slot(mem, m.front))
	m.length--
	m.front = (m.front + 1) % r.capacity
	r.storeMeta(mem, m)
	internalshm.AtomicAddUint64(mem, offPopped, 1)
	return req, nil
}

// State is a consistent snapshot of the queue taken under the mutex.
type State struct {
	Key      int
	Capacity int
	Length   int
	Front    int
	Back     int
	Pushed   uint64
	Popped   uint64
	OwnerPID int
	// Items holds the live slots in FIFO order.
	Items []Request
	// Semaphore counts, read outside the critical section for diagnostics.
	Mutex, Empty, Full int
}

func (r *Region) snapshot() (State, error) {
	mem, err := r.memory()
	if err != nil {
		return State{}, err
	}
	n := r.enter(mem)
	defer r.leave(mem)
	if n != 1 {
		return State{}, violation("%d processes inside the critical section", n)
	}
	m, err := r.loadMeta(mem)
	if err != nil {
		return State{}, err
	}
	st := State{
		Key:      r.key,
		Capacity: r.capacity,
		Length:   m.length,
		Front:    m.front,
		Back:     m.back,
		Pushed:   internalshm.AtomicLoadUint64(mem, offPushed),
		Popped:   internalshm.AtomicLoadUint64(mem, offPopped),
		OwnerPID: int(internalshm.AtomicLoadUint32(mem, offOwnerPID)),
		Items:    make([]Request, 0, m.length),
	}
	for i := 0; i < m.length; i++ {
		st.Items = append(st.Items, decodeSlot(r.slot(mem, (m.front+i)%r.capacity)))
	}
	return st, nil
}
