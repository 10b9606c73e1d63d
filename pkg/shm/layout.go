package shm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Shared segment schema. Every participant interprets the segment through
// these constants only.
//
// Header (64 bytes):
//
//	0x00 magic     [8]byte "PRINTQ\0\0"
//	0x08 version   uint32
//	0x0C capacity  uint32  slot count
//	0x10 slotSize  uint32
//	0x14 length    uint32  occupied slots
//	0x18 front     uint32  oldest occupied slot
//	0x1C back      uint32  newest written slot
//	0x20 occupants uint32  processes inside the critical section
//	0x24 ownerPID  uint32  creator of the segment
//	0x28 pushed    uint64
//	0x30 popped    uint64
//	0x38 reserved  [8]byte
//
// Slot (80 bytes), capacity of them starting at HeaderSize:
//
//	0x00 clientID int64
//	0x08 fileName [64]byte NUL terminated
//	0x48 fileSize int64
const (
	Magic         = "PRINTQ\x00\x00"
	LayoutVersion = uint32(1)
	HeaderSize    = 64
	SlotSize      = 80

	// MaxFileNameLen leaves room for the terminating NUL.
	MaxFileNameLen = fileNameField - 1

	// DefaultCapacity is the slot count every participant must agree on.
	DefaultCapacity = 3
	// DefaultSegmentKey is the System V key of the shared segment.
	DefaultSegmentKey = 7639184

	offMagic     = 0x00
	offVersion   = 0x08
	offCapacity  = 0x0C
	offSlotSize  = 0x10
	offLength    = 0x14
	offFront     = 0x18
	offBack      = 0x1C
	offOccupants = 0x20
	offOwnerPID  = 0x24
	offPushed    = 0x28
	offPopped    = 0x30

	slotClientID  = 0x00
	slotFileName  = 0x08
	slotFileSize  = 0x48
	fileNameField = 64
)

// RegionSize returns the segment size needed for capacity slots.
func RegionSize(capacity int) int {
	return HeaderSize + capacity*SlotSize
}

// Request is one print job as stored in a slot.
type Request struct {
	ClientID int64
	FileName string
	FileSize int64
}

// Validate reports whether r fits the slot schema.
func (r Request) Validate() error {
	switch {
	case r.FileSize <= 0:
		return fmt.Errorf("%w: file size %d", ErrInvalidRequest, r.FileSize)
	case len(r.FileName) > MaxFileNameLen:
		return fmt.Errorf("%w: file name longer than %d bytes", ErrInvalidRequest, MaxFileNameLen)
	case bytes.IndexByte([]byte(r.FileName), 0) >= 0:
		return fmt.Errorf("%w: file name contains NUL", ErrInvalidRequest)
	}
	return nil
}

func (r Request) String() string {
	return fmt.Sprintf("client=%d file=%s size=%d", r.ClientID, r.FileName, r.FileSize)
}

func slotOffset(idx int) int {
	return HeaderSize + idx*SlotSize
}

func encodeSlot(slot []byte, r Request) {
	binary.NativeEndian.PutUint64(slot[slotClientID:], uint64(r.ClientID))
	name := slot[slotFileName : slotFileName+fileNameField]
	clear(name)
	copy(name, r.FileName)
	binary.NativeEndian.PutUint64(slot[slotFileSize:], uint64(r.FileSize))
}

func decodeSlot(slot []byte) Request {
	name := slot[slotFileName : slotFileName+fileNameField]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Request{
		ClientID: int64(binary.NativeEndian.Uint64(slot[slotClientID:])),
		FileName: string(name),
		FileSize: int64(binary.NativeEndian.Uint64(slot[slotFileSize:])),
	}
}
