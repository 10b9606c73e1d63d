package shm

import (
	"sync/atomic"
	"unsafe"
)

// Word32 returns the 32-bit word at byte offset off of a shared mapping.
// off must be 4-byte aligned.
func Word32(mem []byte, off uintptr) *uint32 {
	_ = mem[off+3]
	return (*uint32)(unsafe.Pointer(&mem[off]))
}

// Word64 returns the 64-bit word at byte offset off. off must be 8-byte aligned.
func Word64(mem []byte, off uintptr) *uint64 {
	_ = mem[off+7]
	return (*uint64)(unsafe.Pointer(&mem[off]))
}

// AtomicLoadUint32 loads a uint32 from shared memory atomically.
func AtomicLoadUint32(mem []byte, off uintptr) uint32 {
	return atomic.LoadUint32(Word32(mem, off))
}

// AtomicStoreUint32 stores a uint32 to shared memory atomically.
func AtomicStoreUint32(mem []byte, off uintptr, val uint32) {
	atomic.StoreUint32(Word32(mem, off), val)
}

// AtomicAddUint32 adds delta to a uint32 in shared memory and returns the new value.
func AtomicAddUint32(mem []byte, off uintptr, delta uint32) uint32 {
	return atomic.AddUint32(Word32(mem, off), delta)
}

// AtomicCompareAndSwapUint32 atomically compares and swaps a uint32 in shared memory.
func AtomicCompareAndSwapUint32(mem []byte, off uintptr, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(Word32(mem, off), old, new)
}

// AtomicLoadUint64 loads a uint64 from shared memory atomically.
func AtomicLoadUint64(mem []byte, off uintptr) uint64 {
	return atomic.LoadUint64(Word64(mem, off))
}

// AtomicStoreUint64 stores a uint64 to shared memory atomically.
func AtomicStoreUint64(mem []byte, off uintptr, val uint64) {
	atomic.StoreUint64(Word64(mem, off), val)
}

// AtomicAddUint64 adds delta to a uint64 in shared memory and returns the new value.
func AtomicAddUint64(mem []byte, off uintptr, delta uint64) uint64 {
	return atomic.AddUint64(Word64(mem, off), delta)
}
