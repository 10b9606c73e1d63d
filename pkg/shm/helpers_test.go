package shm

import (
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixture owns the shared objects of one test, the way a coordinator would.
type fixture struct {
	key      int
	names    SemaphoreNames
	capacity int
	region   *Region
	sems     *SemaphoreSet
}

func testKey() int {
	return 0x51000000 + rand.IntN(0x00ffffff)
}

func testNames() SemaphoreNames {
	return DefaultSemaphoreNames(fmt.Sprintf("printq-test-%d-%x", os.Getpid(), rand.Uint64()))
}

func skipUnlessLinux(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skipf("platform not implemented: %s", runtime.GOOS)
	}
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	skipUnlessLinux(t)
	f := &fixture{key: testKey(), names: testNames(), capacity: capacity}
	region, err := CreateRegion(f.key, capacity)
	if err != nil {
		t.Skipf("System V shared memory unavailable: %v", err)
	}
	f.region = region
	sems, err := CreateSemaphoreSet(f.names, capacity)
	if err != nil {
		_ = region.Detach()
		_ = region.Remove()
		t.Skipf("/dev/shm unavailable: %v", err)
	}
	f.sems = sems
	t.Cleanup(func() {
		_ = f.sems.Close()
		_ = f.sems.Unlink()
		_ = f.region.Detach()
		_ = f.region.Remove()
	})
	return f
}

// participant attaches the way an independent process does: its own mapping
// of the segment and its own semaphore handles.
func (f *fixture) participant(t *testing.T) *Queue {
	t.Helper()
	region, err := AttachRegion(f.key, f.capacity)
	require.NoError(t, err)
	sems, err := OpenSemaphoreSet(f.names)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sems.Close()
		_ = region.Detach()
	})
	q, err := NewQueue(region, sems)
	require.NoError(t, err)
	return q
}
