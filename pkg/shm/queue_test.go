package shm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockWindow = 150 * time.Millisecond

func TestQueueFillThenPushBlocksUntilPop(t *testing.T) {
	f := newFixture(t, 3)
	producer := f.participant(t)
	ctx := context.Background()

	for i, size := range []int64{500, 40000, 12000} {
		require.NoError(t, producer.Push(ctx, Request{ClientID: 1, FileName: fmt.Sprintf("FILE_1_%d", i+1), FileSize: size}))
	}
	n, err := producer.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	second := f.participant(t)
	pushed := make(chan error, 1)
	go func() {
		pushed <- second.Push(ctx, Request{ClientID: 2, FileName: "FILE_2_1", FileSize: 700})
	}()
	select {
	case err := <-pushed:
		t.Fatalf("fourth push returned while the queue was full: %v", err)
	case <-time.After(blockWindow):
	}

	consumer := f.participant(t)
	got, err := consumer.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.FileSize)

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("fourth push still blocked after a pop")
	}
	st, err := consumer.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Length)
	assert.Equal(t, []int64{40000, 12000, 700}, sizes(st.Items))
}

func TestQueuePopBlocksUntilPush(t *testing.T) {
	f := newFixture(t, 3)
	consumer := f.participant(t)
	ctx := context.Background()

	popped := make(chan Request, 1)
	go func() {
		req, err := consumer.Pop(ctx)
		if err == nil {
			popped <- req
		}
	}()
	select {
	case <-popped:
		t.Fatal("pop returned from an empty queue")
	case <-time.After(blockWindow):
	}

	want := Request{ClientID: 42, FileName: "FILE_42_1", FileSize: 1000}
	require.NoError(t, f.participant(t).Push(ctx, want))
	select {
	case got := <-popped:
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("pop still blocked after a push")
	}
}

func TestQueueTwoProducersOneConsumer(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	const perProducer = 6

	var wg sync.WaitGroup
	for p := int64(1); p <= 2; p++ {
		q := f.participant(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= perProducer; i++ {
				if err := q.Push(ctx, Request{ClientID: p, FileName: fmt.Sprintf("FILE_%d_%d", p, i), FileSize: int64(i)}); err != nil {
					t.Errorf("producer %d: %v", p, err)
					return
				}
			}
		}()
	}

	consumer := f.participant(t)
	seen := map[string]int{}
	lastSeq := map[int64]int64{}
	for i := 0; i < 2*perProducer; i++ {
		req, err := consumer.Pop(ctx)
		require.NoError(t, err)
		seen[req.FileName]++
		assert.Greater(t, req.FileSize, lastSeq[req.ClientID], "producer %d out of order", req.ClientID)
		lastSeq[req.ClientID] = req.FileSize
	}
	wg.Wait()

	assert.Len(t, seen, 2*perProducer)
	for name, n := range seen {
		assert.Equal(t, 1, n, "%s consumed %d times", name, n)
	}
	n, err := consumer.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueFIFOAcrossWraparound(t *testing.T) {
	f := newFixture(t, 3)
	q := f.participant(t)
	ctx := context.Background()

	next := int64(1)
	var want []int64
	for round := 0; round < 5; round++ {
		for q.sems.empty.Value() > 0 {
			require.NoError(t, q.Push(ctx, Request{ClientID: 1, FileName: "f", FileSize: next}))
			want = append(want, next)
			next++
		}
		// drain two of three to move front around the ring
		for i := 0; i < 2; i++ {
			got, err := q.Pop(ctx)
			require.NoError(t, err)
			require.Equal(t, want[0], got.FileSize)
			want = want[1:]
		}
	}
	st, err := q.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, want, sizes(st.Items))
}

// Many participants hammer one segment; the occupants word in the header
// turns any overlapping critical section into ErrProtocolViolation.
func TestQueueMutualExclusionAndCapacity(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	const producers, consumers, perProducer = 4, 3, 50

	var wg sync.WaitGroup
	errs := make(chan error, producers+consumers+1)
	results := make(chan Request, producers*perProducer)
	for p := 0; p < producers; p++ {
		q := f.participant(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 1; i <= perProducer; i++ {
				if err := q.Push(ctx, Request{ClientID: int64(p), FileName: fmt.Sprintf("FILE_%d_%d", p, i), FileSize: int64(i)}); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	var cwg sync.WaitGroup
	cctx, cancel := context.WithCancel(ctx)
	for c := 0; c < consumers; c++ {
		q := f.participant(t)
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				req, err := q.Pop(cctx)
				if err != nil {
					if cctx.Err() == nil {
						errs <- err
					}
					return
				}
				results <- req
			}
		}()
	}
	observer := f.participant(t)
	stop := make(chan struct{})
	cwg.Add(1)
	go func() {
		defer cwg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			st, err := observer.Snapshot()
			if err != nil {
				errs <- err
				return
			}
			if st.Length < 0 || st.Length > st.Capacity {
				errs <- fmt.Errorf("length %d outside [0, %d]", st.Length, st.Capacity)
				return
			}
		}
	}()

	wg.Wait()
	got := map[string]bool{}
	for len(got) < producers*perProducer {
		select {
		case req := <-results:
			require.False(t, got[req.FileName], "duplicate %s", req.FileName)
			got[req.FileName] = true
		case err := <-errs:
			t.Fatal(err)
		case <-time.After(10 * time.Second):
			t.Fatalf("consumed %d of %d", len(got), producers*perProducer)
		}
	}
	close(stop)
	cancel()
	cwg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	st, err := observer.Snapshot()
	require.NoError(t, err)
	assert.Zero(t, st.Length)
	assert.Equal(t, uint64(producers*perProducer), st.Pushed)
	assert.Equal(t, uint64(producers*perProducer), st.Popped)
	assert.Equal(t, 1, st.Mutex)
	assert.Equal(t, 3, st.Empty)
	assert.Equal(t, 0, st.Full)
}

func TestQueuePopCancelledLeavesQueueIntact(t *testing.T) {
	f := newFixture(t, 3)
	q := f.participant(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, q.Push(context.Background(), Request{ClientID: 1, FileName: "f", FileSize: 1}))
	_, _, full := f.sems.Values()
	assert.Equal(t, 1, full)
}

func TestQueuePushRejectsInvalidRequest(t *testing.T) {
	f := newFixture(t, 3)
	q := f.participant(t)

	err := q.Push(context.Background(), Request{ClientID: 1, FileName: "f", FileSize: 0})
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, empty, _ := f.sems.Values()
	assert.Equal(t, 3, empty, "no slot consumed")
}

func sizes(items []Request) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.FileSize)
	}
	return out
}
