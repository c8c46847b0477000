package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWorkQueue_DedupesUntilDone(t *testing.T) {
	q := newWorkQueue()

	assert.True(t, q.Push(1))
	assert.False(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.Equal(t, 2, q.Pending())

	id, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	// still in flight
	assert.False(t, q.Push(1))
	q.Done(1)
	assert.True(t, q.Push(1))

	id, err = q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
}

func TestWorkQueue_RequeueKeepsPending(t *testing.T) {
	q := newWorkQueue()
	q.Push(1)
	q.Push(2)

	id, err := q.Pop(context.Background())
	require.NoError(t, err)
	q.Requeue(id)
	assert.Equal(t, 2, q.Pending())
	assert.False(t, q.Push(1))

	id, err = q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	id, err = q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestWorkQueue_PopBlocksUntilPushOrCancel(t *testing.T) {
	q := newWorkQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan int64, 1)
	go func() {
		id, err := q.Pop(context.Background())
		if err == nil {
			got <- id
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(9)

	select {
	case id := <-got:
		assert.Equal(t, int64(9), id)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake up")
	}
}

func TestWorkQueue_ManyConsumersDrainEverything(t *testing.T) {
	q := newWorkQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 200
	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, err := q.Pop(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[id]++
				mu.Unlock()
				q.Done(id)
			}
		}()
	}

	for i := int64(1); i <= n; i++ {
		q.Push(i)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == n
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	for id, c := range seen {
		assert.Equal(t, 1, c, "id %d", id)
	}
}

func TestWorkQueue_FIFOProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ids := rapid.SliceOf(rapid.Int64Range(1, 20)).Draw(t, "ids")
		q := newWorkQueue()

		var want []int64
		seen := map[int64]bool{}
		for _, id := range ids {
			if q.Push(id) != !seen[id] {
				t.Fatalf("push %d: dedupe mismatch", id)
			}
			if !seen[id] {
				want = append(want, id)
				seen[id] = true
			}
		}

		if q.Pending() != len(want) {
			t.Fatalf("pending %d, want %d", q.Pending(), len(want))
		}
		for _, w := range want {
			got, err := q.Pop(context.Background())
			if err != nil || got != w {
				t.Fatalf("pop = %d, %v; want %d", got, err, w)
			}
		}
	})
}
