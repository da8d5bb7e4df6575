package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	id, ok := q.DequeueNext()
	require.True(t, ok)
	assert.Equal(t, "a", id)
	id, _ = q.DequeueNext()
	assert.Equal(t, "b", id)
	id, _ = q.DequeueNext()
	assert.Equal(t, "c", id)
	_, ok = q.DequeueNext()
	assert.False(t, ok)
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q := New()
	q.Enqueue("a")
	q.Enqueue("a")
	assert.Equal(t, 1, q.Len())
}

func TestEnqueueAtClampsPosition(t *testing.T) {
	q := New()
	q.Enqueue("a")
	q.Enqueue("b")
	q.EnqueueAt("front", -5)
	q.EnqueueAt("back", 99)
	assert.Equal(t, []string{"front", "a", "b", "back"}, q.Items())
}

func TestDequeueFirstSkipsIneligible(t *testing.T) {
	q := New()
	q.Enqueue("paused")
	q.Enqueue("ready")

	id, pos, ok := q.DequeueFirst(func(id string) bool { return id == "ready" })
	require.True(t, ok)
	assert.Equal(t, "ready", id)
	assert.Equal(t, 1, pos)
	// the skipped entry keeps its position
	assert.Equal(t, []string{"paused"}, q.Items())

	_, _, ok = q.DequeueFirst(func(id string) bool { return id == "ready" })
	assert.False(t, ok)

	// reinserting at the reported position lands behind the skipped entry
	q.EnqueueAt("ready", pos)
	assert.Equal(t, []string{"paused", "ready"}, q.Items())
}

func TestReorder(t *testing.T) {
	q := New()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Enqueue("c")

	require.True(t, q.MoveUp("b"))
	assert.Equal(t, []string{"b", "a", "c"}, q.Items())

	require.True(t, q.MoveUp("b")) // already at front, no-op
	assert.Equal(t, []string{"b", "a", "c"}, q.Items())

	require.True(t, q.MoveDown("a"))
	assert.Equal(t, []string{"b", "c", "a"}, q.Items())

	require.True(t, q.MoveDown("a")) // already at tail, no-op
	assert.Equal(t, []string{"b", "c", "a"}, q.Items())

	require.True(t, q.MoveToFront("a"))
	assert.Equal(t, []string{"a", "b", "c"}, q.Items())

	assert.False(t, q.MoveUp("missing"))
}

func TestRemove(t *testing.T) {
	q := New()
	q.Enqueue("a")
	q.Enqueue("b")
	assert.True(t, q.Remove("a"))
	assert.False(t, q.Remove("a"))
	assert.Equal(t, []string{"b"}, q.Items())
	assert.Equal(t, -1, q.IndexOf("a"))
	assert.True(t, q.Contains("b"))
}

func TestConcurrentDequeueNeverDuplicates(t *testing.T) {
	q := New()
	const n = 200
	for i := 0; i < n; i++ {
		q.Enqueue(fmt.Sprintf("job-%d", i))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				id, ok := q.DequeueNext()
				if !ok {
					return
				}
				mu.Lock()
				seen[id]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "job %s dequeued %d times", id, count)
	}
}
