package result

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDGeneratorConcurrent(t *testing.T) {

	g := NewIDGenerator()
	assert.Equal(t, int64(0), g.Last())

	const n = 500

	seen := make(chan int64, n)

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			seen <- g.GetNext()
		}()
	}

	wg.Wait()
	close(seen)

	unique := make(map[int64]bool, n)

	for id := range seen {
		assert.False(t, unique[id], "duplicate id %d", id)
		unique[id] = true
	}

	assert.Len(t, unique, n)
	assert.Equal(t, int64(n), g.Last())
}
