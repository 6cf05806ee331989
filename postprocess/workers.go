package postprocess

import (
	"runtime"
	"sync"
)

// Workers is a fixed pool of goroutines used for data parallel fan-out.  Run
// dispatches tasks to the pool and blocks until all of them have completed.
type Workers struct {
	size  int
	tasks chan func()
	close sync.Once
}

// NewWorkers starts a pool of size goroutines, size <= 0 uses NumCPU
func NewWorkers(size int) *Workers {

	if size <= 0 {
		size = runtime.NumCPU()
	}

	w := &Workers{
		size:  size,
		tasks: make(chan func(), size),
	}

	for i := 0; i < size; i++ {
		go w.loop()
	}

	return w
}

func (w *Workers) loop() {
	for task := range w.tasks {
		task()
	}
}

// Size returns the number of goroutines in the pool
func (w *Workers) Size() int {
	return w.size
}

// Run calls fn(i) for i in [0,n) across the pool and waits for all calls to
// return.  Run must not be called from inside a task.
func (w *Workers) Run(n int, fn func(i int)) {

	if n == 1 {
		fn(0)
		return
	}

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		i := i
		w.tasks <- func() {
			defer wg.Done()
			fn(i)
		}
	}

	wg.Wait()
}

// Chunks splits [0,n) into at most Size contiguous ranges and runs fn over
// each of them in parallel, fn receives the chunk number and range
func (w *Workers) Chunks(n int, fn func(chunk, start, end int)) int {

	chunks := w.size

	if chunks > n {
		chunks = n
	}

	if chunks <= 0 {
		return 0
	}

	step := (n + chunks - 1) / chunks
	chunks = (n + step - 1) / step

	w.Run(chunks, func(c int) {
		start := c * step
		end := start + step

		if end > n {
			end = n
		}

		fn(c, start, end)
	})

	return chunks
}

// Close stops the pool goroutines
func (w *Workers) Close() {
	w.close.Do(func() {
		close(w.tasks)
	})
}
