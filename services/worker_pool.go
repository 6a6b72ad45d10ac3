package services

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// RunBounded calls fn for every item on at most width goroutines and returns
// one result per item at the item's index. A panic in fn is recovered and
// converted by onPanic; it never stops the other items.
func RunBounded[T, R any](ctx context.Context, width int, items []T, fn func(ctx context.Context, idx int, item T) R, onPanic func(idx int, err error) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if width <= 0 {
		width = 1
	}
	if width > len(items) {
		width = len(items)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < width; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = runOne(ctx, idx, items[idx], fn, onPanic)
			}
		}()
	}

	for idx := range items {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return results
}

func runOne[T, R any](ctx context.Context, idx int, item T, fn func(context.Context, int, T) R, onPanic func(int, error) R) (result R) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Printf("WorkerPool: item %d: %v", idx, err)
			if onPanic != nil {
				result = onPanic(idx, err)
			}
		}
	}()
	return fn(ctx, idx, item)
}
