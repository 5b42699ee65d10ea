package buildchain

import (
	"context"
	"sync"
)

const defaultMaxConcurrency = 10

// fanOut runs work for every item on at most maxConcurrency goroutines and returns the
// concatenated results in no particular order. It returns only after every worker is done.
func fanOut[I any, O any](ctx context.Context, maxConcurrency int, items []I, work func(context.Context, I) []O) []O {
	if len(items) == 0 {
		return nil
	}

	queue := make(chan I)
	results := make(chan []O, len(items))

	// Producer to keep feeding the queue
	go itemsProducer(ctx, queue, items)

	workers := min(maxConcurrency, len(items))
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				results <- work(ctx, item)
			}
		}()
	}

	wg.Wait()
	close(results)

	var out []O
	for r := range results {
		out = append(out, r...)
	}
	return out
}

func itemsProducer[I any](ctx context.Context, queue chan<- I, items []I) {
	defer close(queue)
	for i := range items {
		select {
		case queue <- items[i]:
		case <-ctx.Done():
			return
		}
	}
}
