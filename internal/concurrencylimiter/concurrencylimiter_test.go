package concurrencylimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gqlfederate/gateway/internal/concurrencylimiter"
)

func TestConcurrencyLimiter(t *testing.T) {
	ctx := concurrencylimiter.With(context.Background(), 2)

	var mu sync.Mutex
	count := 0
	maxCount := 0

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, release := concurrencylimiter.Acquire(ctx)
			defer release()

			mu.Lock()
			count++
			if count > maxCount {
				maxCount = count
			}
			mu.Unlock()

			time.Sleep(50 * time.Millisecond)

			mu.Lock()
			count--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.True(t, maxCount <= 2)
}

func TestTemporarilyReleaseAllowsOthersIn(t *testing.T) {
	ctx := concurrencylimiter.With(context.Background(), 1)

	var mu sync.Mutex
	ran := 0

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, release := concurrencylimiter.Acquire(ctx)
		defer release()
		concurrencylimiter.TemporarilyRelease(ctx, func() {
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		_, release := concurrencylimiter.Acquire(ctx)
		defer release()
		mu.Lock()
		ran++
		mu.Unlock()
	}()
	wg.Wait()

	assert.Equal(t, 2, ran)
}

func TestAcquireReleaseWithoutLimiter(t *testing.T) {
	ctx := context.Background()
	_, release := concurrencylimiter.Acquire(ctx)
	release()
	release() // idempotent
}

func TestAcquireContextCanceled(t *testing.T) {
	ctx := concurrencylimiter.With(context.Background(), 0)
	ctx, cancel := context.WithCancel(ctx)
	cancel()

	_, release := concurrencylimiter.Acquire(ctx)
	release()
}
