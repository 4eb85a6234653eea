package serial_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/serial"
	"github.com/stretchr/testify/require"
)

func TestQueue_RunsInSubmissionOrder(t *testing.T) {
	q := serial.New()
	defer q.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.RunAsync(func() { got = append(got, i) })
	}
	require.NoError(t, q.RunSync(context.Background(), func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestQueue_NeverRunsWorkConcurrently(t *testing.T) {
	q := serial.New()
	defer q.Close()

	var (
		wg      sync.WaitGroup
		running int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.RunSync(context.Background(), func() {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestQueue_RunSyncCancelledBeforeStart(t *testing.T) {
	q := serial.New()
	defer q.Close()

	release := make(chan struct{})
	q.RunAsync(func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := q.RunSync(ctx, func() { ran = true })
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, q.RunSync(context.Background(), func() {}))
	require.False(t, ran)
}

func TestQueue_Close(t *testing.T) {
	q := serial.New()

	count := 0
	for i := 0; i < 10; i++ {
		q.RunAsync(func() { count++ })
	}
	q.Close()
	require.Equal(t, 10, count)

	err := q.RunSync(context.Background(), func() { count++ })
	require.ErrorIs(t, err, serial.ErrClosed)
	q.RunAsync(func() { count++ })
	require.Equal(t, 10, count)

	q.Close()
}
