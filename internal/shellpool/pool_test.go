package shellpool

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeWorker wires a Worker's stdin/stdout to an in-process goroutine that
// answers every request with a canned success response, so pool tests never
// spawn a real process.
func newFakeWorker(dir string) *Worker {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	go func() {
		reader := bufio.NewReader(inR)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				return
			}
			var req Request
			_ = json.Unmarshal(line, &req)
			resp := Response{ID: req.ID, ExitCode: 0}
			payload, _ := json.Marshal(resp)
			payload = append(payload, '\n')
			if _, err := outW.Write(payload); err != nil {
				return
			}
		}
	}()

	now := time.Now()
	return &Worker{
		id:     "fake",
		dir:    dir,
		stdin:  inW,
		reader: bufio.NewReaderSize(outR, 4096),
		closeFn: func() error {
			_ = inR.Close()
			_ = outW.Close()
			return nil
		},
		lastUsed:        now,
		lastHealthCheck: now,
	}
}

func newTestPool(t *testing.T, maxShells int) *Pool {
	t.Helper()
	p, err := NewPool(Config{
		MaxTotalShells:      maxShells,
		ShellSpawnTimeout:   time.Second,
		ShellIdleTimeout:    time.Hour,
		PoolCleanupInterval: time.Hour,
		HealthCheckInterval: time.Hour,
		HealthCheckTimeout:  time.Second,
	}, zerolog.New(os.Stderr))
	require.NoError(t, err)
	p.spawnFn = func(ctx context.Context, dir string) (*Worker, error) {
		return newFakeWorker(dir), nil
	}
	t.Cleanup(p.Shutdown)
	return p
}

func TestPool_AcquireSpawnsUpToMax(t *testing.T) {
	p := newTestPool(t, 2)
	ctx := context.Background()

	w1, err := p.Acquire(ctx, "/work/a")
	require.NoError(t, err)
	w2, err := p.Acquire(ctx, "/work/b")
	require.NoError(t, err)

	assert.Equal(t, 2, p.Stats().TotalLive)

	_, err = p.Acquire(ctx, "/work/c")
	assert.ErrorIs(t, err, ErrPoolExhausted)

	p.Release(w1)
	p.Release(w2)
}

func TestPool_StarvationContract(t *testing.T) {
	const maxShells = 3
	const concurrent = 10
	p := newTestPool(t, maxShells)
	ctx := context.Background()

	type acquireResult struct {
		w   *Worker
		err error
	}
	results := make(chan acquireResult, concurrent)
	for i := 0; i < concurrent; i++ {
		go func(i int) {
			w, err := p.Acquire(ctx, "/work/shared")
			results <- acquireResult{w, err}
		}(i)
	}

	granted, exhausted := 0, 0
	for i := 0; i < concurrent; i++ {
		r := <-results
		if r.err == nil {
			granted++
		} else {
			require.ErrorIs(t, r.err, ErrPoolExhausted)
			exhausted++
		}
	}

	assert.Equal(t, maxShells, granted)
	assert.Equal(t, concurrent-maxShells, exhausted)
}

func TestPool_IdleWorkerReusedForSameDir(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	w1, err := p.Acquire(ctx, "/work/a")
	require.NoError(t, err)
	p.Release(w1)

	w2, err := p.Acquire(ctx, "/work/a")
	require.NoError(t, err)
	assert.Same(t, w1, w2)
	assert.Equal(t, 1, p.Stats().TotalLive)
}

func TestPool_ReleaseDropsUnhealthyWorker(t *testing.T) {
	p := newTestPool(t, 1)
	ctx := context.Background()

	w, err := p.Acquire(ctx, "/work/a")
	require.NoError(t, err)
	_ = w.Close() // simulate the worker process dying

	p.Release(w)

	assert.Equal(t, 0, p.Stats().TotalLive)
	assert.Equal(t, 0, p.Stats().Idle)

	// Capacity must have been freed for a new acquisition.
	w2, err := p.Acquire(ctx, "/work/b")
	require.NoError(t, err)
	assert.NotSame(t, w, w2)
}

func TestPool_ReapIdleDropsStaleWorkers(t *testing.T) {
	p := newTestPool(t, 1)
	p.cfg.ShellIdleTimeout = time.Millisecond

	w, err := p.Acquire(context.Background(), "/work/a")
	require.NoError(t, err)
	p.Release(w)

	time.Sleep(5 * time.Millisecond)
	p.reapIdle()

	assert.Equal(t, 0, p.Stats().TotalLive)
}

func TestWorker_ExecuteTimesOutWithoutResponse(t *testing.T) {
	inR, inW := io.Pipe()
	outR, _ := io.Pipe() // never written to: simulates a hung worker
	w := &Worker{
		id:     "hung",
		dir:    "/work/a",
		stdin:  inW,
		reader: bufio.NewReader(outR),
		closeFn: func() error {
			_ = inR.Close()
			return nil
		},
	}
	defer w.Close()

	// Drain stdin so the write in Execute doesn't block the test itself.
	go func() {
		r := bufio.NewReader(inR)
		for {
			if _, err := r.ReadBytes('\n'); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.Execute(ctx, Request{ID: "1", Command: []string{"true"}})
	require.Error(t, err)
	var sErr *Error
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, Timeout, sErr.Kind)
	assert.True(t, sErr.Kind.Recoverable())
}
