package shellpool

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Worker is a handle to one live shell worker process: a stdin writer, a
// buffered stdout reader, and a function that tears the process down. Only
// one request may be in flight on a Worker at a time.
type Worker struct {
	id      string
	dir     string
	stdin   io.WriteCloser
	reader  *bufio.Reader
	closeFn func() error

	mu              sync.Mutex
	lastUsed        time.Time
	lastHealthCheck time.Time
}

// ID returns the worker's internal identifier, used for logging.
func (w *Worker) ID() string { return w.id }

// Dir returns the canonical working directory this worker was spawned for.
func (w *Worker) Dir() string { return w.dir }

// Execute sends req to the worker and waits for its response or for ctx to
// be cancelled, whichever comes first. A context cancellation yields a
// Timeout error; a read/write failure yields ChannelClosed; a malformed
// response yields ProtocolError. Execute serializes concurrent callers.
func (w *Worker) Execute(ctx context.Context, req Request) (*Response, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: ProtocolError, Err: err}
	}
	payload = append(payload, '\n')

	if _, err := w.stdin.Write(payload); err != nil {
		return nil, &Error{Kind: ChannelClosed, Err: err}
	}

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		line, err := w.reader.ReadBytes('\n')
		if err != nil {
			done <- result{nil, &Error{Kind: ChannelClosed, Err: err}}
			return
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			done <- result{nil, &Error{Kind: ProtocolError, Err: err}}
			return
		}
		done <- result{&resp, nil}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, &Error{Kind: Timeout, Err: ctx.Err()}
	}
}

// healthCheck sends a trivial no-op command with a short deadline and
// reports whether the worker responded successfully.
func (w *Worker) healthCheck(timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	resp, err := w.Execute(ctx, Request{
		ID:         "healthcheck-" + uuid.NewString(),
		Command:    []string{"true"},
		WorkingDir: w.dir,
		TimeoutMs:  timeout.Milliseconds(),
	})

	w.mu.Lock()
	w.lastHealthCheck = time.Now()
	w.mu.Unlock()

	return err == nil && resp != nil
}

// Close tears down the worker's process and pipes. Safe to call once.
func (w *Worker) Close() error {
	_ = w.stdin.Close()
	if w.closeFn != nil {
		return w.closeFn()
	}
	return nil
}
