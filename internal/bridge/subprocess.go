package bridge

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Subprocess is a line-framed JSON-RPC stdio connection to one spawned
// server process. A single reader goroutine demultiplexes incoming lines
// by JSON-RPC id: lines matching an in-flight Call are delivered to its
// caller, everything else (server-initiated requests and notifications,
// chiefly roots/list and progress) is pushed onto Notifications for the
// bridge to relay over SSE.
type Subprocess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan []byte

	Notifications chan []byte
	exited        chan struct{}
	closeOnce     sync.Once
}

// spawnSubprocess starts command with args, appending a --sandbox-roots
// flag built from roots when non-empty. The subprocess is expected to
// speak newline-delimited JSON-RPC on stdin/stdout, matching the same
// framing the shell worker pool uses.
func spawnSubprocess(ctx context.Context, command string, args []string, roots []string, log zerolog.Logger) (*Subprocess, error) {
	fullArgs := append([]string(nil), args...)
	if len(roots) > 0 {
		fullArgs = append(fullArgs, "--sandbox-roots", strings.Join(roots, ","))
	}

	cmd := exec.CommandContext(ctx, command, fullArgs...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &Error{Kind: SpawnFailed, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Kind: SpawnFailed, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &Error{Kind: SpawnFailed, Err: err}
	}

	sp := &Subprocess{
		cmd:           cmd,
		stdin:         stdin,
		pending:       make(map[string]chan []byte),
		Notifications: make(chan []byte, 64),
		exited:        make(chan struct{}),
	}

	go sp.pump(stdout, log)
	return sp, nil
}

func (sp *Subprocess) pump(stdout io.ReadCloser, log zerolog.Logger) {
	defer close(sp.exited)
	defer close(sp.Notifications)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}

		id := gjson.GetBytes(line, "id")
		if id.Exists() {
			key := id.Raw
			sp.pendingMu.Lock()
			ch, ok := sp.pending[key]
			if ok {
				delete(sp.pending, key)
			}
			sp.pendingMu.Unlock()
			if ok {
				ch <- line
				continue
			}
		}

		select {
		case sp.Notifications <- line:
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn().Err(err).Msg("bridge: subprocess stdout closed with error")
	}
}

// Call writes raw (which must carry a JSON "id" field equal to id) and
// blocks until a line with a matching id arrives, ctx is cancelled, or the
// subprocess exits.
func (sp *Subprocess) Call(ctx context.Context, id string, raw []byte) ([]byte, error) {
	ch := make(chan []byte, 1)
	sp.pendingMu.Lock()
	sp.pending[id] = ch
	sp.pendingMu.Unlock()

	if err := sp.SendLine(raw); err != nil {
		sp.pendingMu.Lock()
		delete(sp.pending, id)
		sp.pendingMu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-sp.exited:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		sp.pendingMu.Lock()
		delete(sp.pending, id)
		sp.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// SendLine writes one newline-terminated JSON-RPC message to the
// subprocess's stdin without waiting for a reply.
func (sp *Subprocess) SendLine(raw []byte) error {
	sp.writeMu.Lock()
	defer sp.writeMu.Unlock()
	if _, err := sp.stdin.Write(raw); err != nil {
		return err
	}
	if len(raw) == 0 || raw[len(raw)-1] != '\n' {
		_, err := sp.stdin.Write([]byte("\n"))
		return err
	}
	return nil
}

// Exited is closed once the subprocess's stdout pump observes EOF or a
// read error.
func (sp *Subprocess) Exited() <-chan struct{} { return sp.exited }

// Close terminates the subprocess and releases its pipes. Safe to call
// more than once.
func (sp *Subprocess) Close() {
	sp.closeOnce.Do(func() {
		_ = sp.stdin.Close()
		if sp.cmd.Process != nil {
			_ = sp.cmd.Process.Kill()
		}
		_ = sp.cmd.Wait()
	})
}
