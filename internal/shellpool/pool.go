package shellpool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ahma-mcp/ahma-mcp/internal/execenv"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Config configures a Pool's capacity, timeouts, and worker process.
type Config struct {
	// MaxTotalShells bounds the number of live worker processes across all
	// working directories. Default: 16.
	MaxTotalShells int
	// ShellSpawnTimeout bounds how long acquiring a new worker may take.
	// Default: 5s.
	ShellSpawnTimeout time.Duration
	// ShellIdleTimeout is how long an idle worker may sit unused before the
	// cleanup sweep reaps it. Default: 5m.
	ShellIdleTimeout time.Duration
	// PoolCleanupInterval is the cadence of the idle-reaping sweep. Default: 30s.
	PoolCleanupInterval time.Duration
	// HealthCheckInterval is the cadence of the health-check sweep, and the
	// minimum spacing between health checks on any one worker. Default: 1m.
	HealthCheckInterval time.Duration
	// HealthCheckTimeout bounds each individual health-check round trip.
	// Default: 5s.
	HealthCheckTimeout time.Duration
	// EnvPolicy filters the environment passed to spawned worker processes.
	// Nil uses execenv.DefaultShellEnvironmentPolicy().
	EnvPolicy *execenv.ShellEnvironmentPolicy
	// WorkerBinary is the executable spawned as a shell worker. Empty uses
	// DefaultWorkerBinaryPath().
	WorkerBinary string
	// WorkerArgs are the arguments passed to WorkerBinary. Empty defaults
	// to []string{"--shell-worker"}.
	WorkerArgs []string
}

func (c Config) withDefaults() Config {
	if c.MaxTotalShells <= 0 {
		c.MaxTotalShells = 16
	}
	if c.ShellSpawnTimeout <= 0 {
		c.ShellSpawnTimeout = 5 * time.Second
	}
	if c.ShellIdleTimeout <= 0 {
		c.ShellIdleTimeout = 5 * time.Minute
	}
	if c.PoolCleanupInterval <= 0 {
		c.PoolCleanupInterval = 30 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = time.Minute
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = 5 * time.Second
	}
	return c
}

// DefaultWorkerBinaryPath locates the ahma-shellworker binary alongside the
// currently running executable.
func DefaultWorkerBinaryPath() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(self), "ahma-shellworker"), nil
}

// Pool manages a set of long-lived shell worker processes keyed by working
// directory, bounding total concurrent workers and reaping idle or unhealthy
// ones in the background.
type Pool struct {
	cfg Config
	log zerolog.Logger

	mu        sync.Mutex
	idle      map[string][]*Worker
	totalLive int

	sem     *semaphore.Weighted
	cron    *cron.Cron
	spawnFn func(ctx context.Context, dir string) (*Worker, error)
}

// NewPool constructs a Pool and starts its background cleanup/health-check
// schedule.
func NewPool(cfg Config, log zerolog.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()

	p := &Pool{
		cfg:  cfg,
		log:  log.With().Str("component", "shellpool").Logger(),
		idle: make(map[string][]*Worker),
		sem:  semaphore.NewWeighted(int64(cfg.MaxTotalShells)),
	}
	p.spawnFn = p.spawnRealWorker

	p.cron = cron.New()
	if _, err := p.cron.AddFunc(fmt.Sprintf("@every %s", cfg.PoolCleanupInterval), p.reapIdle); err != nil {
		return nil, fmt.Errorf("shellpool: schedule cleanup sweep: %w", err)
	}
	if _, err := p.cron.AddFunc(fmt.Sprintf("@every %s", cfg.HealthCheckInterval), p.healthCheckIdle); err != nil {
		return nil, fmt.Errorf("shellpool: schedule health-check sweep: %w", err)
	}
	p.cron.Start()

	return p, nil
}

// Acquire returns an idle worker for dir if one exists; otherwise, if fewer
// than MaxTotalShells are live, it spawns one; otherwise it returns
// ErrPoolExhausted immediately so the caller can fall back to a direct
// process spawn. Acquire never blocks past ShellSpawnTimeout.
func (p *Pool) Acquire(ctx context.Context, dir string) (*Worker, error) {
	dir = filepath.Clean(dir)

	p.mu.Lock()
	if workers := p.idle[dir]; len(workers) > 0 {
		w := workers[len(workers)-1]
		p.idle[dir] = workers[:len(workers)-1]
		p.mu.Unlock()
		return w, nil
	}
	p.mu.Unlock()

	if !p.sem.TryAcquire(1) {
		return nil, ErrPoolExhausted
	}

	spawnCtx, cancel := context.WithTimeout(ctx, p.cfg.ShellSpawnTimeout)
	defer cancel()

	w, err := p.spawnFn(spawnCtx, dir)
	if err != nil {
		p.sem.Release(1)
		return nil, &Error{Kind: SpawnFailed, Err: err}
	}

	p.mu.Lock()
	p.totalLive++
	p.mu.Unlock()

	return w, nil
}

// Release returns w to the idle pool after a successful health check, or
// destroys it (and frees its capacity slot) if the health check fails.
func (p *Pool) Release(w *Worker) {
	if !w.healthCheck(p.cfg.HealthCheckTimeout) {
		p.destroy(w)
		return
	}

	w.mu.Lock()
	w.lastUsed = time.Now()
	w.mu.Unlock()

	p.mu.Lock()
	p.idle[w.dir] = append(p.idle[w.dir], w)
	p.mu.Unlock()
}

// Discard destroys w without a health check — used by callers that already
// know the worker is broken (e.g. after a ChannelClosed error).
func (p *Pool) Discard(w *Worker) {
	p.destroy(w)
}

func (p *Pool) destroy(w *Worker) {
	_ = w.Close()
	p.mu.Lock()
	p.totalLive--
	p.mu.Unlock()
	p.sem.Release(1)
}

// reapIdle drops idle workers whose last_used exceeds ShellIdleTimeout.
func (p *Pool) reapIdle() {
	cutoff := time.Now().Add(-p.cfg.ShellIdleTimeout)
	var stale []*Worker

	p.mu.Lock()
	for dir, workers := range p.idle {
		kept := workers[:0]
		for _, w := range workers {
			w.mu.Lock()
			last := w.lastUsed
			w.mu.Unlock()
			if last.Before(cutoff) {
				stale = append(stale, w)
			} else {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			delete(p.idle, dir)
		} else {
			p.idle[dir] = kept
		}
	}
	p.mu.Unlock()

	for _, w := range stale {
		p.destroy(w)
	}
	if len(stale) > 0 {
		p.log.Debug().Int("count", len(stale)).Msg("reaped idle shell workers")
	}
}

// healthCheckIdle health-checks idle workers that haven't been checked
// within HealthCheckInterval, dropping any that fail.
func (p *Pool) healthCheckIdle() {
	p.mu.Lock()
	var all []*Worker
	for _, workers := range p.idle {
		all = append(all, workers...)
	}
	p.mu.Unlock()

	for _, w := range all {
		w.mu.Lock()
		due := time.Since(w.lastHealthCheck) >= p.cfg.HealthCheckInterval
		w.mu.Unlock()
		if !due {
			continue
		}
		if !w.healthCheck(p.cfg.HealthCheckTimeout) {
			p.removeFromIdle(w)
			p.destroy(w)
		}
	}
}

func (p *Pool) removeFromIdle(target *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	workers := p.idle[target.dir]
	for i, w := range workers {
		if w == target {
			p.idle[target.dir] = append(workers[:i], workers[i+1:]...)
			return
		}
	}
}

// Stats reports the pool's current live/idle worker counts.
type Stats struct {
	TotalLive int
	Idle      int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle := 0
	for _, workers := range p.idle {
		idle += len(workers)
	}
	return Stats{TotalLive: p.totalLive, Idle: idle}
}

// Shutdown stops the background schedule and closes every idle worker.
// In-flight workers (already Acquire'd, not yet Released) are not touched;
// callers are responsible for releasing or discarding those first.
func (p *Pool) Shutdown() {
	p.cron.Stop()

	p.mu.Lock()
	var all []*Worker
	for _, workers := range p.idle {
		all = append(all, workers...)
	}
	p.idle = make(map[string][]*Worker)
	p.mu.Unlock()

	for _, w := range all {
		p.destroy(w)
	}
}

func (p *Pool) spawnRealWorker(ctx context.Context, dir string) (*Worker, error) {
	binary := p.cfg.WorkerBinary
	if binary == "" {
		var err error
		binary, err = DefaultWorkerBinaryPath()
		if err != nil {
			return nil, err
		}
	}
	args := p.cfg.WorkerArgs
	if len(args) == 0 {
		args = []string{"--shell-worker"}
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
		return nil, context.DeadlineExceeded
	}

	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	cmd.Env = execenv.EnvMapToSlice(execenv.CreateEnv(p.cfg.EnvPolicy))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	now := time.Now()
	w := &Worker{
		id:     uuid.NewString(),
		dir:    dir,
		stdin:  stdin,
		reader: bufio.NewReaderSize(stdout, 1<<20),
		closeFn: func() error {
			_ = cmd.Process.Kill()
			return cmd.Wait()
		},
		lastUsed:        now,
		lastHealthCheck: now,
	}
	return w, nil
}
