package operation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultHistoryCapacity = 1000
	defaultPollWindow      = 2 * time.Second
	defaultPollThreshold   = 3
	defaultShutdownGrace   = 120 * time.Second
)

// Monitor is the canonical store of every dispatched operation's state.
// Active operations live in a map guarded by mu; terminated operations move
// into a bounded FIFO history guarded by a separate lock; wait_for_any
// subscribers are tracked under a third lock. No lock is ever held across a
// suspension point.
type Monitor struct {
	mu     sync.Mutex
	active map[string]*Operation

	historyMu       sync.Mutex
	history         []Snapshot
	historyCapacity int

	anyMu      sync.Mutex
	anyWaiters []*anyWaiter

	pollWindow    time.Duration
	pollThreshold int
	shutdownGrace time.Duration

	log zerolog.Logger
}

// NewMonitor constructs a Monitor whose completion-history ring buffer
// holds at most capacity entries (<=0 defaults to 1000).
func NewMonitor(capacity int, log zerolog.Logger) *Monitor {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &Monitor{
		active:          make(map[string]*Operation),
		historyCapacity: capacity,
		pollWindow:      defaultPollWindow,
		pollThreshold:   defaultPollThreshold,
		shutdownGrace:   defaultShutdownGrace,
		log:             log.With().Str("component", "operation").Logger(),
	}
}

// CreateOperation registers a new Pending operation under id and returns it.
// The caller (the adapter) is responsible for generating id.
func (m *Monitor) CreateOperation(id, tool string, timeout time.Duration) *Operation {
	op := newOperation(id, tool, timeout)
	m.mu.Lock()
	m.active[id] = op
	m.mu.Unlock()
	return op
}

// UpdateStatus transitions the operation to status, rejecting any attempt
// to leave a terminal state. A transition into a terminal state moves the
// operation into completion history and wakes every waiter.
func (m *Monitor) UpdateStatus(id string, status Status, result *Result) error {
	op := m.lookupActive(id)
	if op == nil {
		if _, ok := m.lookupHistory(id); ok {
			return &Error{Kind: AlreadyTerminal, ID: id}
		}
		return &Error{Kind: NotFound, ID: id}
	}
	if err := op.transition(status, result); err != nil {
		return err
	}
	if status.Terminal() {
		m.moveToHistory(op)
	}
	return nil
}

// CancelOperationWithReason transitions a Pending or InProgress operation
// to Cancelled, recording reason in its result, waking every waiter, and
// invoking the operation's registered cancel func (if the adapter attached
// one) so the running subprocess actually gets signalled.
func (m *Monitor) CancelOperationWithReason(id, reason string) error {
	op := m.lookupActive(id)
	if op == nil {
		if _, ok := m.lookupHistory(id); ok {
			return &Error{Kind: AlreadyTerminal, ID: id}
		}
		return &Error{Kind: NotFound, ID: id}
	}
	if err := op.transition(Cancelled, &Result{Reason: reason}); err != nil {
		return err
	}
	op.invokeCancel(reason)
	m.moveToHistory(op)
	return nil
}

// CheckTimeouts transitions every active operation whose deadline has
// passed to TimedOut. The server binary does not call it on a schedule; an
// async operation that outlives its timeout is stopped by the adapter's
// context deadline and recorded as Failed.
func (m *Monitor) CheckTimeouts(now time.Time) {
	m.mu.Lock()
	var expired []*Operation
	for _, op := range m.active {
		op.mu.Lock()
		start, timeout, status := op.StartTime, op.Timeout, op.status
		op.mu.Unlock()
		if !status.Terminal() && timeout > 0 && start.Add(timeout).Before(now) {
			expired = append(expired, op)
		}
	}
	m.mu.Unlock()

	for _, op := range expired {
		if err := op.transition(TimedOut, &Result{Reason: "timeout"}); err == nil {
			m.moveToHistory(op)
		}
	}
}

// GetOperation returns a snapshot for id from either the active set or
// completion history, along with a polling-anti-pattern hint (empty if none
// applies). The second return reports whether id was found at all.
func (m *Monitor) GetOperation(id string) (Snapshot, string, bool) {
	if op := m.lookupActive(id); op != nil {
		hint := op.recordPollAndHint(m.pollWindow, m.pollThreshold)
		return op.snapshot(), hint, true
	}
	if snap, ok := m.lookupHistory(id); ok {
		return snap, "", true
	}
	return Snapshot{}, "", false
}

// ListOperations returns a snapshot of every operation — active and
// recently completed — whose tool matches toolFilter ("" matches any),
// active operations first.
func (m *Monitor) ListOperations(toolFilter string) []Snapshot {
	var out []Snapshot

	m.mu.Lock()
	for _, op := range m.active {
		snap := op.snapshot()
		if toolFilter == "" || snap.Tool == toolFilter {
			out = append(out, snap)
		}
	}
	m.mu.Unlock()

	m.historyMu.Lock()
	for _, snap := range m.history {
		if toolFilter == "" || snap.Tool == toolFilter {
			out = append(out, snap)
		}
	}
	m.historyMu.Unlock()

	return out
}

// GetCompletedOperations returns a snapshot of the completion-history ring
// buffer, oldest first.
func (m *Monitor) GetCompletedOperations() []Snapshot {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

// WaitForOperation blocks until the operation reaches a terminal state —
// whether it already had or newly does — or ctx is cancelled.
func (m *Monitor) WaitForOperation(ctx context.Context, id string) (Snapshot, error) {
	op := m.lookupActive(id)
	if op == nil {
		if snap, ok := m.lookupHistory(id); ok {
			return snap, nil
		}
		return Snapshot{}, &Error{Kind: NotFound, ID: id}
	}

	select {
	case <-op.done:
		return op.snapshot(), nil
	case <-ctx.Done():
		return op.snapshot(), ctx.Err()
	}
}

// WaitForAny blocks until the first operation matching toolFilter/idFilter
// (nil/empty matches anything) terminates, or timeout elapses, or ctx is
// cancelled. An operation that already terminated and is still the most
// recent matching entry in completion history satisfies the wait
// immediately.
func (m *Monitor) WaitForAny(ctx context.Context, toolFilter, idFilter []string, timeout time.Duration) (Snapshot, error) {
	if snap, ok := m.mostRecentHistoryMatch(toolFilter, idFilter); ok {
		return snap, nil
	}

	w := &anyWaiter{
		ch:         make(chan Snapshot, 1),
		toolFilter: toSet(toolFilter),
		idFilter:   toSet(idFilter),
	}
	m.anyMu.Lock()
	m.anyWaiters = append(m.anyWaiters, w)
	m.anyMu.Unlock()
	defer m.removeAnyWaiter(w)

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case snap := <-w.ch:
		return snap, nil
	case <-timeoutCh:
		return Snapshot{}, &Error{Kind: WaitTimedOut}
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// GracefulShutdown waits up to the configured shutdown grace period for all
// active operations to terminate naturally, then force-cancels whatever
// remains with reason "shutdown".
func (m *Monitor) GracefulShutdown(ctx context.Context) {
	deadline := time.Now().Add(m.shutdownGrace)
	for m.activeCount() > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			deadline = time.Now().Add(-time.Second)
		case <-time.After(100 * time.Millisecond):
		}
	}
	m.forceCancelRemaining()
}

func (m *Monitor) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Monitor) forceCancelRemaining() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.CancelOperationWithReason(id, "shutdown"); err != nil {
			m.log.Warn().Err(err).Str("operation_id", id).Msg("force-cancel during shutdown failed")
		}
	}
}

func (m *Monitor) lookupActive(id string) *Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

func (m *Monitor) lookupHistory(id string) (Snapshot, bool) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == id {
			return m.history[i], true
		}
	}
	return Snapshot{}, false
}

func (m *Monitor) mostRecentHistoryMatch(toolFilter, idFilter []string) (Snapshot, bool) {
	tf, idf := toSet(toolFilter), toSet(idFilter)
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		s := m.history[i]
		if len(tf) > 0 && !tf[s.Tool] {
			continue
		}
		if len(idf) > 0 && !idf[s.ID] {
			continue
		}
		return s, true
	}
	return Snapshot{}, false
}

func (m *Monitor) moveToHistory(op *Operation) {
	m.mu.Lock()
	delete(m.active, op.ID)
	m.mu.Unlock()

	snap := op.snapshot()

	m.historyMu.Lock()
	m.history = append(m.history, snap)
	if len(m.history) > m.historyCapacity {
		drop := len(m.history) - m.historyCapacity
		m.history = append([]Snapshot(nil), m.history[drop:]...)
	}
	m.historyMu.Unlock()

	m.notifyAny(snap)
}

type anyWaiter struct {
	ch         chan Snapshot
	toolFilter map[string]bool
	idFilter   map[string]bool
}

func (w *anyWaiter) matches(snap Snapshot) bool {
	if len(w.toolFilter) > 0 && !w.toolFilter[snap.Tool] {
		return false
	}
	if len(w.idFilter) > 0 && !w.idFilter[snap.ID] {
		return false
	}
	return true
}

func (m *Monitor) notifyAny(snap Snapshot) {
	m.anyMu.Lock()
	defer m.anyMu.Unlock()
	for _, w := range m.anyWaiters {
		if !w.matches(snap) {
			continue
		}
		select {
		case w.ch <- snap:
		default:
		}
	}
}

func (m *Monitor) removeAnyWaiter(target *anyWaiter) {
	m.anyMu.Lock()
	defer m.anyMu.Unlock()
	for i, w := range m.anyWaiters {
		if w == target {
			m.anyWaiters = append(m.anyWaiters[:i], m.anyWaiters[i+1:]...)
			return
		}
	}
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
