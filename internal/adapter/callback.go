package adapter

import "context"

// EventKind tags one entry in an operation's progress stream.
type EventKind string

const (
	EventStarted     EventKind = "started"
	EventOutput      EventKind = "output"
	EventProgress    EventKind = "progress"
	EventCompleted   EventKind = "completed"
	EventFailed      EventKind = "failed"
	EventCancelled   EventKind = "cancelled"
	EventFinalResult EventKind = "final_result"
)

// ProgressEvent is one entry in an operation's progress stream. Within a
// single operation id, events are delivered in the order the underlying
// command generated them; only the fields relevant to Kind are populated.
type ProgressEvent struct {
	OperationID string
	Kind        EventKind

	Command     string // Started, FinalResult
	Description string // Started, FinalResult

	Message     string   // Progress, Completed, Cancelled
	Percentage  *float64 // Progress
	CurrentStep string   // Progress

	Line     string // Output: one captured line of subprocess output
	IsStderr bool   // Output

	Error string // Failed

	WorkingDirectory string // FinalResult
	FullOutput       string // FinalResult
	Success          bool   // FinalResult
	DurationMs       int64  // Completed, Failed, Cancelled, FinalResult
}

// CallbackSender delivers one operation's progress stream to whatever is
// listening for it — the MCP service relays each event as a
// notifications/progress message. Send blocks while its underlying
// channel is full rather than drop an event, so ordering survives a slow
// consumer; it gives up once ctx is done.
type CallbackSender interface {
	Send(ctx context.Context, ev ProgressEvent)
}

// ChannelCallbackSender is the default CallbackSender: a bounded FIFO
// channel stamped with the operation id every event belongs to.
type ChannelCallbackSender struct {
	OperationID string
	ch          chan ProgressEvent
}

// NewChannelCallbackSender builds a sender whose channel holds at most
// buffer pending events (<=0 defaults to 64).
func NewChannelCallbackSender(operationID string, buffer int) *ChannelCallbackSender {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelCallbackSender{OperationID: operationID, ch: make(chan ProgressEvent, buffer)}
}

// Events returns the channel the MCP service should range over to relay
// this operation's progress stream. It closes once Close is called.
func (c *ChannelCallbackSender) Events() <-chan ProgressEvent { return c.ch }

// Send stamps ev with the sender's operation id and enqueues it, blocking
// until there is room or ctx ends.
func (c *ChannelCallbackSender) Send(ctx context.Context, ev ProgressEvent) {
	ev.OperationID = c.OperationID
	select {
	case c.ch <- ev:
	case <-ctx.Done():
	}
}

// Close signals that no further events will be sent. The dispatcher calls
// this exactly once, after the FinalResult event, from the operation's
// owning goroutine.
func (c *ChannelCallbackSender) Close() { close(c.ch) }
