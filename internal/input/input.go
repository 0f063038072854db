// Package input decouples callers that generate Game Boy button/control
// events (a UI event loop, a scripted test driver, a network client) from
// the goroutine that owns a running gameboy.Machine.
package input

// Command is an action applied to a Machine by whichever goroutine is
// driving it. Submitting one never touches Machine state directly; it only
// enqueues a closure for the consuming goroutine to run.
type Command func()

// CommandReceiver is a bounded, non-blocking mailbox of Commands. Producers
// call Submit from any goroutine; a single consumer drains Commands() in a
// select loop (see gameboy.Machine.Run).
type CommandReceiver struct {
	ch chan Command
}

// NewCommandReceiver creates a receiver with the given channel buffer size.
// A size of 0 or less defaults to 64, enough to absorb a burst of per-frame
// button-state updates between two drains.
func NewCommandReceiver(buffer int) *CommandReceiver {
	if buffer <= 0 {
		buffer = 64
	}
	return &CommandReceiver{ch: make(chan Command, buffer)}
}

// Submit enqueues cmd for execution on the consuming goroutine. It never
// blocks: if the queue is full, the oldest pending command is dropped to
// make room, since a stale button-state update is superseded by a newer one
// anyway.
func (r *CommandReceiver) Submit(cmd Command) {
	select {
	case r.ch <- cmd:
		return
	default:
	}
	select {
	case <-r.ch:
	default:
	}
	select {
	case r.ch <- cmd:
	default:
	}
}

// Commands exposes the receive side for a consumer's select loop.
func (r *CommandReceiver) Commands() <-chan Command { return r.ch }
