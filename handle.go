package gmcurl

import (
	"context"
	"sync"
)

// EventKind tags entries on a handle's event channel.
type EventKind int

const (
	// EventProgress carries a throttled byte-count sample. Progress events
	// are best-effort: under backpressure they are dropped, never reordered.
	EventProgress EventKind = iota

	// EventCompleted carries the terminal outcome. It is delivered exactly
	// once, after every progress event that made it onto the channel, and
	// the channel is closed immediately after it.
	EventCompleted
)

// Event is one cross-goroutine notification for a request.
type Event struct {
	Kind     EventKind
	Progress Progress
	Response *Response
	Err      error
}

// Handle observes one in-flight request. The caller must drain it, either
// through Wait or by consuming Events until the channel closes; the
// completion send blocks until there is room.
type Handle struct {
	events     chan Event
	onProgress func(current, total int64)

	completeOnce sync.Once
}

// Events exposes the raw per-request event stream.
func (h *Handle) Events() <-chan Event { return h.events }

// Wait drains the event stream on the calling goroutine, forwarding
// progress samples to the request's OnProgress callback, and returns the
// terminal outcome. A cancelled context abandons the wait but does not
// cancel the transfer; use Engine.Cancel for that.
func (h *Handle) Wait(ctx context.Context) (*Response, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-h.events:
			if !ok {
				return nil, &RequestError{Code: internalErrorCode, Message: "event stream closed without completion"}
			}
			switch ev.Kind {
			case EventProgress:
				if h.onProgress != nil {
					h.onProgress(ev.Progress.Current, ev.Progress.Total)
				}
			case EventCompleted:
				return ev.Response, ev.Err
			}
		}
	}
}

// emitProgress performs the non-blocking, droppable progress send.
func (h *Handle) emitProgress(p Progress) {
	select {
	case h.events <- Event{Kind: EventProgress, Progress: p}:
	default:
	}
}

// complete delivers the terminal outcome exactly once and closes the
// stream. The once guard makes double resolution structurally impossible.
func (h *Handle) complete(resp *Response, err error) {
	h.completeOnce.Do(func() {
		h.events <- Event{Kind: EventCompleted, Response: resp, Err: err}
		close(h.events)
	})
}
