// Package progress rate-limits transfer progress notifications and performs
// the cooperative cancellation check on every raw tick.
package progress

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gmkit/gmcurl/internal/cancel"
)

// CancelMessage is the terminal message for user-initiated aborts,
// distinguishing them from transport failures.
const CancelMessage = "Request canceled by user"

// Sample is one throttled progress notification.
type Sample struct {
	Current int64
	Total   int64
}

// Throttler decides when a raw byte-count tick becomes a notification.
// Per direction it emits at most once per one-second window, always emits
// the completing tick, and never re-emits an unchanged value. Download
// samples are shifted by the resume offset so they reflect the logical file
// position. Ticks arrive from the transfer goroutine and from the transfer
// watcher; Tick serializes them.
type Throttler struct {
	mu       sync.Mutex
	registry *cancel.Registry
	id       int32
	resume   int64

	wantUp   bool
	wantDown bool

	upLimit   *rate.Limiter
	downLimit *rate.Limiter
	lastUp    int64
	lastDown  int64

	emit     func(Sample)
	abortMsg string
}

// New creates a throttler. emit must be non-blocking; notifications are
// best-effort and may be dropped by the delivery channel.
func New(registry *cancel.Registry, id int32, resume int64, wantUp, wantDown bool, emit func(Sample)) *Throttler {
	return &Throttler{
		registry:  registry,
		id:        id,
		resume:    resume,
		wantUp:    wantUp,
		wantDown:  wantDown,
		upLimit:   rate.NewLimiter(rate.Every(time.Second), 1),
		downLimit: rate.NewLimiter(rate.Every(time.Second), 1),
		lastUp:    -1,
		lastDown:  -1,
		emit:      emit,
	}
}

// Tick processes one raw progress callback. It returns true when the
// transfer must abort because cancellation was requested.
func (t *Throttler) Tick(dlTotal, dlNow, ulTotal, ulNow int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.wantUp && ulTotal > 0 && ulNow != t.lastUp &&
		(t.upLimit.Allow() || ulNow == ulTotal) {
		t.emit(Sample{Current: ulNow, Total: ulTotal})
		t.lastUp = ulNow
	}

	if t.wantDown && dlTotal > 0 && dlNow != t.lastDown &&
		(t.downLimit.Allow() || dlNow == dlTotal) {
		t.emit(Sample{Current: t.resume + dlNow, Total: t.resume + dlTotal})
		t.lastDown = dlNow
	}

	if t.id != 0 && t.registry.CheckAndClear(t.id) {
		t.abortMsg = CancelMessage
		return true
	}
	return false
}

// AbortMessage returns the pending cancellation message, empty if the
// throttler never signalled abort.
func (t *Throttler) AbortMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.abortMsg
}
