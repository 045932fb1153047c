// Package transfer drives one request from configuration through the wire
// exchange to a terminal state, on a dedicated background goroutine.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gmkit/gmcurl/internal/form"
	"github.com/gmkit/gmcurl/internal/logging"
	"github.com/gmkit/gmcurl/internal/progress"
	"github.com/gmkit/gmcurl/internal/transport"
)

// State is the executor's per-request state machine.
type State int

const (
	StateInit State = iota
	StateConfiguring
	StateTransferring
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConfiguring:
		return "configuring"
	case StateTransferring:
		return "transferring"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// downloadFinishedBody is the success payload for file downloads; the real
// bytes are on disk.
const downloadFinishedBody = "download finished"

// Result is the terminal outcome handed to the completion stage. Exactly one
// Result is produced per request.
type Result struct {
	State      State
	Status     int
	RawHeaders string
	Body       []byte
	Downloaded bool
	Timing     *transport.Timing
	ErrCode    int
	ErrMsg     string
}

// Failed reports whether the result carries an error.
func (r *Result) Failed() bool { return r.State != StateSucceeded }

// Executor runs transfers against a transport engine.
type Executor struct {
	Engine transport.Engine
	Log    *logging.Logger
}

// Run executes one request to its terminal state. All file handles opened
// while configuring are released on every exit path, including panics: a
// recovered panic resolves to the internal-error code instead of losing the
// in-flight resources.
func (e *Executor) Run(ctx context.Context, params *transport.Params, th *progress.Throttler) (result *Result) {
	result = &Result{State: StateInit}

	defer func() {
		if r := recover(); r != nil {
			result.State = StateFailed
			result.ErrCode = transport.CodeInternalError
			result.ErrMsg = fmt.Sprint(r)
			if e.Log != nil {
				e.Log.Error("transfer panicked", zap.Any("panic", r))
			}
		}
	}()

	if e.Engine == nil {
		result.State = StateFailed
		result.ErrCode = transport.CodeEngineInitFailed
		result.ErrMsg = "transport engine initialization failed"
		return result
	}

	result.State = StateConfiguring
	plan, err := transport.Configure(params)
	if err != nil {
		result.State = StateFailed
		result.ErrCode, result.ErrMsg = splitError(err)
		return result
	}
	defer plan.Close()
	result.Downloaded = plan.DownloadFile != nil

	var tick transport.ProgressFunc
	if params.NeedsProgress() {
		tick = th.Tick
	}

	result.State = StateTransferring
	raw, err := e.Engine.Do(ctx, plan, tick)
	if err != nil {
		var terr *transport.Error
		if errors.As(err, &terr) && terr.Aborted {
			result.State = StateCancelled
			result.ErrCode = terr.Code
			result.ErrMsg = th.AbortMessage()
			if result.ErrMsg == "" {
				result.ErrMsg = terr.Message
			}
			return result
		}
		result.State = StateFailed
		result.ErrCode, result.ErrMsg = splitError(err)
		return result
	}

	result.State = StateSucceeded
	result.Status = raw.StatusCode
	result.RawHeaders = raw.RawHeaders
	result.Timing = raw.Timing
	if result.Downloaded {
		result.Body = []byte(downloadFinishedBody)
	} else {
		result.Body = raw.Body
	}
	return result
}

// splitError maps stage errors onto the (code, message) pair. Form build
// failures count as local file-open failures; anything unrecognized is an
// internal error.
func splitError(err error) (int, string) {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return terr.Code, terr.Message
	}
	var ferr *form.FieldError
	if errors.As(err, &ferr) {
		return transport.CodeFileOpenFailed, ferr.Error()
	}
	return transport.CodeInternalError, err.Error()
}
