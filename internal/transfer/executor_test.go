package transfer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gmkit/gmcurl/internal/cancel"
	"github.com/gmkit/gmcurl/internal/progress"
	"github.com/gmkit/gmcurl/internal/transport"
)

func newThrottler(reg *cancel.Registry, id int32) *progress.Throttler {
	return progress.New(reg, id, 0, true, true, func(progress.Sample) {})
}

func TestRunSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	exec := &Executor{Engine: transport.NewHTTPEngine(nil)}
	reg := cancel.NewRegistry()
	res := exec.Run(context.Background(), &transport.Params{URL: srv.URL}, newThrottler(reg, 0))

	assert.Equal(t, StateSucceeded, res.State)
	assert.False(t, res.Failed())
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "payload", string(res.Body))
}

func TestRunConfigureFailureShortCircuits(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	exec := &Executor{Engine: transport.NewHTTPEngine(nil)}
	res := exec.Run(context.Background(), &transport.Params{
		URL:        srv.URL,
		Method:     "PUT",
		UploadPath: "/nonexistent/upload.bin",
	}, newThrottler(cancel.NewRegistry(), 0))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, transport.CodeFileOpenFailed, res.ErrCode)
	assert.Equal(t, "Failed to open file for upload", res.ErrMsg)
	assert.Zero(t, hits, "no network I/O before configuration succeeds")
}

func TestRunNilEngine(t *testing.T) {
	exec := &Executor{}
	res := exec.Run(context.Background(), &transport.Params{URL: "http://example.test/"},
		newThrottler(cancel.NewRegistry(), 0))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, transport.CodeEngineInitFailed, res.ErrCode)
}

func TestRunCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1<<20))
	}))
	defer srv.Close()

	reg := cancel.NewRegistry()
	reg.Register(9)
	reg.RequestCancel(9)

	exec := &Executor{Engine: transport.NewHTTPEngine(nil)}
	res := exec.Run(context.Background(), &transport.Params{
		URL:        srv.URL,
		RequestID:  9,
		BufferSize: 4096,
	}, newThrottler(reg, 9))

	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, transport.CodeAbortedByCallback, res.ErrCode)
	assert.Equal(t, progress.CancelMessage, res.ErrMsg)
	assert.Equal(t, 0, reg.Len())
}

func TestRunTransportFailure(t *testing.T) {
	exec := &Executor{Engine: transport.NewHTTPEngine(nil)}
	res := exec.Run(context.Background(), &transport.Params{
		URL:            "http://127.0.0.1:1",
		ConnectTimeout: 2,
	}, newThrottler(cancel.NewRegistry(), 0))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, transport.CodeCouldntConnect, res.ErrCode)
	assert.NotEmpty(t, res.ErrMsg)
}

type panicEngine struct{}

func (panicEngine) Do(context.Context, *transport.Plan, transport.ProgressFunc) (*transport.Result, error) {
	panic("boom")
}

func TestRunRecoversPanics(t *testing.T) {
	exec := &Executor{Engine: panicEngine{}}
	res := exec.Run(context.Background(), &transport.Params{URL: "http://example.test/"},
		newThrottler(cancel.NewRegistry(), 0))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, transport.CodeInternalError, res.ErrCode)
	assert.Equal(t, "boom", res.ErrMsg)
}

type errEngine struct{ err error }

func (e errEngine) Do(context.Context, *transport.Plan, transport.ProgressFunc) (*transport.Result, error) {
	return nil, e.err
}

func TestRunUnrecognizedErrorMapsToInternal(t *testing.T) {
	exec := &Executor{Engine: errEngine{err: errors.New("weird")}}
	res := exec.Run(context.Background(), &transport.Params{URL: "http://example.test/"},
		newThrottler(cancel.NewRegistry(), 0))

	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, transport.CodeInternalError, res.ErrCode)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "state(42)", State(42).String())
}
