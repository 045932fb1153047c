package gmcurl

import (
	"context"
	"os"
	"time"

	"github.com/gmkit/gmcurl/internal/cancel"
	"github.com/gmkit/gmcurl/internal/config"
	"github.com/gmkit/gmcurl/internal/form"
	"github.com/gmkit/gmcurl/internal/logging"
	"github.com/gmkit/gmcurl/internal/progress"
	"github.com/gmkit/gmcurl/internal/transfer"
	"github.com/gmkit/gmcurl/internal/transport"
)

// Engine submits requests and owns the cancellation registry. Engines are
// safe for concurrent use; each in-flight request runs on its own goroutine.
type Engine struct {
	registry  *cancel.Registry
	transport transport.Engine
	log       *logging.Logger
	defaults  *config.Defaults
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger; requests with Debug set log their request
// and response headers through it.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithTransport substitutes the transport engine. Intended for tests and
// for callers wrapping the exchange with their own instrumentation.
func WithTransport(t transport.Engine) Option {
	return func(e *Engine) { e.transport = t }
}

// WithDefaults overrides the environment-derived defaults.
func WithDefaults(d *config.Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// New creates an engine with defaults loaded from GMCURL_* environment
// variables.
func New(opts ...Option) *Engine {
	e := &Engine{
		registry: cancel.NewRegistry(),
		log:      logging.NewNop(),
		defaults: config.LoadOrDefault(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.transport == nil {
		e.transport = transport.NewHTTPEngine(e.log)
	}
	return e
}

// Submit starts the request on a background goroutine and returns a handle
// observing it. The caller's goroutine never blocks here; it observes zero
// or more progress events and exactly one terminal outcome through the
// handle.
func (e *Engine) Submit(req Request) *Handle {
	params := e.buildParams(&req)
	started := time.Now()

	e.registry.Register(params.RequestID)

	h := &Handle{
		events:     make(chan Event, e.defaults.ProgressQueue),
		onProgress: req.OnProgress,
	}
	th := progress.New(
		e.registry,
		params.RequestID,
		params.ResumeOffset,
		params.UploadPath != "" || len(params.Form) > 0,
		params.DownloadPath != "",
		func(s progress.Sample) {
			h.emitProgress(Progress{Current: s.Current, Total: s.Total})
		},
	)

	go func() {
		exec := &transfer.Executor{Engine: e.transport, Log: e.log}
		res := exec.Run(context.Background(), params, th)
		e.complete(h, params, res, started)
	}()

	return h
}

// Cancel requests cooperative cancellation of the identified request. The
// transfer aborts at its next progress tick. Cancelling an unknown or
// already-finished id is a silent no-op.
func (e *Engine) Cancel(id int32) {
	e.registry.RequestCancel(id)
}

// buildParams translates the caller-facing description into the internal
// request-parameter structure, applying defaults and detecting the resume
// offset from the download target's current size.
func (e *Engine) buildParams(req *Request) *transport.Params {
	p := &transport.Params{
		URL:            req.URL,
		Method:         req.Method,
		BodyText:       req.Body,
		ReadTimeout:    req.ReadTimeout,
		ConnectTimeout: req.ConnectTimeout,
		StallTimeout:   e.defaults.StallTimeout,
		CAPath:         req.CAPath,
		ClientCertDir:  req.ClientCertPath,
		VerifyServer:   !req.Insecure,
		TLCP:           req.TLCP,
		Debug:          req.Debug,
		Timing:         req.PerformanceTiming,
		RequestID:      req.RequestID,
		DownloadPath:   req.DownloadFilePath,
		UploadPath:     req.UploadFilePath,
		BufferSize:     e.defaults.BufferSize,
		UserAgent:      e.defaults.UserAgent,
	}
	if len(req.BinaryBody) > 0 {
		p.BodyBinary = req.BinaryBody
		p.IsBinary = true
	}
	if len(req.Headers) > 0 {
		p.Headers = make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			p.Headers[k] = v
		}
	}
	for _, f := range req.FormFields {
		p.Form = append(p.Form, form.Field{
			Name:           f.Name,
			RemoteFileName: f.RemoteFileName,
			ContentType:    f.ContentType,
			FilePath:       f.FilePath,
			Data:           f.Data,
			Binary:         f.Binary,
			IsBinary:       len(f.Binary) > 0,
		})
	}
	if p.ReadTimeout <= 0 {
		p.ReadTimeout = e.defaults.ReadTimeout
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = e.defaults.ConnectTimeout
	}
	if p.DownloadPath != "" {
		if info, err := os.Stat(p.DownloadPath); err == nil && info.Size() > 0 {
			p.ResumeOffset = info.Size()
		}
	}
	return p
}
