package transport

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"gitee.com/Trisia/gotlcp/tlcp"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"

	"github.com/gmkit/gmcurl/internal/logging"
)

// ProgressFunc receives raw transfer counters on every tick. Returning true
// aborts the transfer; it is the universal abort signal of the engine.
type ProgressFunc func(dlTotal, dlNow, ulTotal, ulNow int64) bool

// Result is the raw outcome of one successful exchange.
type Result struct {
	StatusCode int
	RawHeaders string
	Body       []byte
	Timing     *Timing
}

// Engine performs one wire-level exchange for a prepared plan. Implementations
// must honor standard HTTP semantics plus the plan's TLS or TLCP
// configuration; they are treated as a black box by the rest of the core.
type Engine interface {
	Do(ctx context.Context, plan *Plan, tick ProgressFunc) (*Result, error)
}

// HTTPEngine is the default engine, built on net/http with a fresh
// per-request transport (keep-alives disabled; pooling is out of scope).
type HTTPEngine struct {
	log *logging.Logger
}

// NewHTTPEngine creates the default engine. A nil logger disables logging.
func NewHTTPEngine(log *logging.Logger) *HTTPEngine {
	if log == nil {
		log = logging.NewNop()
	}
	return &HTTPEngine{log: log}
}

const maxRedirects = 10

// Do runs the exchange to completion, streaming the response body into the
// plan's download file or into memory. Every failure returns a *Error.
func (e *HTTPEngine) Do(ctx context.Context, plan *Plan, tick ProgressFunc) (*Result, error) {
	start := time.Now()
	timing := NewTiming()

	if plan.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, plan.ReadTimeout)
		defer cancel()
	}
	ctx, cancelTransfer := context.WithCancelCause(ctx)
	defer cancelTransfer(nil)
	if plan.Timing {
		ctx = httptrace.WithClientTrace(ctx, newTrace(start, timing))
	}

	tr := e.newTransport(plan, timing)
	defer tr.CloseIdleConnections()

	mon := newMonitor()
	if plan.ContentLength > 0 {
		mon.ulTotal.Store(plan.ContentLength)
	}
	if tick != nil {
		// The watcher keeps the progress hook firing while no bytes move, so
		// cancellation and the stall bound work on a silent connection.
		watcherDone := make(chan struct{})
		defer close(watcherDone)
		go watchTransfer(cancelTransfer, mon, tick, plan.StallTimeout, watcherDone)
	}

	body := plan.Body
	if body != nil && tick != nil {
		body = &progressReader{rc: body, mon: mon, tick: tick, upload: true}
	}

	req, err := http.NewRequestWithContext(ctx, plan.Method, plan.URL, body)
	if err != nil {
		return nil, &Error{Code: CodeURLMalformed, Message: fmt.Sprintf("URL rejected: %v", err)}
	}
	req.Header = plan.Header.Clone()
	req.ContentLength = plan.ContentLength
	if plan.GetBody != nil {
		req.GetBody = func() (io.ReadCloser, error) {
			rc, err := plan.GetBody()
			if err != nil || tick == nil {
				return rc, err
			}
			mon.ulNow.Store(0)
			return &progressReader{rc: rc, mon: mon, tick: tick, upload: true}, nil
		}
	}

	if plan.Debug {
		e.log.Debug("request",
			zap.String("method", plan.Method),
			zap.String("url", plan.URL),
			zap.Any("headers", req.Header))
	}

	client := &http.Client{
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !plan.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if plan.Timing {
				timing.Redirect = millisSince(start, time.Now())
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(resolveCause(ctx, err), true)
	}
	defer resp.Body.Close()
	mon.touch()

	if plan.Debug {
		e.log.Debug("response",
			zap.Int("status", resp.StatusCode),
			zap.Any("headers", resp.Header))
	}

	// Fail fast on HTTP-level errors for downloads so no error payload ever
	// reaches the target file; the actual status is surfaced as the code.
	if plan.DownloadFile != nil && resp.StatusCode >= 400 {
		return nil, &Error{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("The requested URL returned error: %d", resp.StatusCode),
		}
	}

	var src io.Reader = resp.Body
	if tick != nil {
		if total := resp.ContentLength; total > 0 {
			mon.dlTotal.Store(total)
		}
		src = &progressReader{rc: io.NopCloser(resp.Body), mon: mon, tick: tick}
	}
	src, derr := decodeBody(src, resp.Header.Get("Content-Encoding"))
	if derr != nil {
		return nil, classifyCopy(resolveCause(ctx, derr))
	}

	result := &Result{
		StatusCode: resp.StatusCode,
		RawHeaders: buildHeaderBlock(resp),
	}

	buf := make([]byte, plan.BufferSize)
	if plan.DownloadFile != nil {
		w := bufio.NewWriterSize(plan.DownloadFile, plan.BufferSize)
		_, cerr := io.CopyBuffer(w, src, buf)
		if ferr := w.Flush(); cerr == nil {
			cerr = ferr
		}
		if cerr != nil {
			return nil, classifyCopy(resolveCause(ctx, cerr))
		}
	} else {
		var out bytes.Buffer
		if _, cerr := io.CopyBuffer(&out, src, buf); cerr != nil {
			return nil, classifyCopy(resolveCause(ctx, cerr))
		}
		result.Body = out.Bytes()
	}

	if plan.Timing {
		timing.TotalFinish = millisSince(start, time.Now())
		result.Timing = timing
	}
	return result, nil
}

// newTransport builds the per-request transport. Compression is handled by
// the engine itself (the accept header is set explicitly and the body decoded
// on the way in), so net/http's automatic handling is disabled.
func (e *HTTPEngine) newTransport(plan *Plan, timing *Timing) *http.Transport {
	dialer := &net.Dialer{Timeout: plan.ConnectTimeout}
	tr := &http.Transport{
		Proxy:              http.ProxyFromEnvironment,
		DialContext:        dialer.DialContext,
		DisableCompression: true,
		DisableKeepAlives:  true,
	}
	if plan.TLCPConf != nil {
		tr.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			raw, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			cfg := plan.TLCPConf.Clone()
			if host, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
				cfg.ServerName = host
			}
			hsStart := time.Now()
			conn := tlcp.Client(raw, cfg)
			if err := conn.HandshakeContext(ctx); err != nil {
				raw.Close()
				return nil, &Error{Code: CodeSSLConnectError, Message: err.Error()}
			}
			if plan.Timing {
				timing.TLS = millisSince(hsStart, time.Now())
			}
			return conn, nil
		}
	} else if plan.TLS != nil {
		tr.TLSClientConfig = plan.TLS
	}
	return tr
}

// newTrace wires the timing samples curl exposes as *_TIME counters:
// name lookup, connect, handshake, time to request written, time to first
// response byte. All values are offsets in milliseconds.
func newTrace(start time.Time, timing *Timing) *httptrace.ClientTrace {
	var dnsStart, connStart, tlsStart time.Time
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone: func(httptrace.DNSDoneInfo) {
			timing.DNS = millisSince(dnsStart, time.Now())
		},
		ConnectStart: func(string, string) { connStart = time.Now() },
		ConnectDone: func(_, _ string, err error) {
			if err == nil {
				timing.TCP = millisSince(connStart, time.Now())
			}
		},
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				timing.TLS = millisSince(tlsStart, time.Now())
			}
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			timing.FirstSend = millisSince(start, time.Now())
		},
		GotFirstResponseByte: func() {
			timing.FirstReceive = millisSince(start, time.Now())
		},
	}
}

// monitor is the shared view of a transfer's byte counters. The reading
// goroutine bumps it on every chunk; the watcher samples it once per second.
type monitor struct {
	dlTotal, dlNow atomic.Int64
	ulTotal, ulNow atomic.Int64
	activity       atomic.Int64 // unix nanos of the last byte moved
}

func newMonitor() *monitor {
	m := &monitor{}
	m.touch()
	return m
}

func (m *monitor) touch() { m.activity.Store(time.Now().UnixNano()) }

func (m *monitor) idle() time.Duration {
	return time.Since(time.Unix(0, m.activity.Load()))
}

// watchTransfer fires the progress hook once per second whether or not data
// is moving, matching curl's periodic transfer callback. It cancels the
// exchange when the hook signals abort, and fails a transfer that moves no
// bytes for the whole stall window. stall 0 disables the inactivity bound.
func watchTransfer(cancel context.CancelCauseFunc, mon *monitor, tick ProgressFunc, stall time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if tick(mon.dlTotal.Load(), mon.dlNow.Load(), mon.ulTotal.Load(), mon.ulNow.Load()) {
				cancel(errAbortedByCallback)
				return
			}
			if stall > 0 && mon.idle() > stall {
				cancel(fmt.Errorf("%w: no data for %s", errTransferStalled, stall))
				return
			}
		}
	}
}

// resolveCause substitutes the watcher's cancellation cause for the opaque
// context error the HTTP stack surfaces when the request context is torn
// down mid-transfer.
func resolveCause(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, errAbortedByCallback) || errors.Is(cause, errTransferStalled) {
		return cause
	}
	return err
}

// progressReader counts bytes through it and reports them to the tick hook.
// When the hook signals abort the reader fails with the abort sentinel,
// which tears the transfer down.
type progressReader struct {
	rc      io.ReadCloser
	mon     *monitor
	upload  bool
	tick    ProgressFunc
	aborted bool
}

func (p *progressReader) Read(b []byte) (int, error) {
	if p.aborted {
		return 0, errAbortedByCallback
	}
	n, err := p.rc.Read(b)
	if n > 0 {
		p.mon.touch()
		var abort bool
		if p.upload {
			now := p.mon.ulNow.Add(int64(n))
			abort = p.tick(0, 0, p.mon.ulTotal.Load(), now)
		} else {
			now := p.mon.dlNow.Add(int64(n))
			abort = p.tick(p.mon.dlTotal.Load(), now, 0, 0)
		}
		if abort {
			p.aborted = true
			return n, errAbortedByCallback
		}
	}
	return n, err
}

func (p *progressReader) Close() error { return p.rc.Close() }

// classifyCopy maps an error from the body copy loop: abort sentinel first,
// then local write failures, then the transport taxonomy.
func classifyCopy(err error) *Error {
	if errors.Is(err, errAbortedByCallback) {
		return &Error{Code: CodeAbortedByCallback, Message: "Callback aborted", Aborted: true}
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return &Error{Code: CodeWriteError, Message: err.Error()}
	}
	return classify(err, false)
}

// decodeBody unwraps the advertised content encodings. "deflate" formally
// means a zlib stream, but some servers send raw DEFLATE; the header bytes
// decide which decoder applies, the way curl tolerates both.
func decodeBody(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		return gzip.NewReader(r)
	case "deflate":
		br := bufio.NewReader(r)
		if hdr, err := br.Peek(2); err == nil && isZlibHeader(hdr) {
			return zlib.NewReader(br)
		}
		return flate.NewReader(br), nil
	default:
		return r, nil
	}
}

// isZlibHeader checks the CMF/FLG pair: compression method 8 and a valid
// header checksum (the 16-bit value is a multiple of 31).
func isZlibHeader(hdr []byte) bool {
	if len(hdr) < 2 || hdr[0]&0x0f != 8 {
		return false
	}
	return (uint16(hdr[0])<<8|uint16(hdr[1]))%31 == 0
}

// buildHeaderBlock renders the response status line and headers as a raw
// CRLF-delimited block, the form the completion stage parses. Keys are
// sorted for deterministic output; the status line carries no colon and is
// skipped by the parser.
func buildHeaderBlock(resp *http.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/%d.%d %s\r\n", resp.ProtoMajor, resp.ProtoMinor, resp.Status)
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range resp.Header[k] {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("\r\n")
	return b.String()
}
