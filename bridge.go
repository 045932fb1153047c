package gmcurl

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gmkit/gmcurl/internal/transfer"
	"github.com/gmkit/gmcurl/internal/transport"
)

const internalErrorCode = transport.CodeInternalError

// complete is the completion bridge: it translates the executor's terminal
// state into the caller-facing outcome, delivers it exactly once, and tears
// down the per-request resources. A panic while assembling the result maps
// to the internal-error code instead of propagating; partial cleanup on an
// exceptional path would be a defect. The registry entry is cleared before
// the terminal send, which blocks until the consumer drains: an abandoned
// handle must not keep its id registered.
func (e *Engine) complete(h *Handle, params *transport.Params, res *transfer.Result, started time.Time) {
	resp, err := e.assemble(params, res, started)
	e.registry.Clear(params.RequestID)
	if err != nil && params.Debug {
		e.log.Debug("request failed", zap.String("url", params.URL), zap.Error(err))
	}
	h.complete(resp, err)
}

// assemble builds the success or failure value from a terminal result.
func (e *Engine) assemble(params *transport.Params, res *transfer.Result, started time.Time) (resp *Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = &RequestError{Code: internalErrorCode, Message: fmt.Sprint(r)}
		}
	}()

	switch res.State {
	case transfer.StateSucceeded:
	case transfer.StateFailed, transfer.StateCancelled:
		return nil, &RequestError{Code: res.ErrCode, Message: res.ErrMsg}
	default:
		// A non-terminal state here is a programming-contract violation;
		// the offset keeps it out of the transport code space.
		return nil, &RequestError{
			Code:    int(res.State) + transport.CompletionStatusOffset,
			Message: fmt.Sprintf("request finished in non-terminal state %q", res.State),
		}
	}

	headers := ParseHeaderBlock(res.RawHeaders)
	resp = &Response{
		ResponseCode: res.Status,
		Headers:      headers,
		Body:         res.Body,
		IsBinary:     isBinaryBody(headers, res.Downloaded),
	}
	if params.Timing && res.Timing != nil && res.Timing.TotalFinish >= 0 {
		resp.PerformanceTiming = res.Timing.Report(time.Since(started).Milliseconds())
	}
	return resp, nil
}

// isBinaryBody reports whether the body should be surfaced as binary:
// octet-stream or image content types, unless the payload went to a file.
func isBinaryBody(headers map[string]string, downloaded bool) bool {
	if downloaded {
		return false
	}
	ct := headers["Content-Type"]
	if ct == "" {
		for k, v := range headers {
			if strings.EqualFold(k, "Content-Type") {
				ct = v
				break
			}
		}
	}
	return strings.Contains(ct, "application/octet-stream") || strings.Contains(ct, "image/")
}

// ParseHeaderBlock parses a raw response header block into a key/value
// mapping. Keys and values are trimmed of surrounding whitespace; lines
// without a colon (the status line, the terminating blank line) are
// skipped. Duplicate keys keep the last parsed value.
func ParseHeaderBlock(block string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(block, "\n") {
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		if key != "" {
			headers[key] = value
		}
	}
	return headers
}
