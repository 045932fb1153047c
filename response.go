package gmcurl

import "fmt"

// Response is the terminal success value of a request.
type Response struct {
	// ResponseCode is the HTTP status code.
	ResponseCode int

	// Headers holds the parsed response headers, one value per key; for
	// duplicate keys the last parsed value wins.
	Headers map[string]string

	// Body is the response payload. For downloads the bytes are on disk and
	// Body carries a short completion marker. IsBinary reports whether the
	// Content-Type indicated a binary payload (octet-stream or image) for a
	// non-download request.
	Body     []byte
	IsBinary bool

	// PerformanceTiming maps timing field names to whole milliseconds. Nil
	// unless timing was requested; each phase is present only if measured.
	PerformanceTiming map[string]int64
}

// BodyText returns the body as a string.
func (r *Response) BodyText() string { return string(r.Body) }

// RequestError is the terminal failure value of a request.
//
// Code namespaces: transport error codes follow libcurl numbering; 101 is a
// local file-open failure, 102 an engine initialization failure, 2000 an
// unexpected internal error; completion-stage internal statuses are offset
// by +1000. An HTTP-level failure during a download carries the actual
// status code.
type RequestError struct {
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed (code %d): %s", e.Code, e.Message)
}
