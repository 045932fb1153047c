package transport

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gitee.com/Trisia/gotlcp/tlcp"

	"github.com/gmkit/gmcurl/internal/form"
)

// Plan is the fully translated transport configuration for one exchange.
// It owns the file handles it opened; Close releases them on every exit
// path, including errors.
type Plan struct {
	URL    string
	Method string
	Header http.Header

	// Body is the single-shot request body; GetBody re-opens it when the
	// transport needs to replay it across a redirect. ContentLength is -1
	// when unknown.
	Body          io.ReadCloser
	GetBody       func() (io.ReadCloser, error)
	ContentLength int64

	UploadFile   *os.File
	DownloadFile *os.File
	ResumeOffset int64

	FollowRedirects bool
	ReadTimeout     time.Duration // 0 means unbounded
	ConnectTimeout  time.Duration

	// StallTimeout bounds inactivity instead of total duration; a transfer
	// moving no bytes for this long fails with a timeout. 0 disables it.
	StallTimeout time.Duration

	TLS      *tls.Config
	TLCPConf *tlcp.Config

	Debug      bool
	Timing     bool
	BufferSize int

	// Progress directions the transfer reports on.
	WantUpload   bool
	WantDownload bool
}

// Close releases the plan's file handles. Safe to call more than once.
func (p *Plan) Close() {
	if p.Body != nil {
		p.Body.Close()
		p.Body = nil
		p.UploadFile = nil
	}
	if p.UploadFile != nil {
		p.UploadFile.Close()
		p.UploadFile = nil
	}
	if p.DownloadFile != nil {
		p.DownloadFile.Close()
		p.DownloadFile = nil
	}
}

// Configure translates params into a Plan. Local failures (bad URL, file
// open, certificate material) are terminal and return before any network
// I/O; the returned error is always a *transport.Error or *form.FieldError.
func Configure(params *Params) (*Plan, error) {
	target, err := url.Parse(params.URL)
	if err != nil {
		return nil, &Error{Code: CodeURLMalformed, Message: fmt.Sprintf("URL rejected: %v", err)}
	}
	switch target.Scheme {
	case "http", "https":
	default:
		return nil, &Error{
			Code:    CodeUnsupportedProtocol,
			Message: fmt.Sprintf("Protocol %q not supported", target.Scheme),
		}
	}

	plan := &Plan{
		URL:            params.URL,
		Method:         normalizeMethod(params.Method),
		Header:         make(http.Header),
		ContentLength:  0,
		ConnectTimeout: time.Duration(params.ConnectTimeout) * time.Second,
		ReadTimeout:    time.Duration(params.ReadTimeout) * time.Second,
		ResumeOffset:   params.ResumeOffset,
		Debug:          params.Debug,
		Timing:         params.Timing,
		BufferSize:     params.BufferSize,
	}
	if plan.BufferSize <= 0 {
		plan.BufferSize = defaultBufferSize
	}

	if err := configureBody(plan, params); err != nil {
		plan.Close()
		return nil, err
	}
	configureHeaders(plan, params)

	if params.DownloadPath != "" {
		if err := configureDownload(plan, params); err != nil {
			plan.Close()
			return nil, err
		}
	}

	if target.Scheme == "https" {
		if err := configureTLS(plan, params); err != nil {
			plan.Close()
			return nil, err
		}
	}

	return plan, nil
}

const defaultBufferSize = 131072

// normalizeMethod maps the configured method onto the supported verb set;
// anything unrecognized falls back to GET, the default.
func normalizeMethod(m string) string {
	switch strings.ToUpper(m) {
	case http.MethodPost:
		return http.MethodPost
	case http.MethodPut:
		return http.MethodPut
	case http.MethodDelete:
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// isMultipart reports whether the request routes through the form builder: a
// POST whose supplied headers declare a multipart/form-data content type.
func isMultipart(params *Params, method string) bool {
	if method != http.MethodPost || len(params.Headers) == 0 {
		return false
	}
	for k, v := range params.Headers {
		if strings.EqualFold(k, "Content-Type") && strings.Contains(v, "multipart/form-data") {
			return true
		}
	}
	return false
}

// configureBody selects the body source: streamed upload file, multipart
// form, or scalar payload. GET and DELETE never carry a scalar body even if
// one was configured.
func configureBody(plan *Plan, params *Params) error {
	if params.UploadPath != "" {
		file, err := os.Open(params.UploadPath)
		if err != nil {
			return &Error{Code: CodeFileOpenFailed, Message: "Failed to open file for upload"}
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return &Error{Code: CodeFileOpenFailed, Message: "Failed to open file for upload"}
		}
		plan.UploadFile = file
		plan.Body = file
		plan.ContentLength = info.Size()
		plan.GetBody = func() (io.ReadCloser, error) { return os.Open(params.UploadPath) }
		plan.FollowRedirects = true
		plan.WantUpload = true
		return nil
	}

	if isMultipart(params, plan.Method) {
		payload, err := form.Build(params.Form)
		if err != nil {
			return err
		}
		plan.Body = payload.Reader()
		plan.ContentLength = payload.Len()
		plan.GetBody = func() (io.ReadCloser, error) { return payload.Reader(), nil }
		plan.Header.Set("Content-Type", payload.ContentType())
		plan.WantUpload = true
		return nil
	}

	if plan.Method == http.MethodGet || plan.Method == http.MethodDelete {
		return nil
	}
	var raw []byte
	if params.IsBinary {
		raw = params.BodyBinary
	} else if params.BodyText != "" {
		raw = []byte(params.BodyText)
	}
	if len(raw) > 0 {
		plan.Body = io.NopCloser(bytes.NewReader(raw))
		plan.ContentLength = int64(len(raw))
		plan.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(raw)), nil
		}
	}
	return nil
}

// configureHeaders assembles the final header set. Precedence, lowest
// first: upload default, caller headers, binary-body override, no-header
// method defaults. Compression acceptance is always advertised.
func configureHeaders(plan *Plan, params *Params) {
	multipartCT := plan.Header.Get("Content-Type")

	if params.UploadPath != "" {
		plan.Header.Set("Content-Type", "application/octet-stream")
	}
	for k, v := range params.Headers {
		plan.Header.Set(k, v)
	}
	if multipartCT != "" {
		// The builder's boundary-bearing value wins over the caller's bare
		// multipart/form-data declaration.
		plan.Header.Set("Content-Type", multipartCT)
	}
	if params.IsBinary {
		plan.Header.Set("Content-Type", "application/octet-stream")
	}
	if len(params.Headers) == 0 && multipartCT == "" && params.UploadPath == "" {
		switch plan.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete:
			plan.Header.Set("Content-Type", "application/json")
		default:
			plan.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if params.UserAgent != "" && plan.Header.Get("User-Agent") == "" {
		plan.Header.Set("User-Agent", params.UserAgent)
	}
	plan.Header.Set("Accept-Encoding", "gzip, deflate")
}

const defaultStallTimeout = 5 * time.Minute

// configureDownload opens the target file, appending when a resume offset
// was detected, and emits the byte-range header. Downloads follow redirects
// and run with an unbounded read timeout; a large download is legitimate at
// any duration, so only inactivity is bounded, through the stall window.
func configureDownload(plan *Plan, params *Params) error {
	flags := os.O_CREATE | os.O_WRONLY
	if params.ResumeOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(params.DownloadPath, flags, 0o644)
	if err != nil {
		return &Error{Code: CodeFileOpenFailed, Message: "Failed to open downloadFile"}
	}
	plan.DownloadFile = file
	if params.ResumeOffset > 0 {
		plan.Header.Set("Range", "bytes="+strconv.FormatInt(params.ResumeOffset, 10)+"-")
	}
	plan.FollowRedirects = true
	plan.ReadTimeout = 0
	plan.StallTimeout = time.Duration(params.StallTimeout) * time.Second
	if plan.StallTimeout <= 0 {
		plan.StallTimeout = defaultStallTimeout
	}
	plan.WantDownload = true
	return nil
}
