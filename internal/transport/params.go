package transport

import "github.com/gmkit/gmcurl/internal/form"

// Params is the internal request-parameter structure. It is constructed once
// per request from the caller-facing description and is owned exclusively by
// that request's worker; nothing here is shared between requests.
type Params struct {
	URL     string
	Method  string // normalized to GET/POST/PUT/DELETE, GET when empty
	Headers map[string]string

	// Scalar body; mutually exclusive with Form. IsBinary selects BodyBinary
	// over BodyText and forces Content-Type to application/octet-stream.
	BodyText   string
	BodyBinary []byte
	IsBinary   bool

	// Ordered multipart fields, honored for POST requests whose supplied
	// Content-Type declares multipart/form-data.
	Form []form.Field

	ReadTimeout    int // seconds; forced unbounded for downloads
	ConnectTimeout int // seconds
	StallTimeout   int // seconds of download inactivity tolerated; 0 selects the default

	CAPath        string
	ClientCertDir string
	VerifyServer  bool
	TLCP          bool

	Debug  bool
	Timing bool

	// RequestID 0 means the request is not cancellable.
	RequestID int32

	DownloadPath string
	ResumeOffset int64
	UploadPath   string

	BufferSize int
	UserAgent  string
}

// NeedsProgress reports whether the transfer installs the progress hook:
// cancellable requests and any file or form transfer.
func (p *Params) NeedsProgress() bool {
	return p.RequestID != 0 || p.DownloadPath != "" || p.UploadPath != "" || len(p.Form) > 0
}
