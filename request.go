package gmcurl

// Request describes one HTTP exchange. The zero value of every optional
// field selects the documented default; a Request is immutable once
// submitted.
type Request struct {
	// URL is the target, http or https. Required.
	URL string

	// Method is GET, POST, PUT, or DELETE; anything else falls back to GET.
	Method string

	// Headers are sent verbatim, one value per key. When empty, POST, PUT
	// and DELETE default Content-Type to application/json and other methods
	// to application/x-www-form-urlencoded.
	Headers map[string]string

	// Body is the text or JSON payload for POST and PUT. GET and DELETE
	// never transmit a body.
	Body string

	// BinaryBody carries a binary payload instead of Body and forces
	// Content-Type to application/octet-stream.
	BinaryBody []byte

	// FormFields route a POST through multipart/form-data encoding when the
	// supplied Content-Type header declares it. Order is preserved; the
	// scalar body is ignored.
	FormFields []FormField

	// ReadTimeout and ConnectTimeout are in seconds, 15 each by default.
	// Downloads run with an unbounded read timeout regardless.
	ReadTimeout    int
	ConnectTimeout int

	// CAPath points at a PEM bundle used as the trust anchor; empty means
	// the system roots (standard TLS) or no anchors (TLCP).
	CAPath string

	// ClientCertPath is a directory holding the client certificate material
	// under fixed names: client.crt/client.key for standard TLS,
	// client_enc.crt/key plus client_sign.crt/key for TLCP.
	ClientCertPath string

	// TLCP selects the national-cryptography protocol variant.
	TLCP bool

	// Insecure disables server certificate verification entirely. When
	// verification is on, only the chain is checked, never the hostname;
	// this deliberate relaxation suits pinned internal deployments.
	Insecure bool

	// Debug logs request and response headers through the engine's logger.
	Debug bool

	// RequestID makes the request cancellable via Engine.Cancel. Zero means
	// not cancellable.
	RequestID int32

	// DownloadFilePath streams the response body to a file. If the file
	// already has content the transfer resumes from its current size with a
	// byte-range request, appending rather than overwriting.
	DownloadFilePath string

	// UploadFilePath streams the request body from a file.
	UploadFilePath string

	// OnProgress receives throttled byte counts while Wait is draining the
	// handle. For resumed downloads the counts include the resume offset.
	OnProgress func(current, total int64)

	// PerformanceTiming requests per-phase millisecond measurements on the
	// successful response.
	PerformanceTiming bool
}

// FormField describes one multipart part. Exactly one content source
// applies, in precedence order: FilePath, Binary, Data.
type FormField struct {
	Name           string
	RemoteFileName string // defaults to Name
	ContentType    string // sniffed for file-backed parts when empty
	FilePath       string
	Data           string
	Binary         []byte
}

// Progress is one throttled byte-count notification.
type Progress struct {
	Current int64
	Total   int64
}
