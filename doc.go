// Package gmcurl is an asynchronous HTTP/HTTPS request execution engine
// with national-cryptography (TLCP) support.
//
// A request is described declaratively, submitted off the caller's
// goroutine, and observed through a per-request handle:
//
//	eng := gmcurl.New()
//	h := eng.Submit(gmcurl.Request{
//		URL:              "https://example.com/download",
//		DownloadFilePath: "/tmp/file.bin",
//		RequestID:        1,
//		OnProgress: func(current, total int64) {
//			fmt.Printf("%d/%d bytes\n", current, total)
//		},
//	})
//	resp, err := h.Wait(context.Background())
//
// Features:
//   - GET / POST / PUT / DELETE with text, JSON, or binary bodies
//   - multipart/form-data with inline and file-backed parts, in order
//   - TLS and TLCP (dual client certificate pairs) with configurable CA
//   - resumable downloads (byte-range append) and streamed file uploads
//   - throttled progress events and cooperative cancellation by request id
//   - per-phase performance timing on request
//
// Progress notifications are best-effort and rate limited to one per
// direction per second; the terminal outcome is delivered exactly once per
// request, after which every per-request resource is released.
package gmcurl
