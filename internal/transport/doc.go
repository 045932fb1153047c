// Package transport translates request parameters into a concrete wire plan
// and executes it.
//
// The package is split along the configure/execute seam:
//   - params: the internal request-parameter structure, owned by one
//     in-flight request
//   - plan: translation of parameters into method, headers, body source,
//     range resumption, timeouts, and redirect policy
//   - tls: standard TLS and TLCP (national cryptography, dual certificate
//     pair) configuration
//   - engine: the transport engine proper, driving one exchange over
//     net/http with progress hooks, response decoding, and timing capture
//   - errcode: stable numeric error taxonomy aligned with libcurl's codes
//
// The engine is intentionally per-request: each call builds a fresh
// transport with keep-alives disabled, because connection pooling across
// requests is out of scope for this core.
package transport
