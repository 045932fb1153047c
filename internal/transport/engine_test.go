package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, params *Params, tick ProgressFunc) (*Result, error) {
	t.Helper()
	plan, err := Configure(params)
	require.NoError(t, err)
	defer plan.Close()
	return NewHTTPEngine(nil).Do(context.Background(), plan, tick)
}

func TestEngineSimpleGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "gzip, deflate", r.Header.Get("Accept-Encoding"))
		w.Header().Set("X-Test", "value")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	res, err := doRequest(t, &Params{URL: srv.URL, ReadTimeout: 5, ConnectTimeout: 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "hello", string(res.Body))
	assert.Contains(t, res.RawHeaders, "X-Test: value\r\n")
}

func TestEngineGzipResponseDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		zw.Write([]byte("compressed payload"))
		zw.Close()
	}))
	defer srv.Close()

	res, err := doRequest(t, &Params{URL: srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, "compressed payload", string(res.Body))
}

func TestEnginePostBodyTransmitted(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = readAll(r)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	_, err := doRequest(t, &Params{
		URL:      srv.URL,
		Method:   "POST",
		BodyText: `{"k":"v"}`,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"k":"v"}`, string(got))
}

func TestEngineDownloadWritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	res, err := doRequest(t, &Params{URL: srv.URL, DownloadPath: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Body, "download bodies live on disk")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file-bytes", string(data))
}

func TestEngineDownloadFailsFastOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	_, err := doRequest(t, &Params{URL: srv.URL, DownloadPath: path}, nil)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusNotFound, terr.Code, "actual HTTP status surfaces as the code")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data, "error payload never reaches the target file")
}

func TestEngineRedirectsFollowedOnlyForFileTransfers(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("redirected"))
	}))
	defer target.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	// Plain request: redirect is surfaced, not followed.
	res, err := doRequest(t, &Params{URL: srv.URL}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, res.StatusCode)

	// Download: redirect is followed.
	path := filepath.Join(t.TempDir(), "out")
	res, err = doRequest(t, &Params{URL: srv.URL, DownloadPath: path}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "redirected", string(data))
}

func TestEngineProgressAbortStopsTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 1<<20))
	}))
	defer srv.Close()

	abortAfter := 1
	ticks := 0
	_, err := doRequest(t, &Params{URL: srv.URL, BufferSize: 4096},
		func(dlTotal, dlNow, ulTotal, ulNow int64) bool {
			ticks++
			return ticks > abortAfter
		})

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeAbortedByCallback, terr.Code)
	assert.True(t, terr.Aborted)
}

// stallServer sends headers plus a few bytes and then goes silent until the
// returned release function is called.
func stallServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("abc"))
		w.(http.Flusher).Flush()
		<-release
	}))
	var once atomic.Bool
	return srv, func() {
		if once.CompareAndSwap(false, true) {
			close(release)
		}
	}
}

func TestEngineAbortHonoredWhileStalled(t *testing.T) {
	srv, release := stallServer(t)
	defer srv.Close()
	defer release()

	var abort atomic.Bool
	go func() {
		time.Sleep(200 * time.Millisecond)
		abort.Store(true)
	}()

	path := filepath.Join(t.TempDir(), "out")
	start := time.Now()
	_, err := doRequest(t, &Params{URL: srv.URL, DownloadPath: path},
		func(dlTotal, dlNow, ulTotal, ulNow int64) bool {
			return abort.Load()
		})

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeAbortedByCallback, terr.Code)
	assert.True(t, terr.Aborted)
	assert.Less(t, time.Since(start), 10*time.Second,
		"abort must not wait for data to arrive")
}

func TestEngineStalledDownloadTimesOut(t *testing.T) {
	srv, release := stallServer(t)
	defer srv.Close()
	defer release()

	path := filepath.Join(t.TempDir(), "out")
	_, err := doRequest(t, &Params{URL: srv.URL, DownloadPath: path, StallTimeout: 1},
		func(dlTotal, dlNow, ulTotal, ulNow int64) bool { return false })

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeOperationTimedOut, terr.Code)
	assert.False(t, terr.Aborted)
}

func TestEngineDeflateVariantsDecoded(t *testing.T) {
	var zlibBody bytes.Buffer
	zw := zlib.NewWriter(&zlibBody)
	zw.Write([]byte("zlib payload"))
	zw.Close()

	var rawBody bytes.Buffer
	fw, err := flate.NewWriter(&rawBody, flate.DefaultCompression)
	require.NoError(t, err)
	fw.Write([]byte("raw deflate payload"))
	fw.Close()

	tests := []struct {
		name string
		body []byte
		want string
	}{
		{"zlib wrapped", zlibBody.Bytes(), "zlib payload"},
		{"raw stream", rawBody.Bytes(), "raw deflate payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", "deflate")
				w.Write(tt.body)
			}))
			defer srv.Close()

			res, err := doRequest(t, &Params{URL: srv.URL}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(res.Body))
		})
	}
}

func TestIsZlibHeader(t *testing.T) {
	assert.True(t, isZlibHeader([]byte{0x78, 0x9c}), "default compression")
	assert.True(t, isZlibHeader([]byte{0x78, 0x01}), "fastest compression")
	assert.False(t, isZlibHeader([]byte{0x4b, 0xcc}), "raw DEFLATE data")
	assert.False(t, isZlibHeader([]byte{0x78}), "short read")
}

func TestEngineConnectFailure(t *testing.T) {
	// Reserved port with nothing listening.
	_, err := doRequest(t, &Params{URL: "http://127.0.0.1:1", ConnectTimeout: 2}, nil)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeCouldntConnect, terr.Code)
}

func TestEngineTimingCaptured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res, err := doRequest(t, &Params{URL: srv.URL, Timing: true}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Timing)
	assert.GreaterOrEqual(t, res.Timing.TotalFinish, 0.0)
	assert.GreaterOrEqual(t, res.Timing.TCP, 0.0)
	assert.GreaterOrEqual(t, res.Timing.FirstReceive, 0.0)
	assert.Equal(t, float64(TimingUnset), res.Timing.TLS, "no handshake on plain HTTP")
}

func TestBuildHeaderBlockRoundTrip(t *testing.T) {
	resp := &http.Response{
		ProtoMajor: 1,
		ProtoMinor: 1,
		Status:     "200 OK",
		Header: http.Header{
			"Content-Type": {"text/plain"},
			"X-Test":       {"a b"},
		},
	}
	block := buildHeaderBlock(resp)
	assert.Contains(t, block, "HTTP/1.1 200 OK\r\n")
	assert.Contains(t, block, "Content-Type: text/plain\r\n")
	assert.Contains(t, block, "X-Test: a b\r\n")
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
