// Command gmcurl performs a single HTTP/HTTPS/TLCP request with the engine:
// plain exchanges, resumable downloads, streamed uploads, multipart forms,
// mutual TLS, and per-phase timing.
//
// Usage:
//
//	gmcurl https://example.com/api
//	gmcurl -X POST -d '{"a":1}' https://example.com/api
//	gmcurl --download /tmp/file.bin --id 1 https://example.com/big
//	gmcurl --tlcp --cert-dir /etc/certs/ --ca /etc/certs/ca.crt https://gm.example.com
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gmkit/gmcurl"
	"github.com/gmkit/gmcurl/internal/logging"
)

type flags struct {
	method         string
	headers        []string
	data           string
	forms          []string
	download       string
	upload         string
	caPath         string
	certDir        string
	tlcp           bool
	insecure       bool
	timeout        int
	connectTimeout int
	timing         bool
	debug          bool
	requestID      int32
}

func main() {
	var f flags

	cmd := &cobra.Command{
		Use:          "gmcurl [flags] URL",
		Short:        "HTTP/HTTPS client with TLCP, resumable downloads, and progress",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], &f)
		},
	}

	cmd.Flags().StringVarP(&f.method, "request", "X", "GET", "HTTP method (GET, POST, PUT, DELETE)")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "request header 'Key: Value' (repeatable)")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&f.forms, "form", "F", nil, "multipart field name=value or name=@file (repeatable)")
	cmd.Flags().StringVarP(&f.download, "download", "o", "", "download response body to file (resumes if it exists)")
	cmd.Flags().StringVarP(&f.upload, "upload", "T", "", "upload file as request body")
	cmd.Flags().StringVar(&f.caPath, "ca", "", "CA bundle path")
	cmd.Flags().StringVar(&f.certDir, "cert-dir", "", "client certificate directory")
	cmd.Flags().BoolVar(&f.tlcp, "tlcp", false, "use the TLCP national-cryptography protocol")
	cmd.Flags().BoolVarP(&f.insecure, "insecure", "k", false, "skip server certificate verification")
	cmd.Flags().IntVar(&f.timeout, "timeout", 0, "read timeout in seconds")
	cmd.Flags().IntVar(&f.connectTimeout, "connect-timeout", 0, "connect timeout in seconds")
	cmd.Flags().BoolVar(&f.timing, "timing", false, "report per-phase timing")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "log request/response headers")
	cmd.Flags().Int32Var(&f.requestID, "id", 0, "cancellable request id (0 = not cancellable)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, url string, f *flags) error {
	log := logging.NewNop()
	if f.debug {
		log = logging.NewDevelopment()
	}
	defer log.Sync()

	req := gmcurl.Request{
		URL:               url,
		Method:            f.method,
		Body:              f.data,
		ReadTimeout:       f.timeout,
		ConnectTimeout:    f.connectTimeout,
		CAPath:            f.caPath,
		ClientCertPath:    f.certDir,
		TLCP:              f.tlcp,
		Insecure:          f.insecure,
		Debug:             f.debug,
		RequestID:         f.requestID,
		DownloadFilePath:  f.download,
		UploadFilePath:    f.upload,
		PerformanceTiming: f.timing,
		OnProgress: func(current, total int64) {
			fmt.Fprintf(os.Stderr, "\r%d/%d bytes", current, total)
		},
	}

	headers, err := parseHeaders(f.headers)
	if err != nil {
		return err
	}
	req.Headers = headers

	fields, err := parseForms(f.forms)
	if err != nil {
		return err
	}
	if len(fields) > 0 {
		req.FormFields = fields
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		if _, ok := req.Headers["Content-Type"]; !ok {
			req.Headers["Content-Type"] = "multipart/form-data"
		}
		req.Method = "POST"
	}

	eng := gmcurl.New(gmcurl.WithLogger(log))
	resp, err := eng.Submit(req).Wait(ctx)
	if f.download != "" || f.upload != "" {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "HTTP %d\n", resp.ResponseCode)
	if resp.IsBinary {
		fmt.Fprintf(os.Stderr, "(%d bytes of binary data)\n", len(resp.Body))
		os.Stdout.Write(resp.Body)
	} else {
		fmt.Println(resp.BodyText())
	}

	if resp.PerformanceTiming != nil {
		names := make([]string, 0, len(resp.PerformanceTiming))
		for name := range resp.PerformanceTiming {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(os.Stderr, "%-22s %6d ms\n", name, resp.PerformanceTiming[name])
		}
	}
	return nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, want 'Key: Value'", h)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func parseForms(raw []string) ([]gmcurl.FormField, error) {
	var fields []gmcurl.FormField
	for _, spec := range raw {
		name, value, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid form field %q, want name=value or name=@file", spec)
		}
		field := gmcurl.FormField{Name: name}
		if strings.HasPrefix(value, "@") {
			field.FilePath = strings.TrimPrefix(value, "@")
		} else {
			field.Data = value
		}
		fields = append(fields, field)
	}
	return fields, nil
}
