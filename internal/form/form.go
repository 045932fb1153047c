// Package form assembles multipart/form-data bodies from ordered field
// descriptors. Text and binary parts are carried inline; file-backed parts
// are streamed at send time so large files never sit in memory.
package form

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Field describes one multipart part. Exactly one of FilePath, Binary, or
// Data applies, selected in that order of precedence.
type Field struct {
	Name           string
	RemoteFileName string // defaults to Name
	ContentType    string // sniffed for file parts when empty
	FilePath       string
	Data           string
	Binary         []byte
	IsBinary       bool
}

// FieldError reports a field whose backing file could not be used.
type FieldError struct {
	Name string
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("form field %q: %v", e.Name, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Payload is an ordered multipart body description with a fixed boundary.
// Its length is known up front; file contents are read only when the body
// reader is consumed.
type Payload struct {
	boundary string
	fields   []Field
	length   int64
}

// Build validates the fields and computes the exact body length. File-backed
// fields must be openable; a failure yields a *FieldError before any network
// I/O happens.
func Build(fields []Field) (*Payload, error) {
	p := &Payload{
		boundary: multipart.NewWriter(io.Discard).Boundary(),
	}

	for _, f := range fields {
		if f.RemoteFileName == "" {
			f.RemoteFileName = f.Name
		}
		if f.FilePath != "" {
			file, err := os.Open(f.FilePath)
			if err != nil {
				return nil, &FieldError{Name: f.Name, Err: err}
			}
			file.Close()
			if f.ContentType == "" {
				if mt, err := mimetype.DetectFile(f.FilePath); err == nil {
					f.ContentType = mt.String()
				} else {
					f.ContentType = "application/octet-stream"
				}
			}
		}
		p.fields = append(p.fields, f)
	}

	n, err := p.writeTo(io.Discard, false)
	if err != nil {
		return nil, err
	}
	p.length = n
	return p, nil
}

// ContentType returns the full multipart content type including boundary.
func (p *Payload) ContentType() string {
	return "multipart/form-data; boundary=" + p.boundary
}

// Len returns the exact body length in bytes.
func (p *Payload) Len() int64 { return p.length }

// Reader opens a new streaming reader over the body. Each call re-opens the
// backing files, so the body can be replayed.
func (p *Payload) Reader() io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := p.writeTo(pw, true)
		pw.CloseWithError(err)
	}()
	return pr
}

// writeTo emits every part in declaration order. When includeFiles is false
// the file contents are skipped and only their sizes are counted, which is
// how Build computes the body length without reading the files.
func (p *Payload) writeTo(w io.Writer, includeFiles bool) (int64, error) {
	cw := &countingWriter{w: w}
	mw := multipart.NewWriter(cw)
	if err := mw.SetBoundary(p.boundary); err != nil {
		return 0, err
	}

	for i := range p.fields {
		f := &p.fields[i]
		part, err := mw.CreatePart(partHeader(f))
		if err != nil {
			return 0, err
		}
		switch {
		case f.FilePath != "":
			if includeFiles {
				file, err := os.Open(f.FilePath)
				if err != nil {
					return 0, &FieldError{Name: f.Name, Err: err}
				}
				_, err = io.Copy(part, file)
				file.Close()
				if err != nil {
					return 0, err
				}
			} else {
				info, err := os.Stat(f.FilePath)
				if err != nil {
					return 0, &FieldError{Name: f.Name, Err: err}
				}
				cw.n += info.Size()
			}
		case f.IsBinary:
			if _, err := part.Write(f.Binary); err != nil {
				return 0, err
			}
		default:
			if _, err := io.WriteString(part, f.Data); err != nil {
				return 0, err
			}
		}
	}

	if err := mw.Close(); err != nil {
		return 0, err
	}
	return cw.n, nil
}

// partHeader builds the MIME header for a field. File and text parts carry a
// filename attribute; inline binary parts do not.
func partHeader(f *Field) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	if f.IsBinary && f.FilePath == "" {
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q`, escapeQuotes(f.Name)))
	} else {
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`,
				escapeQuotes(f.Name), escapeQuotes(f.RemoteFileName)))
	}
	if f.ContentType != "" {
		h.Set("Content-Type", f.ContentType)
	}
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
