package gateway

import (
	"bytes"
	"io"
	"mime/multipart"
	"sort"

	"github.com/pkg/errors"
)

// File is one file part of a multipart upload.
type File struct {
	Field   string
	Name    string
	Content io.Reader
}

// Multipart is an upload body. The gateway sends it with its own boundary
// content type and never forces JSON. It can be sent once.
type Multipart struct {
	body        *bytes.Buffer
	contentType string
}

// NewMultipart encodes form fields (in key order) followed by files.
func NewMultipart(fields map[string]string, files ...File) (*Multipart, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, errors.Wrapf(err, "[NewMultipart] field %s", k)
		}
	}

	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, errors.Wrapf(err, "[NewMultipart] file %s", f.Name)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, errors.Wrapf(err, "[NewMultipart] copy %s", f.Name)
		}
	}

	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "[NewMultipart] close writer")
	}
	return &Multipart{body: &buf, contentType: w.FormDataContentType()}, nil
}

// ContentType includes the boundary parameter.
func (m *Multipart) ContentType() string {
	return m.contentType
}
