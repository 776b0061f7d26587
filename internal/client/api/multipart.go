package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

// MultipartBody is a buffered multipart/form-data request body. When passed
// as RequestOptions.Body the client sends the writer's boundary content type
// instead of application/json.
type MultipartBody struct {
	buf bytes.Buffer
	w   *multipart.Writer
}

// NewMultipartBody returns an empty form.
func NewMultipartBody() *MultipartBody {
	b := &MultipartBody{}
	b.w = multipart.NewWriter(&b.buf)
	return b
}

// WriteField adds a plain form field.
func (b *MultipartBody) WriteField(name, value string) error {
	return b.w.WriteField(name, value)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// WriteFile adds a file part with an explicit content type.
func (b *MultipartBody) WriteFile(field, filename, contentType string, r io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)

	part, err := b.w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}

// Close writes the trailing boundary. It must be called before sending.
func (b *MultipartBody) Close() error {
	return b.w.Close()
}

// ContentType is multipart/form-data with the form's boundary.
func (b *MultipartBody) ContentType() string {
	return b.w.FormDataContentType()
}

// Reader returns a fresh reader over the encoded form.
func (b *MultipartBody) Reader() io.Reader {
	return bytes.NewReader(b.buf.Bytes())
}
