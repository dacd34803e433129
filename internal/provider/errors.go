package provider

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
)

// UpstreamError is a non-200 answer from an image provider. Its message is
// the provider's response body, which is what users see in chat.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return e.Body
}

// createImagePart adds a file part with an explicit content type;
// multipart.Writer.CreateFormFile always uses application/octet-stream.
func createImagePart(w *multipart.Writer, field, filename, contentType string) (io.Writer, error) {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}
