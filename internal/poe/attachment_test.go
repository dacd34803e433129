package poe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echobot/internal/domain"
	"echobot/internal/provider"
)

func TestUploaderUpload(t *testing.T) {
	var (
		auth   string
		fields = map[string]string{}
		file   []byte
		fname  string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		fh := r.MultipartForm.File["file"][0]
		fname = fh.Filename
		ctype = fh.Header.Get("Content-Type")
		f, _ := fh.Open()
		file, _ = io.ReadAll(f)
		f.Close()
		w.Write([]byte(`{"attachment_url":"https://cdn.example/x.png","mime_type":"image/png","inline_ref":"ab12"}`))
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, 0, nil)
	res, err := u.Upload(context.Background(), "poe-key", "msg-1", domain.Artifact{
		Data: []byte("PNGDATA"), Filename: "2024/01/02/generated_image_1.png", ContentType: "image/png",
	})
	require.NoError(t, err)

	assert.Equal(t, "poe-key", auth)
	assert.Equal(t, "msg-1", fields["message_id"])
	assert.Equal(t, "false", fields["is_inline"])
	assert.Equal(t, "2024/01/02/generated_image_1.png", fields["download_filename"])
	assert.Equal(t, []byte("PNGDATA"), file)
	assert.Equal(t, "image/png", ctype)
	assert.NotEmpty(t, fname)
	assert.Equal(t, "https://cdn.example/x.png", res.AttachmentURL)
	assert.Equal(t, "ab12", res.InlineRef)
}

func TestUploaderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad message id", http.StatusBadRequest)
	}))
	defer srv.Close()

	u := NewUploader(srv.URL, 0, nil)
	_, err := u.Upload(context.Background(), "k", "m", domain.Artifact{Data: []byte("x"), Filename: "a.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
}

func TestUploaderMissingKey(t *testing.T) {
	u := NewUploader("http://127.0.0.1:1", 0, nil)
	_, err := u.Upload(context.Background(), "<missing>", "m", domain.Artifact{})
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
}
