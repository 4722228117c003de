package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignExcludesKeyAndSortsParams(t *testing.T) {
	c := New("demo", "key", "secret", "")
	got := c.sign(map[string]string{"timestamp": "100", "folder": "faces", "api_key": "key", "public_id": ""})
	want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=faces&timestamp=100secret")))
	assert.Equal(t, want, got)
}

func TestUploadBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/demo/image/upload", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "faces", r.FormValue("folder"))
		assert.Equal(t, "student-1", r.FormValue("public_id"))
		assert.Equal(t, "true", r.FormValue("overwrite"))
		assert.Equal(t, "1772438400", r.FormValue("timestamp"))
		assert.NotEmpty(t, r.FormValue("signature"))

		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			b, _ := io.ReadAll(f)
			assert.Equal(t, "jpegbytes", string(b))
			assert.Equal(t, "face.jpg", hdr.Filename)
		}
		_, _ = w.Write([]byte(`{"public_id":"faces/student-1","secure_url":"https://res.example/faces/student-1.jpg"}`))
	}))
	defer srv.Close()

	c := New("demo", "key", "secret", "faces")
	c.BaseURL = srv.URL
	c.Now = func() time.Time { return time.Unix(1772438400, 0) }

	res, err := c.UploadBytes(context.Background(), []byte("jpegbytes"), "face.jpg", "student-1")
	require.NoError(t, err)
	assert.Equal(t, "https://res.example/faces/student-1.jpg", res.SecureURL)
}

func TestUploadErrors(t *testing.T) {
	var unset *Client
	assert.False(t, unset.Enabled())

	c := New("", "", "", "")
	_, err := c.UploadBytes(context.Background(), []byte("x"), "f.jpg", "")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid Signature"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()
	c = New("demo", "key", "secret", "")
	c.BaseURL = srv.URL
	_, err = c.UploadBytes(context.Background(), []byte("x"), "f.jpg", "")
	assert.ErrorContains(t, err, "401")

	_, err = c.UploadBytes(context.Background(), nil, "f.jpg", "")
	assert.Error(t, err)
}
