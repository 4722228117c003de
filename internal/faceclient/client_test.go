package faceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrface/internal/biometric"
	"qrface/internal/camera"
)

var jpegFrame = camera.Frame{Data: []byte("\xff\xd8\xff\xe0fake-jpeg"), ContentType: "image/jpeg"}

func TestExtractPostsDataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, strings.HasPrefix(body["image"], "data:image/jpeg;base64,"))
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3],"score":0.9,"faces_detected":1}`))
	}))
	defer srv.Close()

	emb, err := New(srv.URL, false).Extract(context.Background(), jpegFrame)
	require.NoError(t, err)
	assert.Equal(t, biometric.Embedding{0.1, 0.2, 0.3}, emb)
}

func TestExtractNoFace(t *testing.T) {
	for name, h := range map[string]http.HandlerFunc{
		"empty result": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[],"faces_detected":0}`))
		},
		"unprocessable": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		},
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := New(srv.URL, false).Extract(context.Background(), jpegFrame)
			assert.ErrorIs(t, err, biometric.ErrNoFace)
		})
	}
}

func TestExtractServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL, false).Extract(context.Background(), jpegFrame)
	require.Error(t, err)
	assert.NotErrorIs(t, err, biometric.ErrNoFace)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestSkipModeIsSelfConsistent(t *testing.T) {
	c := New("http://unused", true)
	a, err := c.Extract(context.Background(), camera.Frame{})
	require.NoError(t, err)
	b, err := c.Extract(context.Background(), camera.Frame{})
	require.NoError(t, err)
	_, ok, err := biometric.Match(a, b)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, c.Health(context.Background()))
}
