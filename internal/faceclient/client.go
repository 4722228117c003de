package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"qrface/internal/biometric"
	"qrface/internal/camera"
)

// Client calls the face embedding microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

// Extract posts one frame as a data URL and returns its embedding.
// A response without a face maps to biometric.ErrNoFace.
func (c *Client) Extract(ctx context.Context, frame camera.Frame) (biometric.Embedding, error) {
	if c.Skip {
		return mockEmbedding(), nil
	}
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("frame data required")
	}

	contentType := frame.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(frame.Data)
	}
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(frame.Data)

	body, _ := json.Marshal(map[string]string{"image": dataURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, biometric.ErrNoFace
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Embedding     []float64 `json:"embedding"`
		FacesDetected int       `json:"faces_detected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.FacesDetected == 0 || len(out.Embedding) == 0 {
		return nil, biometric.ErrNoFace
	}

	return out.Embedding, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

// mockEmbedding is a stable 128-d vector so skip mode enrolls and matches itself.
func mockEmbedding() biometric.Embedding {
	e := make(biometric.Embedding, 128)
	for i := range e {
		e[i] = float64(i%8) / 100
	}
	return e
}
