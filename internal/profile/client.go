package profile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qrface/internal/biometric"
)

// Client talks to the profile endpoints of the backend.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates a profile client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Get fetches a profile by email.
func (c *Client) Get(ctx context.Context, email string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/profile/"+url.PathEscape(email), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	return decodeProfile(resp)
}

// Update sends a multipart profile update. The template, when present, is sent
// as the face_descriptor field and the photo as a file part.
func (c *Client) Update(ctx context.Context, u Update) (*Profile, error) {
	if u.Email == "" {
		return nil, fmt.Errorf("email required")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("email", u.Email)
	if u.Name != nil {
		_ = w.WriteField("name", *u.Name)
	}
	if u.Major != nil {
		_ = w.WriteField("jurusan", *u.Major)
	}
	if u.Template != nil {
		desc, err := biometric.EncodeDescriptor(u.Template.Embedding)
		if err != nil {
			return nil, err
		}
		_ = w.WriteField("face_descriptor", desc)
	}
	if u.Photo != nil && len(u.Photo.Data) > 0 {
		part, err := w.CreateFormFile("photo", "face"+extension(u.Photo.ContentType))
		if err != nil {
			return nil, fmt.Errorf("create photo part: %w", err)
		}
		if _, err := part.Write(u.Photo.Data); err != nil {
			return nil, fmt.Errorf("write photo part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/profile/update", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile update failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeProfile(resp)
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func decodeProfile(resp *http.Response) (*Profile, error) {
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("profile service error %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if p.Email == "" {
		return nil, fmt.Errorf("profile response missing email")
	}
	return &p, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
