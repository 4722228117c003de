package attendance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Request is a verified check-in handed to the attendance backend.
type Request struct {
	StudentID     string    `json:"nim" binding:"required"`
	SessionID     string    `json:"id_jadwal" binding:"required"`
	MeetingNumber int       `json:"pertemuan" binding:"required,gt=0"`
	IssuedAt      time.Time `json:"qr_timestamp" binding:"required"`
}

// Response is the backend verdict for a submission.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client submits attendance to the backend.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient creates a submission client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Submit posts one request. A rejection with a JSON verdict is returned as a
// Response with Success false; transport and malformed replies are errors.
func (c *Client) Submit(ctx context.Context, r Request) (Response, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/attendance/submit", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("attendance request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Response{}, fmt.Errorf("read attendance response: %w", err)
	}
	var out struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || (out.Success == nil && out.Error == "") {
		return Response{}, fmt.Errorf("attendance service error %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	res := Response{Message: out.Message}
	if out.Success != nil {
		res.Success = *out.Success && resp.StatusCode < 300
	}
	if res.Message == "" {
		res.Message = out.Error
	}
	return res, nil
}
