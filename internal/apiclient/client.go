// Package apiclient calls the upload and analyze endpoints.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/example/is-it-pizza/internal/capture"
	"github.com/example/is-it-pizza/internal/vision"
)

// UploadResult is the upload endpoint's success body.
type UploadResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
}

// APIError carries the status and the server's error message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

type errorBody struct {
	Error string `json:"error"`
}

// Client is safe for concurrent use.
type Client struct {
	http *resty.Client
}

// New builds a client. A zero timeout means requests wait as long as the
// server takes.
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

// Upload sends the image bytes as the "file" multipart field.
func (c *Client) Upload(ctx context.Context, img *capture.Image) (*UploadResult, error) {
	var (
		result  UploadResult
		failure errorBody
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", img.Name, img.ContentType, bytes.NewReader(img.Data)).
		SetResult(&result).
		SetError(&failure).
		Post("/api/upload")
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Message: failure.Error}
	}
	if result.URL == "" {
		return nil, fmt.Errorf("upload: response carried no url")
	}
	return &result, nil
}

// Analyze asks the server to classify the image at imageURL.
func (c *Client) Analyze(ctx context.Context, imageURL string) (*vision.Verdict, error) {
	var (
		verdict vision.Verdict
		failure errorBody
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"imageUrl": imageURL}).
		SetResult(&verdict).
		SetError(&failure).
		Post("/api/analyze")
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{Status: resp.StatusCode(), Message: failure.Error}
	}
	return &verdict, nil
}
