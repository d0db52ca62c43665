package blobstore

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const vercelAPIVersion = "7"

// VercelStore talks to the Vercel Blob REST API.
type VercelStore struct {
	client *resty.Client
	token  string
	logger *zap.Logger
}

type vercelPutResponse struct {
	URL         string `json:"url"`
	DownloadURL string `json:"downloadUrl"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
}

type vercelErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewVercelStore builds a store against apiURL. An empty token is accepted;
// every Put then fails with ErrMissingCredential.
func NewVercelStore(apiURL, token string, logger *zap.Logger) *VercelStore {
	client := resty.New().
		SetBaseURL(apiURL).
		SetHeader("x-api-version", vercelAPIVersion)
	return &VercelStore{client: client, token: token, logger: logger.Named("vercel_blob")}
}

// Put uploads data under key with public access. The key is used as is;
// uniqueness is the caller's job.
func (s *VercelStore) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	if s.token == "" {
		return nil, ErrMissingCredential
	}

	var (
		result  vercelPutResponse
		failure vercelErrorResponse
	)
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.token).
		SetHeader("x-content-type", contentType).
		SetHeader("x-add-random-suffix", "0").
		SetHeader("x-vercel-blob-access", "public").
		SetQueryParam("pathname", key).
		SetBody(data).
		SetResult(&result).
		SetError(&failure).
		Put("/")
	if err != nil {
		return nil, fmt.Errorf("vercel blob put %s: %w", key, err)
	}
	if resp.IsError() {
		s.logger.Warn("blob store rejected upload",
			zap.String("key", key),
			zap.Int("status", resp.StatusCode()),
			zap.String("code", failure.Error.Code))
		return nil, fmt.Errorf("vercel blob put %s: status %d: %s", key, resp.StatusCode(), failure.Error.Message)
	}
	if result.URL == "" {
		return nil, fmt.Errorf("vercel blob put %s: response carried no url", key)
	}

	ct := result.ContentType
	if ct == "" {
		ct = contentType
	}
	pathname := result.Pathname
	if pathname == "" {
		pathname = key
	}
	return &Object{Key: pathname, URL: result.URL, ContentType: ct}, nil
}
