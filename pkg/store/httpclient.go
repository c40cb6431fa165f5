package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPStore talks to a coview store server (see Server). Revisions map
// directly to the server's revision headers.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore creates a client for the store server at baseURL,
// e.g. "http://localhost:8080".
func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPStore) blobURL(key string) string {
	return h.baseURL + "/v1/blobs/" + url.PathEscape(key)
}

// Get fetches the payload and revision for key.
func (h *HTTPStore) Get(ctx context.Context, key string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.blobURL(key), nil)
	if err != nil {
		return "", "", err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("store get %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", "", fmt.Errorf("store get %s: %w", key, err)
		}
		return string(body), resp.Header.Get(HeaderRevision), nil
	case http.StatusNotFound:
		return "", "", ErrNotFound
	default:
		return "", "", fmt.Errorf("store get %s: unexpected status %d", key, resp.StatusCode)
	}
}

// Put stores the payload when the server still holds prevRev.
func (h *HTTPStore) Put(ctx context.Context, key, text, prevRev string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.blobURL(key), strings.NewReader(text))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set(HeaderPreviousRevision, prevRev)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("store put %s: %w", key, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Header.Get(HeaderRevision), nil
	case http.StatusPreconditionFailed:
		return "", ErrRevisionMismatch
	default:
		return "", fmt.Errorf("store put %s: unexpected status %d", key, resp.StatusCode)
	}
}
