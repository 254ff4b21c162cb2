package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ashureev/codecoach/internal/domain"
)

const (
	starterBucket = "starter-zips"
	signedURLTTL  = 15 * 60
)

// StorageClient resolves archive references to signed download URLs.
type StorageClient struct {
	*Client
}

// NewStorageClient creates an archive store client.
func NewStorageClient(c *Client) *StorageClient {
	return &StorageClient{Client: c}
}

// SignedDownloadURL returns a short-lived URL for archiveRef.
func (c *StorageClient) SignedDownloadURL(ctx context.Context, archiveRef string) (string, error) {
	var out struct {
		SignedURL string `json:"signedUrl"`
		URL       string `json:"url"`
	}
	body := map[string]any{"bucket": starterBucket, "path": archiveRef, "expiresIn": signedURLTTL}
	if err := c.doJSON(ctx, http.MethodPost, "/storage/sign", body, &out); err != nil {
		return "", fmt.Errorf("sign %s: %w", archiveRef, err)
	}
	if out.SignedURL != "" {
		return out.SignedURL, nil
	}
	if out.URL != "" {
		return out.URL, nil
	}
	return "", fmt.Errorf("%w: sign %s: response has no url", domain.ErrNetwork, archiveRef)
}
