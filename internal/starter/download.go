package starter

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/codecoach/internal/domain"
)

// download reads the archive into memory, rejecting it when either the
// declared Content-Length or the bytes actually received exceed the cap.
func (i *Installer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build download request: %w", domain.ErrValidation, err)
	}

	resp, err := i.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download starter archive: %w", domain.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: download starter archive: status %d", domain.ErrNetwork, resp.StatusCode)
	}
	if resp.ContentLength > i.maxBytes {
		return nil, fmt.Errorf("%w: declared %d bytes, limit %d", ErrTooLarge, resp.ContentLength, i.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read starter archive: %w", domain.ErrNetwork, err)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, fmt.Errorf("%w: received more than %d bytes", ErrTooLarge, i.maxBytes)
	}
	return data, nil
}
