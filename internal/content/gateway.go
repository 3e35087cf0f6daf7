package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const defaultMaxContentBytes = 4 << 20

// GatewayStore fetches content from an HTTP gateway serving GET {base}/{hash}.
type GatewayStore struct {
	baseURL  string
	client   *http.Client
	maxBytes int64
}

// NewGatewayStore builds a gateway store. A zero timeout means 30s.
func NewGatewayStore(baseURL string, timeout time.Duration) *GatewayStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		maxBytes: defaultMaxContentBytes,
	}
}

func (s *GatewayStore) Fetch(ctx context.Context, hash common.Hash) ([]byte, error) {
	url := s.baseURL + "/" + hash.Hex()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", hash.Hex(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("fetch %s: %w", hash.Hex(), ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("fetch %s: %w", hash.Hex(), ErrThrottled)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("fetch %s: %w", hash.Hex(), ErrAccessDenied)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", hash.Hex(), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", hash.Hex(), err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("fetch %s: content exceeds %d bytes", hash.Hex(), s.maxBytes)
	}
	return body, nil
}
