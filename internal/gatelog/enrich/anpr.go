package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBody = 1 << 20

// ANPRClient posts a JPEG frame to a plate recognition endpoint that
// answers {"plate": "...", "confidence": 0.97}.
type ANPRClient struct {
	http          *http.Client
	url           string
	minConfidence float64
}

func NewANPRClient(hc *http.Client, url string, minConfidence float64) *ANPRClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &ANPRClient{http: hc, url: url, minConfidence: minConfidence}
}

type anprResponse struct {
	Plate      string  `json:"plate"`
	Confidence float64 `json:"confidence"`
}

func (c *ANPRClient) Recognize(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("read recognize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognize: status %d", resp.StatusCode)
	}

	var out anprResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if strings.TrimSpace(out.Plate) == "" {
		return "", errors.New("plate not recognized")
	}
	if out.Confidence < c.minConfidence {
		return "", fmt.Errorf("low confidence %.2f for %q", out.Confidence, out.Plate)
	}
	return out.Plate, nil
}
