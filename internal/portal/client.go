// Package portal talks to the analysis portal. Every request body is signed
// with an HMAC-SHA256 of its exact bytes.
package portal

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/feichai0017/lefse-processor/internal/models"
	"github.com/feichai0017/lefse-processor/pkg/logger"
	"github.com/feichai0017/lefse-processor/pkg/metrics"
)

// SignatureHeader carries the hex HMAC of the request body.
const SignatureHeader = "X-API-Signature"

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 2048

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client performs signed exchanges with the portal. It holds no state
// besides its configuration and is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     []byte
	httpClient *http.Client
	logger     logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     []byte(cfg.APIKey),
		httpClient: httpClient,
		logger:     log.Named("portal"),
	}
}

// Marshal encodes body as compact JSON with keys in struct field order and
// without HTML escaping. The result is exactly what gets signed and sent.
func Marshal(body interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed by key.
func Sign(key, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Call POSTs body to endpoint and returns the raw response. Non-2xx answers
// and transport failures come back as *models.UpstreamRequestError. There is
// no retry.
func (c *Client) Call(ctx context.Context, endpoint string, query url.Values, body interface{}) ([]byte, error) {
	payload, err := Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", endpoint, err)
	}

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(c.apiKey, payload))

	c.logger.Debug("Calling portal",
		logger.String("endpoint", endpoint),
		logger.Int("bodyBytes", len(payload)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.PortalRequests.WithLabelValues(endpoint, metrics.OutcomeFailed).Inc()
		return nil, &models.UpstreamRequestError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.PortalRequests.WithLabelValues(endpoint, metrics.OutcomeFailed).Inc()
		return nil, &models.UpstreamRequestError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.PortalRequests.WithLabelValues(endpoint, metrics.OutcomeFailed).Inc()
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		c.logger.Error("Portal rejected request",
			logger.String("endpoint", endpoint),
			logger.Int("status", resp.StatusCode),
		)
		return nil, &models.UpstreamRequestError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	metrics.PortalRequests.WithLabelValues(endpoint, metrics.OutcomeOK).Inc()
	return data, nil
}
