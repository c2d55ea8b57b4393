package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Issuance-Network/token_layer/pkg/logger"
)

const (
	defaultValidateTimeout = 10 * time.Second
	maxValidateBody        = 1 << 20 // 1MiB
)

// HTTPValidator delegates validation to an external policy engine over HTTP.
type HTTPValidator struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	log      *logger.Logger
}

// NewHTTPValidator constructs a validator client for the given endpoint.
func NewHTTPValidator(client *http.Client, endpoint, apiKey string, log *logger.Logger) (*HTTPValidator, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("validator endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse validator endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("validator endpoint must be an absolute URL")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultValidateTimeout}
	}
	if client.Timeout == 0 {
		client.Timeout = defaultValidateTimeout
	}
	if log == nil {
		log = logger.NewDefault("policy-validator")
	}
	return &HTTPValidator{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(apiKey),
		log:      log,
	}, nil
}

// Validate posts the descriptor to the engine and decodes its verdict.
func (v *HTTPValidator) Validate(ctx context.Context, desc Descriptor, opts Options) (Result, error) {
	body, err := json.Marshal(struct {
		Transaction Descriptor `json:"transaction"`
		Options     Options    `json:"options"`
	}{Transaction: desc, Options: opts})
	if err != nil {
		return Result{}, fmt.Errorf("encode validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	start := time.Now()
	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("validation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if len(msg) > 0 {
			return Result{}, fmt.Errorf("validator status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return Result{}, fmt.Errorf("validator status %d", resp.StatusCode)
	}

	var result Result
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxValidateBody))
	if err := dec.Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode validation response: %w", err)
	}

	v.log.WithField("operation", desc.Metadata.Operation).
		WithField("valid", result.Valid).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debugf("validation completed")
	return result, nil
}
