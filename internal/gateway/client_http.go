package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/Issuance-Network/token_layer/internal/app/metrics"
	"github.com/Issuance-Network/token_layer/internal/policy"
	"github.com/Issuance-Network/token_layer/pkg/logger"
)

const (
	defaultGatewayTimeout = 30 * time.Second
	maxGatewayBody        = 1 << 20 // 1MiB
)

// ResponseProfile maps a provider's response shape onto a Receipt. Paths are
// JSONPath expressions; empty paths fall back to the defaults used by the
// reference gateway.
type ResponseProfile struct {
	TransactionHashPath string
	NoncePath           string
	GasUsedPath         string
	ErrorPath           string
}

// DefaultResponseProfile matches the reference gateway's response shape.
func DefaultResponseProfile() ResponseProfile {
	return ResponseProfile{
		TransactionHashPath: "$.transactionHash",
		NoncePath:           "$.nonce",
		GasUsedPath:         "$.gasUsed",
		ErrorPath:           "$.error",
	}
}

func (p ResponseProfile) withDefaults() ResponseProfile {
	def := DefaultResponseProfile()
	if strings.TrimSpace(p.TransactionHashPath) == "" {
		p.TransactionHashPath = def.TransactionHashPath
	}
	if strings.TrimSpace(p.NoncePath) == "" {
		p.NoncePath = def.NoncePath
	}
	if strings.TrimSpace(p.GasUsedPath) == "" {
		p.GasUsedPath = def.GasUsedPath
	}
	if strings.TrimSpace(p.ErrorPath) == "" {
		p.ErrorPath = def.ErrorPath
	}
	return p
}

// HTTPClientConfig configures an HTTP gateway client.
type HTTPClientConfig struct {
	// Endpoint is the gateway base URL.
	Endpoint string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// SigningSeed enables HMAC request signing when non-empty.
	SigningSeed []byte
	// KeyVersion selects the derived signing key. Defaults to "v1".
	KeyVersion string
	// Profile maps the provider response shape. Zero value uses defaults.
	Profile ResponseProfile
	// HTTPClient overrides the transport. Nil uses a default with timeout.
	HTTPClient *http.Client
}

// HTTPClient talks to a transaction gateway service over HTTP.
type HTTPClient struct {
	client   *http.Client
	endpoint *url.URL
	apiKey   string
	signer   *RequestSigner
	profile  ResponseProfile
	log      *logger.Logger
}

var _ Gateway = (*HTTPClient)(nil)
var _ StatusSource = (*HTTPClient)(nil)

// NewHTTPClient constructs a gateway client.
func NewHTTPClient(cfg HTTPClientConfig, log *logger.Logger) (*HTTPClient, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("gateway endpoint required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse gateway endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("gateway endpoint must be an absolute URL")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultGatewayTimeout}
	}
	if client.Timeout == 0 {
		client.Timeout = defaultGatewayTimeout
	}

	var signer *RequestSigner
	if len(cfg.SigningSeed) > 0 {
		version := strings.TrimSpace(cfg.KeyVersion)
		if version == "" {
			version = "v1"
		}
		signer, err = NewRequestSigner(cfg.SigningSeed, version)
		if err != nil {
			return nil, err
		}
	}

	if log == nil {
		log = logger.NewDefault("gateway-client")
	}

	return &HTTPClient{
		client:   client,
		endpoint: parsed,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		signer:   signer,
		profile:  cfg.Profile.withDefaults(),
		log:      log,
	}, nil
}

func (c *HTTPClient) Mint(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "mint", call)
}

func (c *HTTPClient) Burn(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "burn", call)
}

func (c *HTTPClient) Pause(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "pause", call)
}

func (c *HTTPClient) Unpause(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "unpause", call)
}

func (c *HTTPClient) SetModule(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "setModule", call)
}

func (c *HTTPClient) GrantRole(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "grantRole", call)
}

func (c *HTTPClient) RevokeRole(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "revokeRole", call)
}

func (c *HTTPClient) Unlock(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "unlock", call)
}

func (c *HTTPClient) Unblock(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "unblock", call)
}

func (c *HTTPClient) UpdateMaxSupply(ctx context.Context, call Call) (Receipt, error) {
	return c.invoke(ctx, "updateMaxSupply", call)
}

// Submit sends a descriptor through the direct submission path.
func (c *HTTPClient) Submit(ctx context.Context, sub Submission) (Receipt, error) {
	if err := sub.Wallet.Validate(); err != nil {
		return Receipt{}, err
	}
	body := struct {
		Wallet     WalletContext     `json:"wallet"`
		Descriptor policy.Descriptor `json:"descriptor"`
		Urgency    policy.Urgency    `json:"urgency,omitempty"`
	}{Wallet: sub.Wallet, Descriptor: sub.Descriptor, Urgency: sub.Urgency}
	receipt, err := c.post(ctx, "/v1/transactions", body)
	metrics.RecordGatewayCall("submit", err == nil)
	return receipt, err
}

// TransactionStatus asks the gateway for the fate of a submitted transaction.
func (c *HTTPClient) TransactionStatus(ctx context.Context, txHash string) (TransactionStatus, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return TransactionStatus{}, fmt.Errorf("transaction hash required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint.String()+"/v1/transactions/"+url.PathEscape(txHash), nil)
	if err != nil {
		return TransactionStatus{}, fmt.Errorf("build status request: %w", err)
	}
	c.authorize(req, nil)

	resp, err := c.client.Do(req)
	if err != nil {
		return TransactionStatus{}, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TransactionStatus{}, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	var payload struct {
		Done       bool    `json:"done"`
		Success    bool    `json:"success"`
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after_seconds"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGatewayBody)).Decode(&payload); err != nil {
		return TransactionStatus{}, fmt.Errorf("decode status response: %w", err)
	}

	retry := time.Duration(payload.RetryAfter * float64(time.Second))
	if retry <= 0 {
		retry = 5 * time.Second
	}
	return TransactionStatus{
		Done:       payload.Done,
		Success:    payload.Success,
		Message:    payload.Message,
		RetryAfter: retry,
	}, nil
}

func (c *HTTPClient) invoke(ctx context.Context, method string, call Call) (Receipt, error) {
	if err := call.Wallet.Validate(); err != nil {
		return Receipt{}, err
	}
	if strings.TrimSpace(call.Contract) == "" {
		return Receipt{}, fmt.Errorf("target contract required")
	}
	if call.ChainID == "" {
		call.ChainID = call.Wallet.ChainID
	}
	receipt, err := c.post(ctx, "/v1/operations/"+method, call)
	metrics.RecordGatewayCall(method, err == nil)
	return receipt, err
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}) (Receipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String()+path, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, body)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return Receipt{}, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if msg := c.extractString(raw, c.profile.ErrorPath); msg != "" {
			return Receipt{}, fmt.Errorf("gateway status %d: %s", resp.StatusCode, msg)
		}
		return Receipt{}, fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	receipt, err := c.decodeReceipt(raw)
	if err != nil {
		return Receipt{}, err
	}

	c.log.WithField("path", path).
		WithField("tx_hash", receipt.TransactionHash).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debugf("gateway call completed")
	return receipt, nil
}

func (c *HTTPClient) authorize(req *http.Request, body []byte) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.signer != nil {
		now := time.Now().UTC()
		req.Header.Set("X-Timestamp", strconv.FormatInt(now.Unix(), 10))
		req.Header.Set("X-Key-Version", c.signer.KeyVersion())
		req.Header.Set("X-Signature", c.signer.Sign(req.Method, req.URL.Path, now, body))
	}
}

func (c *HTTPClient) decodeReceipt(raw []byte) (Receipt, error) {
	hash := c.extractString(raw, c.profile.TransactionHashPath)
	if hash == "" {
		if msg := c.extractString(raw, c.profile.ErrorPath); msg != "" {
			return Receipt{}, fmt.Errorf("gateway error: %s", msg)
		}
		return Receipt{}, fmt.Errorf("gateway response missing transaction hash")
	}

	receipt := Receipt{
		TransactionHash: hash,
		GasUsed:         c.extractString(raw, c.profile.GasUsedPath),
		Raw:             json.RawMessage(raw),
	}
	if nonce := c.extractString(raw, c.profile.NoncePath); nonce != "" {
		if parsed, err := strconv.ParseInt(nonce, 10, 64); err == nil {
			receipt.NonceUsed = parsed
		}
	}
	return receipt, nil
}

// extractString evaluates a JSONPath against the raw response, rendering
// numbers without a fractional part as integers.
func (c *HTTPClient) extractString(raw []byte, path string) string {
	if path == "" {
		return ""
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	value, err := jsonpath.Get(path, doc)
	if err != nil || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
