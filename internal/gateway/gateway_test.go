package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

var testWallet = WalletContext{
	Address: "0x00000000000000000000000000000000000000aa",
	ChainID: "1",
}

func TestWalletContextValidate(t *testing.T) {
	if err := testWallet.Validate(); err != nil {
		t.Fatalf("valid wallet rejected: %v", err)
	}

	cases := []WalletContext{
		{},
		{Address: "not-an-address", ChainID: "1"},
		{Address: "0x1234", ChainID: "1"},
		{Address: testWallet.Address},
	}
	for _, w := range cases {
		if err := w.Validate(); err == nil {
			t.Errorf("wallet %+v should be rejected", w)
		}
	}
}

func TestDeriveSigningKeyIsVersioned(t *testing.T) {
	seed := []byte("shared-master-seed")

	v1a, err := DeriveSigningKey(seed, "v1")
	if err != nil {
		t.Fatal(err)
	}
	v1b, err := DeriveSigningKey(seed, "v1")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := DeriveSigningKey(seed, "v2")
	if err != nil {
		t.Fatal(err)
	}

	if string(v1a) != string(v1b) {
		t.Error("derivation should be deterministic")
	}
	if string(v1a) == string(v2) {
		t.Error("different versions should derive different keys")
	}
	if len(v1a) != 32 {
		t.Errorf("key length = %d, want 32", len(v1a))
	}

	if _, err := DeriveSigningKey(nil, "v1"); err == nil {
		t.Error("empty seed should be rejected")
	}
	if _, err := DeriveSigningKey(seed, " "); err == nil {
		t.Error("blank version should be rejected")
	}
}

func TestRequestSignerCanonicalInput(t *testing.T) {
	signer, err := NewRequestSigner([]byte("seed"), "v1")
	if err != nil {
		t.Fatal(err)
	}
	at := time.Unix(1700000000, 0)
	body := []byte(`{"a":1}`)

	sig := signer.Sign("post", "/v1/operations/mint", at, body)
	if sig != signer.Sign("POST", "/v1/operations/mint", at, body) {
		t.Error("method should be case-insensitive")
	}
	if sig == signer.Sign("POST", "/v1/operations/burn", at, body) {
		t.Error("path must be part of the signature")
	}
	if sig == signer.Sign("POST", "/v1/operations/mint", at.Add(time.Second), body) {
		t.Error("timestamp must be part of the signature")
	}
	if sig == signer.Sign("POST", "/v1/operations/mint", at, []byte(`{"a":2}`)) {
		t.Error("body must be part of the signature")
	}
}

func TestHTTPClientMint(t *testing.T) {
	var (
		gotPath    string
		gotAuth    string
		gotVersion string
		gotCall    Call
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("X-Key-Version")
		if r.Header.Get("X-Signature") == "" {
			t.Error("signature header missing")
		}
		if _, err := strconv.ParseInt(r.Header.Get("X-Timestamp"), 10, 64); err != nil {
			t.Errorf("bad timestamp header: %v", err)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotCall); err != nil {
			t.Errorf("decode call: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactionHash": "0xabc123",
			"nonce":           7,
			"gasUsed":         "21000",
		})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{
		Endpoint:    srv.URL,
		APIKey:      "secret",
		SigningSeed: []byte("seed"),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	receipt, err := client.Mint(context.Background(), Call{
		Wallet:   testWallet,
		Contract: "0x00000000000000000000000000000000000000bb",
		Params:   map[string]interface{}{"to": testWallet.Address, "amount": "100"},
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if gotPath != "/v1/operations/mint" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotVersion != "v1" {
		t.Errorf("key version = %q", gotVersion)
	}
	if gotCall.ChainID != "1" {
		t.Errorf("chain id should default from the wallet, got %q", gotCall.ChainID)
	}
	if receipt.TransactionHash != "0xabc123" {
		t.Errorf("hash = %q", receipt.TransactionHash)
	}
	if receipt.NonceUsed != 7 {
		t.Errorf("nonce = %d", receipt.NonceUsed)
	}
	if receipt.GasUsed != "21000" {
		t.Errorf("gas = %q", receipt.GasUsed)
	}
}

func TestHTTPClientRejectsBadCall(t *testing.T) {
	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: "http://127.0.0.1:1"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := client.Mint(context.Background(), Call{Contract: "0xbb"}); err == nil {
		t.Error("missing wallet should fail before any network call")
	}
	if _, err := client.Mint(context.Background(), Call{Wallet: testWallet}); err == nil {
		t.Error("missing contract should fail before any network call")
	}
}

func TestHTTPClientSurfacesGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "nonce gap detected"})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Pause(context.Background(), Call{
		Wallet:   testWallet,
		Contract: "0x00000000000000000000000000000000000000bb",
	})
	if err == nil {
		t.Fatal("expected gateway error")
	}
}

func TestHTTPClientCustomProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"txid": "0xdef456"},
		})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{
		Endpoint: srv.URL,
		Profile:  ResponseProfile{TransactionHashPath: "$.result.txid"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	receipt, err := client.Burn(context.Background(), Call{
		Wallet:   testWallet,
		Contract: "0x00000000000000000000000000000000000000bb",
	})
	if err != nil {
		t.Fatal(err)
	}
	if receipt.TransactionHash != "0xdef456" {
		t.Errorf("hash = %q", receipt.TransactionHash)
	}
}

func TestTransactionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transactions/0xabc" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"done":                true,
			"success":             true,
			"retry_after_seconds": 2.5,
		})
	}))
	defer srv.Close()

	client, err := NewHTTPClient(HTTPClientConfig{Endpoint: srv.URL}, nil)
	if err != nil {
		t.Fatal(err)
	}

	status, err := client.TransactionStatus(context.Background(), "0xabc")
	if err != nil {
		t.Fatal(err)
	}
	if !status.Done || !status.Success {
		t.Errorf("status = %+v", status)
	}
	if status.RetryAfter != 2500*time.Millisecond {
		t.Errorf("retry after = %v", status.RetryAfter)
	}

	if _, err := client.TransactionStatus(context.Background(), "  "); err == nil {
		t.Error("blank hash should be rejected")
	}
}
