package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestResultFailures(t *testing.T) {
	r := Result{
		Policies: []CheckResult{
			{Name: "kyc", Passed: true},
			{Name: "sanctions", Passed: false},
		},
		Rules: []CheckResult{
			{Name: "supply-cap", Passed: false},
		},
	}
	if got, want := r.Failures(), []string{"sanctions", "supply-cap"}; !reflect.DeepEqual(got, want) {
		t.Errorf("failures = %v, want %v", got, want)
	}
	if (Result{Valid: true}).Failures() != nil {
		t.Error("clean result should have no failures")
	}
}

func TestStaticValidatorApprovesByDefault(t *testing.T) {
	v := NewStaticValidator()

	result, err := v.Validate(context.Background(), Descriptor{
		To:       "0xcc",
		Metadata: Metadata{Operation: "mint"},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Error("default validator should approve")
	}
	if result.GasEstimate != "21000" {
		t.Errorf("gas = %q", result.GasEstimate)
	}
	if v.Calls() != 1 {
		t.Errorf("calls = %d", v.Calls())
	}
}

func TestStaticValidatorDenyTables(t *testing.T) {
	v := NewStaticValidator().
		DenyOperation("burn", "burns frozen during audit").
		DenyAddress("0xBAD", "sanctioned")

	result, err := v.Validate(context.Background(), Descriptor{
		Metadata: Metadata{Operation: "burn"},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("denied operation should fail")
	}
	if got := result.Failures(); len(got) != 1 || got[0] != "operation-allowlist" {
		t.Errorf("failures = %v", got)
	}

	// address matching is case-insensitive and covers both sides
	for _, desc := range []Descriptor{
		{To: "0xbad", Metadata: Metadata{Operation: "mint"}},
		{From: "0xBAD", Metadata: Metadata{Operation: "mint"}},
	} {
		result, err := v.Validate(context.Background(), desc, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if result.Valid {
			t.Errorf("descriptor %+v should be denied", desc)
		}
	}

	clean, err := v.Validate(context.Background(), Descriptor{
		To:       "0xcc",
		Metadata: Metadata{Operation: "mint"},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !clean.Valid {
		t.Error("untouched descriptor should pass")
	}
}

func TestHTTPValidatorRoundTrip(t *testing.T) {
	var gotAuth string
	var gotReq struct {
		Transaction Descriptor `json:"transaction"`
		Options     Options    `json:"options"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Result{
			Valid:       false,
			Rules:       []CheckResult{{Name: "transfer-window", Passed: false, Reason: "outside window"}},
			GasEstimate: "30000",
		})
	}))
	defer srv.Close()

	v, err := NewHTTPValidator(nil, srv.URL, "engine-key", nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := v.Validate(context.Background(), Descriptor{
		To:       "0xcc",
		Metadata: Metadata{Operation: "mint", TokenID: "tok-1"},
	}, Options{Urgency: UrgencyHigh})
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer engine-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Transaction.Metadata.TokenID != "tok-1" {
		t.Errorf("request descriptor = %+v", gotReq.Transaction)
	}
	if gotReq.Options.Urgency != UrgencyHigh {
		t.Errorf("request options = %+v", gotReq.Options)
	}
	if result.Valid {
		t.Error("verdict should be carried through")
	}
	if result.GasEstimate != "30000" {
		t.Errorf("gas = %q", result.GasEstimate)
	}
}

func TestHTTPValidatorSurfacesEngineFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	v, err := NewHTTPValidator(nil, srv.URL, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Validate(context.Background(), Descriptor{}, Options{}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestNewHTTPValidatorRejectsBadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "   ", "/relative/path"} {
		if _, err := NewHTTPValidator(nil, endpoint, "", nil); err == nil {
			t.Errorf("endpoint %q should be rejected", endpoint)
		}
	}
}
