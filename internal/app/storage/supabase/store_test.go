package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
	"github.com/Issuance-Network/token_layer/supabase/client"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := client.New(client.Config{URL: srv.URL, APIKey: "test-key"})
	require.NoError(t, err)
	return New(c)
}

func TestGetTokenMapsMissingRowToNotFound(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/tokens", r.URL.Path)
		assert.Equal(t, "eq.missing", r.URL.Query().Get("id"))
		w.WriteHeader(http.StatusNotAcceptable)
	})

	_, err := store.GetToken(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateOperationPostsSubmittedRow(t *testing.T) {
	var captured map[string]interface{}
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/token_operations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("[]"))
	})

	rec, err := store.CreateOperation(context.Background(), operation.Record{
		ProjectID:       "project-1",
		TokenID:         "tok-1",
		Operation:       operation.TypeMint,
		Target:          "0x00000000000000000000000000000000000000aa",
		Amount:          "100",
		TransactionHash: "0xabc",
		Status:          operation.StatusSubmitted,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "mint", captured["operation"])
	assert.Equal(t, "submitted", captured["status"])
	assert.Equal(t, "0xabc", captured["transaction_hash"])
}

func TestPropertiesUseLegacyStandardTable(t *testing.T) {
	tok := tokenRow{
		ID:               "tok-1",
		ProjectID:        "project-1",
		Standard:         "erc1400",
		DeploymentStatus: "deployed",
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/v1/tokens":
			_ = json.NewEncoder(w).Encode(tok)
		case "/rest/v1/token_erc1400_properties":
			_ = json.NewEncoder(w).Encode(propertiesRow{
				ID:          "prop-1",
				TokenID:     "tok-1",
				RecordIndex: 0,
				Fields:      map[string]interface{}{"is_issuable": true},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	rec, err := store.GetProperties(context.Background(), "tok-1", 0)
	require.NoError(t, err)
	assert.Equal(t, token.StandardERC1400, rec.Standard)
	assert.Equal(t, true, rec.Fields["is_issuable"])
}

func TestUpdateOperationStatusNotFound(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		_, _ = w.Write([]byte("[]"))
	})

	_, err := store.UpdateOperationStatus(context.Background(), "op-1", operation.StatusConfirmed, "")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
