package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/Issuance-Network/token_layer/internal/app/domain/module"
	"github.com/Issuance-Network/token_layer/internal/app/domain/operation"
	"github.com/Issuance-Network/token_layer/internal/app/domain/token"
	"github.com/Issuance-Network/token_layer/internal/app/storage"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	store := New(db)

	ctx := context.Background()
	tok, err := store.CreateToken(ctx, token.Token{
		ProjectID:        "project-1",
		Standard:         token.StandardERC20,
		Name:             "Test Token",
		Symbol:           "TST",
		Decimals:         18,
		TotalSupply:      "0",
		MaxSupply:        "0",
		DeploymentStatus: token.DeploymentDraft,
	})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	if _, err := store.UpsertProperties(ctx, token.PropertiesRecord{
		TokenID:  tok.ID,
		Standard: tok.Standard,
		Fields:   map[string]interface{}{"initial_supply": "1000"},
	}); err != nil {
		t.Fatalf("upsert properties: %v", err)
	}

	rec := operation.Record{
		ProjectID: tok.ProjectID,
		TokenID:   tok.ID,
		Operation: operation.TypeMint,
		Initiator: "0x00000000000000000000000000000000000000aa",
		Target:    "0x00000000000000000000000000000000000000bb",
		Amount:    "100",
		Status:    operation.StatusSubmitted,
	}
	if _, err := store.CreateOperation(ctx, rec); err != nil {
		t.Fatalf("create operation: %v", err)
	}
}

func TestCreateTokenMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO tokens").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "tokens_pkey"})

	store := New(db)
	_, err = store.CreateToken(context.Background(), token.Token{ID: "tok-1", ProjectID: "p1"})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("err = %v, want ErrDuplicateKey", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetTokenMapsNoRowsToNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM tokens").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	store := New(db)
	_, err = store.GetToken(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateOperationStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE token_operations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := New(db)
	_, err = store.UpdateOperationStatus(context.Background(), "op-1", operation.StatusConfirmed, "")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReplaceActiveAttachmentRunsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE token_modules").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO token_modules").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := New(db)
	att, err := store.ReplaceActiveAttachment(context.Background(), module.Attachment{
		ProjectID:     "p1",
		TokenID:       "tok-1",
		ModuleType:    "compliance",
		ModuleAddress: "0x00000000000000000000000000000000000000cc",
	})
	if err != nil {
		t.Fatalf("replace active attachment: %v", err)
	}
	if !att.Active {
		t.Fatal("replacement attachment not marked active")
	}
	if att.ID == "" {
		t.Fatal("replacement attachment missing id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceActiveAttachmentRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE token_modules").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO token_modules").
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	store := New(db)
	if _, err := store.ReplaceActiveAttachment(context.Background(), module.Attachment{
		TokenID:    "tok-1",
		ModuleType: "compliance",
	}); err == nil {
		t.Fatal("expected insert failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
