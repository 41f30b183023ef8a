package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"seolens/internal/models"
)

func newTestStore(t *testing.T) *JSONRepository {
	t.Helper()
	store, err := NewJSONRepository(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewJSONRepository: %v", err)
	}
	return store
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "alice", "sup3rsecret")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected generated user ID")
	}
	if user.PasswordHash == "sup3rsecret" {
		t.Fatal("password must not be stored in plaintext")
	}

	authed, err := store.AuthenticateUser(ctx, "alice", "sup3rsecret")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, authed.ID)
	}
}

func TestAuthenticateUserFailureModes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, "alice", "sup3rsecret"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if _, err := store.AuthenticateUser(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := store.AuthenticateUser(ctx, "nobody", "sup3rsecret"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.AuthenticateUser(ctx, "alice", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, "alice", "password-one"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := store.CreateUser(ctx, "alice", "password-two"); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestCreateUserValidatesInput(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, "", "password"); err == nil {
		t.Fatal("expected empty username to be rejected")
	}
	if _, err := store.CreateUser(ctx, "alice", ""); err == nil {
		t.Fatal("expected empty password to be rejected")
	}
}

func TestInsertResultRecordRequiresPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.InsertResultRecord(ctx, models.ResultRecord{UserID: "user-1"})
	if err == nil {
		t.Fatal("expected record without payload to be rejected")
	}
	err = store.InsertResultRecord(ctx, models.ResultRecord{Analytics: &models.VideoAnalytics{}})
	if err == nil {
		t.Fatal("expected record without user to be rejected")
	}
}

func TestListResultRecordsNewestFirstAndScopedToUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		transcript := fmt.Sprintf("transcript %d", i)
		err := store.InsertResultRecord(ctx, models.ResultRecord{
			ID:            fmt.Sprintf("rec-%d", i),
			UserID:        "user-1",
			Transcription: &transcript,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertResultRecord: %v", err)
		}
	}
	other := "other transcript"
	if err := store.InsertResultRecord(ctx, models.ResultRecord{
		ID:            "rec-other",
		UserID:        "user-2",
		Transcription: &other,
		CreatedAt:     base,
	}); err != nil {
		t.Fatalf("InsertResultRecord: %v", err)
	}

	records, err := store.ListResultRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListResultRecords: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].ID != "rec-2" || records[2].ID != "rec-0" {
		t.Fatalf("expected newest-first ordering, got %s..%s", records[0].ID, records[2].ID)
	}
}

func TestResultRecordRoundTripPreservesAbsentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewJSONRepository(path)
	if err != nil {
		t.Fatalf("NewJSONRepository: %v", err)
	}
	ctx := context.Background()

	title := "T"
	views := models.MetricFromInt(10)
	record := models.ResultRecord{
		ID:     "rec-1",
		UserID: "user-1",
		Analytics: &models.VideoAnalytics{
			Title: &title,
			Views: &views,
		},
		CreatedAt: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := store.InsertResultRecord(ctx, record); err != nil {
		t.Fatalf("InsertResultRecord: %v", err)
	}

	// A fresh repository instance reads the persisted file from scratch.
	reopened, err := NewJSONRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	records, err := reopened.ListResultRecords(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListResultRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.Transcription != nil || got.Keywords != nil || got.Rankings != nil || got.VideoPath != nil {
		t.Fatalf("expected absent fields to stay absent, got %+v", got)
	}
	if got.Analytics == nil || got.Analytics.Title == nil || *got.Analytics.Title != "T" {
		t.Fatalf("expected analytics title T, got %+v", got.Analytics)
	}
	if got.Analytics.Views == nil || got.Analytics.Views.String() != "10" {
		t.Fatalf("expected views 10, got %+v", got.Analytics.Views)
	}
	if got.Analytics.Likes != nil || got.Analytics.Comments != nil || got.Analytics.Published != nil {
		t.Fatalf("expected absent analytics fields to stay absent, got %+v", got.Analytics)
	}
}

func TestInsertResultRecordSurfacesPersistFailures(t *testing.T) {
	store := newTestStore(t)
	store.persistOverride = func(dataset) error {
		return fmt.Errorf("disk full")
	}
	transcript := "t"
	err := store.InsertResultRecord(context.Background(), models.ResultRecord{
		UserID:        "user-1",
		Transcription: &transcript,
	})
	if err == nil {
		t.Fatal("expected persist failure to surface")
	}

	// The in-memory view must not contain the half-written record.
	store.persistOverride = nil
	records, err := store.ListResultRecords(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListResultRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records after failed persist, got %d", len(records))
	}
}
