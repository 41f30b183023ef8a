package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"seolens/internal/models"
)

type dataset struct {
	Users         map[string]models.User         `json:"users"`
	ResultRecords map[string]models.ResultRecord `json:"resultRecords"`
}

func newDataset() dataset {
	return dataset{
		Users:         make(map[string]models.User),
		ResultRecords: make(map[string]models.ResultRecord),
	}
}

// JSONRepository is a mutex-guarded in-memory datastore persisted to a single
// JSON file. It backs local development and the handler test suites.
type JSONRepository struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
	now             func() time.Time
}

// NewJSONRepository opens the JSON-backed datastore, creating the file lazily
// on first write.
func NewJSONRepository(path string) (*JSONRepository, error) {
	store := &JSONRepository{
		filePath: path,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *JSONRepository) load() error {
	s.data = newDataset()
	if s.filePath == "" {
		return nil
	}
	payload, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read store file: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, &s.data); err != nil {
		return fmt.Errorf("decode store file: %w", err)
	}
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.ResultRecords == nil {
		s.data.ResultRecords = make(map[string]models.ResultRecord)
	}
	return nil
}

func (s *JSONRepository) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		return s.persistOverride(data)
	}
	if s.filePath == "" {
		return nil
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	dst := newDataset()
	for id, user := range src.Users {
		dst.Users[id] = user
	}
	for id, record := range src.ResultRecords {
		dst.ResultRecords[id] = record
	}
	return dst
}

// Ping reports whether the datastore is usable. The JSON store is always
// available once constructed.
func (s *JSONRepository) Ping(ctx context.Context) error {
	if s == nil {
		return ErrStoreUnavailable
	}
	return ctx.Err()
}

// CreateUser hashes the password and stores a new account, enforcing username
// uniqueness.
func (s *JSONRepository) CreateUser(ctx context.Context, username, password string) (models.User, error) {
	if username == "" {
		return models.User{}, fmt.Errorf("username is required")
	}
	if password == "" {
		return models.User{}, fmt.Errorf("password is required")
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data.Users {
		if existing.Username == username {
			return models.User{}, ErrDuplicateUsername
		}
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hashed,
		CreatedAt:    s.now(),
	}

	updated := cloneDataset(s.data)
	updated.Users[user.ID] = user
	if err := s.persistDataset(updated); err != nil {
		return models.User{}, err
	}
	s.data = updated
	return user, nil
}

// AuthenticateUser verifies credentials and returns the matching user.
// Lookup and hash failures surface as distinct errors for server-side logs;
// HTTP handlers collapse both before responding.
func (s *JSONRepository) AuthenticateUser(ctx context.Context, username, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}

	s.mu.RLock()
	var user models.User
	found := false
	for _, existing := range s.data.Users {
		if existing.Username == username {
			user = existing
			found = true
			break
		}
	}
	s.mu.RUnlock()

	if !found {
		return models.User{}, ErrUserNotFound
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// GetUser fetches an account by ID.
func (s *JSONRepository) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data.Users[id]
	return user, ok, nil
}

// InsertResultRecord durably appends a relay outcome. Records must carry at
// least one payload; empty responses are never persisted.
func (s *JSONRepository) InsertResultRecord(ctx context.Context, record models.ResultRecord) error {
	if record.UserID == "" {
		return fmt.Errorf("result record requires a user id")
	}
	if !record.HasPayload() {
		return fmt.Errorf("result record requires a transcript or analytics payload")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := cloneDataset(s.data)
	updated.ResultRecords[record.ID] = record
	if err := s.persistDataset(updated); err != nil {
		return err
	}
	s.data = updated
	return nil
}

// ListResultRecords returns the user's records, newest first.
func (s *JSONRepository) ListResultRecords(ctx context.Context, userID string) ([]models.ResultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]models.ResultRecord, 0)
	for _, record := range s.data.ResultRecords {
		if record.UserID == userID {
			records = append(records, record)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

var _ Repository = (*JSONRepository)(nil)
