package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"seolens/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository persists users and result records in Postgres. Optional
// record fields are stored as nullable columns and JSONB documents so absent
// upstream keys remain absent on read-back.
type PostgresRepository struct {
	pool *pgxpool.Pool
	cfg  PostgresConfig
}

// NewPostgresRepository opens a Postgres-backed repository and ensures the
// schema exists.
func NewPostgresRepository(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresRepository, error) {
	cfg := newPostgresConfig(dsn, opts...)
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections >= 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	repo := &PostgresRepository{pool: pool, cfg: cfg}
	if err := repo.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close releases the connection pool, bounded by the provided context.
func (r *PostgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Ping verifies the pool can reach Postgres.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return ErrStoreUnavailable
	}
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CreateUser hashes the password and inserts a new account. Username
// uniqueness is enforced by the users_username_unique constraint.
func (r *PostgresRepository) CreateUser(ctx context.Context, username, password string) (models.User, error) {
	if r.pool == nil {
		return models.User{}, ErrStoreUnavailable
	}
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

	user := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hashed,
		CreatedAt:    time.Now().UTC(),
	}
	_, err = r.pool.Exec(ctx, `
INSERT INTO users (id, username, password_hash, created_at)
VALUES ($1, $2, $3, $4)
`, user.ID, user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return models.User{}, ErrDuplicateUsername
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// AuthenticateUser verifies credentials against the stored hash.
func (r *PostgresRepository) AuthenticateUser(ctx context.Context, username, password string) (models.User, error) {
	if r.pool == nil {
		return models.User{}, ErrStoreUnavailable
	}
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}

	row := r.pool.QueryRow(ctx, `
SELECT id, username, password_hash, created_at
FROM users
WHERE username = $1
`, username)
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("query user: %w", err)
	}
	if err := verifyPassword(user.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// GetUser fetches an account by ID.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (models.User, bool, error) {
	if r.pool == nil {
		return models.User{}, false, ErrStoreUnavailable
	}
	row := r.pool.QueryRow(ctx, `
SELECT id, username, password_hash, created_at
FROM users
WHERE id = $1
`, id)
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, false, nil
		}
		return models.User{}, false, fmt.Errorf("query user: %w", err)
	}
	return user, true, nil
}

// InsertResultRecord appends a relay outcome. The write is all-or-nothing;
// there is no update path.
func (r *PostgresRepository) InsertResultRecord(ctx context.Context, record models.ResultRecord) error {
	if r.pool == nil {
		return ErrStoreUnavailable
	}
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
		record.CreatedAt = time.Now().UTC()
	}

	keywords, err := marshalOptionalJSON(record.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	rankings, err := marshalOptionalJSON(record.Rankings)
	if err != nil {
		return fmt.Errorf("encode rankings: %w", err)
	}
	analytics, err := marshalOptionalJSON(record.Analytics)
	if err != nil {
		return fmt.Errorf("encode analytics: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
INSERT INTO result_records
    (id, user_id, video_path, transcription, keywords, seo_description, youtube_rankings, youtube_analytics, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, record.ID, record.UserID, record.VideoPath, record.Transcription, keywords, record.SEODescription, rankings, analytics, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert result record: %w", err)
	}
	return nil
}

// ListResultRecords returns the user's records, newest first.
func (r *PostgresRepository) ListResultRecords(ctx context.Context, userID string) ([]models.ResultRecord, error) {
	if r.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, video_path, transcription, keywords, seo_description, youtube_rankings, youtube_analytics, created_at
FROM result_records
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("query result records: %w", err)
	}
	defer rows.Close()

	records := make([]models.ResultRecord, 0)
	for rows.Next() {
		var (
			record    models.ResultRecord
			keywords  []byte
			rankings  []byte
			analytics []byte
		)
		if err := rows.Scan(
			&record.ID, &record.UserID, &record.VideoPath, &record.Transcription,
			&keywords, &record.SEODescription, &rankings, &analytics, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result record: %w", err)
		}
		if len(keywords) > 0 {
			if err := json.Unmarshal(keywords, &record.Keywords); err != nil {
				return nil, fmt.Errorf("decode keywords: %w", err)
			}
		}
		if len(rankings) > 0 {
			if err := json.Unmarshal(rankings, &record.Rankings); err != nil {
				return nil, fmt.Errorf("decode rankings: %w", err)
			}
		}
		if len(analytics) > 0 {
			record.Analytics = &models.VideoAnalytics{}
			if err := json.Unmarshal(analytics, record.Analytics); err != nil {
				return nil, fmt.Errorf("decode analytics: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result records: %w", err)
	}
	return records, nil
}

// marshalOptionalJSON encodes a value for a JSONB column, mapping Go nil to
// SQL NULL so absent fields stay absent.
func marshalOptionalJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []string:
		if v == nil {
			return nil, nil
		}
	case []models.RankingEntry:
		if v == nil {
			return nil, nil
		}
	case *models.VideoAnalytics:
		if v == nil {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	return json.Marshal(value)
}

var _ Repository = (*PostgresRepository)(nil)
