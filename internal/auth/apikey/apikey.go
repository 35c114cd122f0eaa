// Package apikey guards the index administration endpoints. Raw keys are
// generated with crypto/rand and only their SHA-256 digest is stored; a
// presented key is valid when its digest names an active, unexpired entry.
// Keys come either from configuration (StaticStore) or from the api_keys
// table in PostgreSQL (PostgresStore).
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/hybrid-search/pkg/postgres"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo holds metadata about a stored key. The raw key is never kept.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store looks keys up by digest. A missing key yields ErrInvalidKey.
type Store interface {
	Lookup(ctx context.Context, hash string) (*KeyInfo, error)
}

// Validator checks presented keys against a Store.
type Validator struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewValidator creates a Validator over store.
func NewValidator(store Store) *Validator {
	return &Validator{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "apikey-validator"),
	}
}

// Validate returns the key's metadata, or ErrInvalidKey / ErrExpiredKey.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	info, err := v.store.Lookup(ctx, HashKey(rawKey))
	if err != nil {
		return nil, err
	}
	if !info.IsActive {
		return nil, ErrInvalidKey
	}
	if info.ExpiresAt != nil && info.ExpiresAt.Before(v.now()) {
		v.logger.Debug("expired key presented", "name", info.Name)
		return nil, ErrExpiredKey
	}
	return info, nil
}

// StaticStore serves keys listed in configuration. They never expire.
type StaticStore struct {
	keys map[string]*KeyInfo
}

// NewStaticStore hashes every raw key; blank entries are ignored.
func NewStaticStore(rawKeys []string) *StaticStore {
	s := &StaticStore{keys: make(map[string]*KeyInfo, len(rawKeys))}
	for i, raw := range rawKeys {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		hash := HashKey(raw)
		s.keys[hash] = &KeyInfo{
			ID:       hash[:12],
			Name:     fmt.Sprintf("config-%d", i),
			IsActive: true,
		}
	}
	return s
}

func (s *StaticStore) Lookup(ctx context.Context, hash string) (*KeyInfo, error) {
	info, ok := s.keys[hash]
	if !ok {
		return nil, ErrInvalidKey
	}
	return info, nil
}

const schema = `CREATE TABLE IF NOT EXISTS api_keys (
	id         BIGSERIAL PRIMARY KEY,
	key_hash   TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMPTZ
)`

// PostgresStore keeps keys in the api_keys table.
type PostgresStore struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewPostgresStore creates the api_keys table when absent.
func NewPostgresStore(ctx context.Context, db *postgres.Client) (*PostgresStore, error) {
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating api_keys: %w", err)
	}
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "apikey-store"),
	}, nil
}

func (s *PostgresStore) Lookup(ctx context.Context, hash string) (*KeyInfo, error) {
	var info KeyInfo
	var expiresAt sql.NullTime
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, is_active, created_at, expires_at
		 FROM api_keys
		 WHERE key_hash = $1 AND is_active = true`,
		hash,
	).Scan(&info.ID, &info.Name, &info.IsActive, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if expiresAt.Valid {
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

// CreateKey generates a key, stores its digest and returns the raw key.
// The raw key cannot be recovered afterwards.
func (s *PostgresStore) CreateKey(ctx context.Context, name string, expiresAt *time.Time) (string, error) {
	rawKey, err := GenerateKey()
	if err != nil {
		return "", err
	}
	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (key_hash, name, expires_at) VALUES ($1, $2, $3)`,
		HashKey(rawKey), name, expiry,
	)
	if err != nil {
		return "", fmt.Errorf("creating api key: %w", err)
	}
	s.logger.Info("api key created", "name", name)
	return rawKey, nil
}

// RevokeKey deactivates a key so it can no longer be used.
func (s *PostgresStore) RevokeKey(ctx context.Context, rawKey string) error {
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrInvalidKey
	}
	s.logger.Info("api key revoked")
	return nil
}

// ListKeys returns active keys, newest first.
func (s *PostgresStore) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, is_active, created_at, expires_at FROM api_keys WHERE is_active = true ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var k KeyInfo
		var expiresAt sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.IsActive, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// HashKey returns the SHA-256 hex digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateKey returns 32 random bytes, hex encoded.
func GenerateKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
