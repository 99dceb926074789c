package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	KeyPrefix      = "pdf_"
	DefaultKeyName = "Default API Key"
)

// Service is the owner-facing key management surface.
type Service interface {
	List(ctx context.Context, userID string) ([]Response, error)
	Create(ctx context.Context, userID string, req CreateRequest) (*SecretResponse, error)
	Revoke(ctx context.Context, userID string, keyID string) error
}

// KeyStore is what the render pipeline needs from keys.
type KeyStore interface {
	Lookup(ctx context.Context, token string) (*Identity, error)
	ResolveKeyID(ctx context.Context, token string) (*snowflake.ID, error)
	TouchLastUsed(ctx context.Context, keyID snowflake.ID, now time.Time) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByHash(ctx context.Context, db *gorm.DB, hash string) (*APIKey, error)
	FindByID(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID) (*APIKey, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]APIKey, error)
	Deactivate(ctx context.Context, db *gorm.DB, userID string, id snowflake.ID, now time.Time) (int64, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
}

// Identity is the resolved owner of a presented token.
type Identity struct {
	KeyID  snowflake.ID
	UserID string
	Active bool
}

type CreateRequest struct {
	Name string `json:"name"`
}

type Response struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	KeyPrefix  string     `json:"key_prefix"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// SecretResponse is returned once, at creation. The plaintext key is not stored.
type SecretResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"key_prefix"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidKeyID = errors.New("invalid_key_id")
	ErrNotFound     = errors.New("not_found")
	ErrInactive     = errors.New("inactive_key")
)
