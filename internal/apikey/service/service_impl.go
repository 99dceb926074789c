package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/htmlpdf/internal/apikey/domain"
	"github.com/smallbiznis/htmlpdf/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeySecretBytes = 32
	displayPrefixLen  = len(apikeydomain.KeyPrefix) + 8
	maxNameLength     = 100
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  apikeydomain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, userID string) ([]apikeydomain.Response, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apikeydomain.ErrInvalidUser
	}

	items, err := s.repo.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Create(ctx context.Context, userID string, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apikeydomain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = apikeydomain.DefaultKeyName
	}
	if len(name) > maxNameLength {
		return nil, apikeydomain.ErrInvalidName
	}

	plain, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	key := &apikeydomain.APIKey{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Name:      name,
		KeyHash:   apikeydomain.HashAPIKey(plain),
		KeyPrefix: plain[:displayPrefixLen],
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.log.Info("api key created", zap.String("user_id", userID), zap.String("api_key_id", key.ID.String()))

	return &apikeydomain.SecretResponse{
		ID:        key.ID.String(),
		Name:      key.Name,
		Key:       plain,
		KeyPrefix: key.KeyPrefix,
		CreatedAt: key.CreatedAt,
	}, nil
}

func (s *Service) Revoke(ctx context.Context, userID string, keyID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apikeydomain.ErrInvalidUser
	}

	id, err := snowflake.ParseString(strings.TrimSpace(keyID))
	if err != nil || id == 0 {
		return apikeydomain.ErrInvalidKeyID
	}

	affected, err := s.repo.Deactivate(ctx, s.db, userID, id, s.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return apikeydomain.ErrNotFound
	}

	s.log.Info("api key revoked", zap.String("user_id", userID), zap.String("api_key_id", id.String()))
	return nil
}

// Lookup resolves a presented token. Unknown tokens return ErrNotFound,
// revoked ones ErrInactive; both map to 401 upstream.
func (s *Service) Lookup(ctx context.Context, token string) (*apikeydomain.Identity, error) {
	token = strings.TrimSpace(token)
	if !apikeydomain.WellFormed(token) {
		return nil, apikeydomain.ErrNotFound
	}

	hash := apikeydomain.HashAPIKey(token)
	key, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, apikeydomain.ErrNotFound
	}

	identity := &apikeydomain.Identity{KeyID: key.ID, UserID: key.UserID, Active: key.IsActive}
	if !key.IsActive {
		return identity, apikeydomain.ErrInactive
	}
	return identity, nil
}

// ResolveKeyID returns the id of the key behind token, active or not, or nil.
func (s *Service) ResolveKeyID(ctx context.Context, token string) (*snowflake.ID, error) {
	identity, err := s.Lookup(ctx, token)
	if errors.Is(err, apikeydomain.ErrNotFound) {
		return nil, nil
	}
	if identity == nil {
		return nil, err
	}
	id := identity.KeyID
	return &id, nil
}

func (s *Service) TouchLastUsed(ctx context.Context, keyID snowflake.ID, now time.Time) error {
	return s.repo.TouchLastUsed(ctx, s.db, keyID, now)
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		ID:         key.ID.String(),
		Name:       key.Name,
		KeyPrefix:  key.KeyPrefix,
		IsActive:   key.IsActive,
		CreatedAt:  key.CreatedAt,
		LastUsedAt: key.LastUsedAt,
	}
}

func generateAPIKey() (string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return apikeydomain.KeyPrefix + hex.EncodeToString(secret), nil
}
