package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/fordpass/internal/api/fordpass"
)

// TokenRepository 基于 PostgreSQL 的令牌存储，实现 fordpass.TokenStore
type TokenRepository struct {
	db       *DB
	location string
}

// NewTokenRepository 创建令牌仓库，location 为记录键
func NewTokenRepository(db *DB, location string) *TokenRepository {
	return &TokenRepository{db: db, location: location}
}

// Load 读取令牌
func (r *TokenRepository) Load(ctx context.Context) (*fordpass.Token, error) {
	query := `
		SELECT access_token, refresh_token, expires_in, expiry_date
		FROM fordpass_tokens WHERE location = $1
	`
	token := &fordpass.Token{}
	err := r.db.Pool.QueryRow(ctx, query, r.location).Scan(
		&token.AccessToken,
		&token.RefreshToken,
		&token.ExpiresIn,
		&token.ExpiryDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fordpass.ErrTokenNotFound
		}
		return nil, fmt.Errorf("query token: %w", err)
	}

	return token, nil
}

// Save 覆盖保存令牌
func (r *TokenRepository) Save(ctx context.Context, token *fordpass.Token) error {
	query := `
		INSERT INTO fordpass_tokens (location, access_token, refresh_token, expires_in, expiry_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (location) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_in = EXCLUDED.expires_in,
			expiry_date = EXCLUDED.expiry_date,
			updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(ctx, query,
		r.location,
		token.AccessToken,
		token.RefreshToken,
		token.ExpiresIn,
		token.ExpiryDate,
	)
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

// Clear 删除令牌
func (r *TokenRepository) Clear(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM fordpass_tokens WHERE location = $1`, r.location); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

var _ fordpass.TokenStore = (*TokenRepository)(nil)
