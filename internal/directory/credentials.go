package directory

import (
	"context"
	"time"

	seatpooldomain "github.com/seatwise/seatwise/internal/seatpool/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// accessTokenTTL is how long a stored access token is trusted before a
// proactive refresh. Remote tokens live longer, but refreshing early avoids
// racing expiry mid-saga.
const accessTokenTTL = 8 * time.Hour

type credentials struct {
	client Client
	log    *zap.Logger
}

func NewCredentials(client Client, log *zap.Logger) Credentials {
	return &credentials{client: client, log: log.Named("directory.credentials")}
}

// EnsureAccessToken returns a usable token for the pool, refreshing with the
// refresh token first and falling back to the session token. Rotated tokens
// are persisted before returning so a later attempt does not redo the work.
// An empty token with nil error means both refresh paths are exhausted.
func (c *credentials) EnsureAccessToken(ctx context.Context, db *gorm.DB, pool *seatpooldomain.SeatPool) (string, error) {
	if pool.AccessToken != "" && pool.LastSync != nil && time.Since(*pool.LastSync) < accessTokenTTL {
		return pool.AccessToken, nil
	}

	if pool.RefreshToken != "" {
		pair, err := c.client.RefreshWithRefreshToken(ctx, pool.RefreshToken, pool.ClientID)
		if err == nil {
			return c.persist(ctx, db, pool, pair)
		}
		if kind := KindOf(err); kind == KindServer || kind == KindNetwork {
			return "", err
		}
		c.log.Warn("refresh token rejected, falling back to session token",
			zap.Int64("pool_id", int64(pool.ID)),
			zap.Error(err),
		)
	}

	if pool.SessionToken != "" {
		pair, err := c.client.RefreshWithSessionToken(ctx, pool.SessionToken, pool.RemoteAccountID)
		if err == nil {
			return c.persist(ctx, db, pool, pair)
		}
		if kind := KindOf(err); kind == KindServer || kind == KindNetwork {
			return "", err
		}
		c.log.Warn("session token rejected",
			zap.Int64("pool_id", int64(pool.ID)),
			zap.Error(err),
		)
	}

	// Stored token might still work even when we cannot prove freshness.
	if pool.AccessToken != "" {
		return pool.AccessToken, nil
	}
	return "", nil
}

func (c *credentials) persist(ctx context.Context, db *gorm.DB, pool *seatpooldomain.SeatPool, pair TokenPair) (string, error) {
	now := time.Now().UTC()
	pool.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		pool.RefreshToken = pair.RefreshToken
	}
	if pair.SessionToken != "" {
		pool.SessionToken = pair.SessionToken
	}
	pool.LastSync = &now

	updates := map[string]any{
		"access_token":  pool.AccessToken,
		"refresh_token": pool.RefreshToken,
		"session_token": pool.SessionToken,
		"last_sync":     pool.LastSync,
		"updated_at":    now,
	}
	if err := db.WithContext(ctx).
		Table("seat_pools").
		Where("id = ?", pool.ID).
		Updates(updates).Error; err != nil {
		// The token itself is good; failing the call over a bookkeeping
		// write would be worse than retrying the persist next time.
		c.log.Error("failed to persist rotated tokens",
			zap.Int64("pool_id", int64(pool.ID)),
			zap.Error(err),
		)
	}
	return pool.AccessToken, nil
}
