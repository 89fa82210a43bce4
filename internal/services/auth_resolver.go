package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/provider"
	"github.com/buildrite/crewcal/internal/repositories"
)

// AuthResolver decides which identity a provider call runs under. Shared
// organizational calendars (work orders, projects) are always written as the
// service account so event ownership does not depend on which user clicked;
// only personal ad-hoc events use the caller's own grant.
type AuthResolver struct {
	api    provider.API
	cache  repositories.AuthStatusCache
	logger *slog.Logger
}

func NewAuthResolver(api provider.API, cache repositories.AuthStatusCache, logger *slog.Logger) *AuthResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthResolver{api: api, cache: cache, logger: logger}
}

// Resolve returns the auth strategy for one operation. Never fails: an
// unanswerable authorization question resolves to the service account.
func (r *AuthResolver) Resolve(ctx context.Context, entityType models.EntityType, userToken string) provider.AuthStrategy {
	if entityType != models.EntityAdHoc {
		return provider.AuthServiceAccount
	}
	if r.IsAuthorized(ctx, userToken) {
		return provider.AuthOAuth
	}
	return provider.AuthServiceAccount
}

// IsAuthorized probes the gateway for the caller's grant, fails closed on
// any error, and caches definitive answers briefly.
func (r *AuthResolver) IsAuthorized(ctx context.Context, userToken string) bool {
	if userToken == "" {
		return false
	}

	key := tokenCacheKey(userToken)
	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, key); err == nil && cached != nil {
			return *cached
		}
	}

	authorized, err := r.api.AuthStatus(ctx, userToken)
	if err != nil {
		r.logger.Warn("auth status probe failed, treating as unauthorized", "error", err)
		return false
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, authorized); err != nil {
			r.logger.Warn("failed to cache auth status", "error", err)
		}
	}
	return authorized
}

// tokenCacheKey hashes the bearer so raw tokens never land in the cache.
func tokenCacheKey(userToken string) string {
	sum := sha256.Sum256([]byte(userToken))
	return hex.EncodeToString(sum[:])
}
