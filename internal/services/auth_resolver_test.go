package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/provider"
)

func TestAuthResolver_SharedEntitiesAlwaysUseServiceAccount(t *testing.T) {
	api := &fakeAPI{authFn: func(string) (bool, error) { return true, nil }}
	resolver := NewAuthResolver(api, newMemAuthCache(), slog.Default())

	// Even a fully authorized caller never writes shared calendars under
	// their own grant.
	assert.Equal(t, provider.AuthServiceAccount,
		resolver.Resolve(context.Background(), models.EntityWorkOrder, "user-token"))
	assert.Equal(t, provider.AuthServiceAccount,
		resolver.Resolve(context.Background(), models.EntityProject, "user-token"))
	assert.Zero(t, api.authCalls)
}

func TestAuthResolver_AdHocUsesOAuthWhenAuthorized(t *testing.T) {
	api := &fakeAPI{authFn: func(string) (bool, error) { return true, nil }}
	resolver := NewAuthResolver(api, newMemAuthCache(), slog.Default())

	strategy := resolver.Resolve(context.Background(), models.EntityAdHoc, "user-token")

	assert.Equal(t, provider.AuthOAuth, strategy)
	assert.Equal(t, 1, api.authCalls)
}

func TestAuthResolver_FailsClosed(t *testing.T) {
	t.Run("probe error", func(t *testing.T) {
		api := &fakeAPI{authFn: func(string) (bool, error) {
			return false, &provider.RequestError{StatusCode: 500, Message: "upstream error"}
		}}
		resolver := NewAuthResolver(api, newMemAuthCache(), slog.Default())

		assert.Equal(t, provider.AuthServiceAccount,
			resolver.Resolve(context.Background(), models.EntityAdHoc, "user-token"))
	})

	t.Run("no grant", func(t *testing.T) {
		api := &fakeAPI{authFn: func(string) (bool, error) { return false, nil }}
		resolver := NewAuthResolver(api, newMemAuthCache(), slog.Default())

		assert.Equal(t, provider.AuthServiceAccount,
			resolver.Resolve(context.Background(), models.EntityAdHoc, "user-token"))
	})

	t.Run("missing token skips the probe", func(t *testing.T) {
		api := &fakeAPI{}
		resolver := NewAuthResolver(api, newMemAuthCache(), slog.Default())

		assert.Equal(t, provider.AuthServiceAccount,
			resolver.Resolve(context.Background(), models.EntityAdHoc, ""))
		assert.Zero(t, api.authCalls)
	})
}

func TestAuthResolver_CachesDefinitiveAnswers(t *testing.T) {
	api := &fakeAPI{authFn: func(string) (bool, error) { return true, nil }}
	cache := newMemAuthCache()
	resolver := NewAuthResolver(api, cache, slog.Default())

	assert.True(t, resolver.IsAuthorized(context.Background(), "user-token"))
	assert.True(t, resolver.IsAuthorized(context.Background(), "user-token"))

	assert.Equal(t, 1, api.authCalls)
	assert.Equal(t, 1, cache.sets)
}

func TestAuthResolver_ProbeErrorsAreNotCached(t *testing.T) {
	api := &fakeAPI{authFn: func(string) (bool, error) {
		return false, &provider.RequestError{StatusCode: 502, Message: "bad gateway"}
	}}
	cache := newMemAuthCache()
	resolver := NewAuthResolver(api, cache, slog.Default())

	assert.False(t, resolver.IsAuthorized(context.Background(), "user-token"))
	assert.False(t, resolver.IsAuthorized(context.Background(), "user-token"))

	// A transient failure is retried next time instead of pinning the
	// caller to unauthorized for the cache TTL.
	assert.Equal(t, 2, api.authCalls)
	assert.Zero(t, cache.sets)
}

func TestAuthResolver_RawTokensNeverReachTheCache(t *testing.T) {
	api := &fakeAPI{authFn: func(string) (bool, error) { return true, nil }}
	cache := newMemAuthCache()
	resolver := NewAuthResolver(api, cache, slog.Default())

	resolver.IsAuthorized(context.Background(), "secret-bearer-token")

	for key := range cache.values {
		assert.NotContains(t, key, "secret-bearer-token")
	}
}
