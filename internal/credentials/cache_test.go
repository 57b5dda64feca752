package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"whats-bot/internal/domain"
)

type countingSource struct {
	creds map[string]domain.Credential
	err   error
	calls int
}

func (s *countingSource) Lookup(_ context.Context, accountID string) (domain.Credential, error) {
	s.calls++
	if s.err != nil {
		return domain.Credential{}, s.err
	}
	return s.creds[accountID], nil
}

func TestCache_SecondLookupHitsCache(t *testing.T) {
	src := &countingSource{creds: map[string]domain.Credential{"111": {Token: "tok-1"}}}
	cache, err := NewCache(src, 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		cred, err := cache.Lookup(context.Background(), "111")
		require.NoError(t, err)
		require.Equal(t, "tok-1", cred.Token)
	}
	require.Equal(t, 1, src.calls)
}

func TestCache_SeparateAccountsCachedSeparately(t *testing.T) {
	src := &countingSource{creds: map[string]domain.Credential{
		"111": {Token: "tok-1"},
		"222": {Token: "tok-2"},
	}}
	cache, err := NewCache(src, 0)
	require.NoError(t, err)

	c1, err := cache.Lookup(context.Background(), "111")
	require.NoError(t, err)
	c2, err := cache.Lookup(context.Background(), "222")
	require.NoError(t, err)
	require.Equal(t, "tok-1", c1.Token)
	require.Equal(t, "tok-2", c2.Token)
	require.Equal(t, 2, src.calls)
}

func TestCache_TTLExpiryRefetches(t *testing.T) {
	src := &countingSource{creds: map[string]domain.Credential{"111": {Token: "tok-1"}}}
	cache, err := NewCache(src, time.Minute)
	require.NoError(t, err)

	current := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return current }

	_, err = cache.Lookup(context.Background(), "111")
	require.NoError(t, err)
	_, err = cache.Lookup(context.Background(), "111")
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	current = current.Add(2 * time.Minute)
	_, err = cache.Lookup(context.Background(), "111")
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestCache_InvalidateForcesRefetch(t *testing.T) {
	src := &countingSource{creds: map[string]domain.Credential{"111": {Token: "tok-1"}}}
	cache, err := NewCache(src, 0)
	require.NoError(t, err)

	_, err = cache.Lookup(context.Background(), "111")
	require.NoError(t, err)
	cache.Invalidate("111")
	_, err = cache.Lookup(context.Background(), "111")
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestCache_ErrorsNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("ssm down")}
	cache, err := NewCache(src, 0)
	require.NoError(t, err)

	_, err = cache.Lookup(context.Background(), "111")
	require.Error(t, err)
	_, err = cache.Lookup(context.Background(), "111")
	require.Error(t, err)
	require.Equal(t, 2, src.calls)
}

func TestNewCache_NilSource(t *testing.T) {
	_, err := NewCache(nil, 0)
	require.Error(t, err)
}
