package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"whats-bot/internal/domain"
)

type fakeGetter struct {
	vals  map[string]string
	err   error
	calls []string
}

func (g *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	g.calls = append(g.calls, name)
	if g.err != nil {
		return "", g.err
	}
	v, ok := g.vals[name]
	if !ok {
		return "", errors.New("parameter not found")
	}
	return v, nil
}

func TestNewParamStoreSource_Validation(t *testing.T) {
	_, err := NewParamStoreSource(nil, "/whats-bot")
	require.Error(t, err)

	_, err = NewParamStoreSource(&fakeGetter{}, "  ")
	require.Error(t, err)
}

func TestLookup_HappyPath(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{
		"/whats-bot/accounts/111/whatsapp-token": `{"token":"tok-1"}`,
	}}
	src, err := NewParamStoreSource(g, "/whats-bot/")
	require.NoError(t, err)

	cred, err := src.Lookup(context.Background(), "111")
	require.NoError(t, err)
	require.Equal(t, domain.Credential{Token: "tok-1"}, cred)
	require.Equal(t, []string{"/whats-bot/accounts/111/whatsapp-token"}, g.calls)
}

func TestLookup_GetterError(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm down")}
	src, err := NewParamStoreSource(g, "/whats-bot")
	require.NoError(t, err)

	_, err = src.Lookup(context.Background(), "111")
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	require.Equal(t, domain.CredentialUnavailable, kind)
}

func TestLookup_MalformedPayload(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{
		"/whats-bot/accounts/111/whatsapp-token": "not-json",
	}}
	src, err := NewParamStoreSource(g, "/whats-bot")
	require.NoError(t, err)

	_, err = src.Lookup(context.Background(), "111")
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	require.Equal(t, domain.CredentialUnavailable, kind)
}

func TestLookup_EmptyToken(t *testing.T) {
	g := &fakeGetter{vals: map[string]string{
		"/whats-bot/accounts/111/whatsapp-token": `{"token":""}`,
	}}
	src, err := NewParamStoreSource(g, "/whats-bot")
	require.NoError(t, err)

	_, err = src.Lookup(context.Background(), "111")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

func TestLookup_EmptyAccountID(t *testing.T) {
	src, err := NewParamStoreSource(&fakeGetter{}, "/whats-bot")
	require.NoError(t, err)

	_, err = src.Lookup(context.Background(), " ")
	require.Error(t, err)
}
