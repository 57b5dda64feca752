package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"whats-bot/internal/domain"
	"whats-bot/internal/relay"
)

type stubRelayer struct {
	res   relay.Result
	err   error
	req   domain.RelayRequest
	calls int
}

func (s *stubRelayer) Relay(_ context.Context, req domain.RelayRequest) (relay.Result, error) {
	s.calls++
	s.req = req
	return s.res, s.err
}

func makePost(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/webhook",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func makeVerify(mode, token, challenge string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/webhook",
		QueryStringParameters: map[string]string{
			"hub.mode":         mode,
			"hub.verify_token": token,
			"hub.challenge":    challenge,
		},
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func mustNewHandler(t *testing.T, r Relayer) *Handler {
	t.Helper()
	h, err := NewHandler(r, "secret-token", "")
	require.NoError(t, err)
	return h
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := NewHandler(nil, "secret-token", "")
	require.Error(t, err)

	_, err = NewHandler(&stubRelayer{}, " ", "")
	require.Error(t, err)
}

func TestHandle_Verification(t *testing.T) {
	h := mustNewHandler(t, &stubRelayer{})

	resp, err := h.Handle(context.Background(), makeVerify("subscribe", "secret-token", "challenge-123"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "challenge-123", resp.Body)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_VerificationWrongToken(t *testing.T) {
	h := mustNewHandler(t, &stubRelayer{})

	resp, err := h.Handle(context.Background(), makeVerify("subscribe", "wrong", "challenge-123"))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandle_VerificationWrongMode(t *testing.T) {
	h := mustNewHandler(t, &stubRelayer{})

	resp, err := h.Handle(context.Background(), makeVerify("unsubscribe", "secret-token", "challenge-123"))
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHandle_MessageHappyPath(t *testing.T) {
	r := &stubRelayer{res: relay.Result{Reply: "Hello!", Delivered: true, Persisted: true}}
	h := mustNewHandler(t, r)

	resp, err := h.Handle(context.Background(), makePost(validPayload))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, domain.RelayRequest{AccountID: "111", CounterpartID: "222", MessageText: "Hi"}, r.req)

	out := parseBody[relayResponse](t, resp.Body)
	require.Equal(t, "Hello!", out.Reply)
	require.True(t, out.Delivered)
	require.True(t, out.Persisted)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_MalformedPayload(t *testing.T) {
	r := &stubRelayer{}
	h := mustNewHandler(t, r)

	resp, err := h.Handle(context.Background(), makePost(`{"entry":[]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, r.calls)

	out := parseBody[errorBody](t, resp.Body)
	require.Equal(t, "MALFORMED_PAYLOAD", out.Error)
	require.Equal(t, "entry", out.Reason)
}

func TestHandle_StatusEventAcknowledged(t *testing.T) {
	r := &stubRelayer{}
	h := mustNewHandler(t, r)

	body := `{"entry":[{"changes":[{"value":{"statuses":[{"status":"read"}]}}]}]}`
	resp, err := h.Handle(context.Background(), makePost(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Zero(t, r.calls)
}

func TestHandle_MapsRelayFaults(t *testing.T) {
	cases := []struct {
		name   string
		res    relay.Result
		err    error
		status int
		code   string
	}{
		{
			name:   "generation rejected",
			err:    fmt.Errorf("relay: generate reply: %w", domain.NewFault(domain.GenerationRejected, "bad role", nil)),
			status: http.StatusBadGateway,
			code:   string(domain.GenerationRejected),
		},
		{
			name:   "generation unavailable",
			err:    fmt.Errorf("relay: generate reply: %w", domain.NewFault(domain.GenerationUnavailable, "timeout", nil)),
			status: http.StatusBadGateway,
			code:   string(domain.GenerationUnavailable),
		},
		{
			name: "delivery rejected, history persisted",
			res:  relay.Result{Reply: "Hello!", Persisted: true},
			err: fmt.Errorf("relay: reply not delivered (history persisted): %w",
				&domain.Fault{Kind: domain.DeliveryRejected, StatusCode: 401}),
			status: http.StatusBadGateway,
			code:   string(domain.DeliveryRejected),
		},
		{
			name:   "store unavailable",
			err:    fmt.Errorf("relay: fetch history: %w", domain.NewFault(domain.StoreUnavailable, "get item", nil)),
			status: http.StatusInternalServerError,
			code:   string(domain.StoreUnavailable),
		},
		{
			name:   "store corrupt",
			err:    fmt.Errorf("relay: fetch history: %w", domain.NewFault(domain.StoreCorrupt, "decode history", nil)),
			status: http.StatusInternalServerError,
			code:   string(domain.StoreCorrupt),
		},
		{
			name:   "unexpected error",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			code:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := mustNewHandler(t, &stubRelayer{res: tc.res, err: tc.err})

			resp, err := h.Handle(context.Background(), makePost(validPayload))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorBody](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_SignatureRequiredWhenSecretConfigured(t *testing.T) {
	r := &stubRelayer{res: relay.Result{Reply: "ok", Delivered: true, Persisted: true}}
	h, err := NewHandler(r, "secret-token", "app-secret")
	require.NoError(t, err)

	evt := makePost(validPayload)
	resp, err := h.Handle(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, r.calls)

	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte(validPayload))
	evt.Headers["x-hub-signature-256"] = "sha256=" + hex.EncodeToString(mac.Sum(nil))

	resp, err = h.Handle(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, r.calls)
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	h := mustNewHandler(t, &stubRelayer{})

	resp, err := h.Handle(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodDelete})
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
