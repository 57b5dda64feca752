package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"whats-bot/internal/domain"
	"whats-bot/internal/relay"
)

// Relayer is the orchestration contract consumed by the webhook handler.
type Relayer interface {
	Relay(ctx context.Context, req domain.RelayRequest) (relay.Result, error)
}

// Response is the Lambda proxy-integration response shape.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type relayResponse struct {
	Reply     string `json:"reply"`
	Delivered bool   `json:"delivered"`
	Persisted bool   `json:"persisted"`
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handler terminates the Meta webhook: subscription verification on GET,
// inbound message relay on POST.
type Handler struct {
	relayer     Relayer
	verifyToken string
	appSecret   string
}

// NewHandler wires the webhook boundary. appSecret enables the
// X-Hub-Signature-256 check when non-empty.
func NewHandler(relayer Relayer, verifyToken, appSecret string) (*Handler, error) {
	if relayer == nil {
		return nil, errors.New("handler: relayer must not be nil")
	}
	if strings.TrimSpace(verifyToken) == "" {
		return nil, errors.New("handler: verify token must not be empty")
	}
	return &Handler{relayer: relayer, verifyToken: verifyToken, appSecret: appSecret}, nil
}

// Handle routes one API Gateway event.
func (h *Handler) Handle(ctx context.Context, evt events.APIGatewayProxyRequest) (Response, error) {
	correlationID := uuid.NewString()

	switch strings.ToUpper(evt.HTTPMethod) {
	case http.MethodGet:
		return h.handleVerification(evt, correlationID), nil
	case http.MethodPost:
		return h.handleMessage(ctx, evt, correlationID), nil
	default:
		return errorResponse(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "", correlationID), nil
	}
}

// handleVerification answers Meta's subscription challenge.
func (h *Handler) handleVerification(evt events.APIGatewayProxyRequest, correlationID string) Response {
	q := evt.QueryStringParameters
	if q["hub.mode"] == "subscribe" && q["hub.verify_token"] == h.verifyToken {
		return Response{
			StatusCode: http.StatusOK,
			Headers:    plainHeaders(correlationID),
			Body:       q["hub.challenge"],
		}
	}
	return errorResponse(http.StatusForbidden, "VERIFY_TOKEN_MISMATCH", "", correlationID)
}

func (h *Handler) handleMessage(ctx context.Context, evt events.APIGatewayProxyRequest, correlationID string) Response {
	body := []byte(evt.Body)

	if h.appSecret != "" && !verifySignature(h.appSecret, body, header(evt, "X-Hub-Signature-256")) {
		return errorResponse(http.StatusUnauthorized, "SIGNATURE_MISMATCH", "", correlationID)
	}

	req, err := decodeRelayRequest(body)
	if errors.Is(err, ErrNoMessage) {
		// Status updates and other non-message events are acknowledged so
		// Meta does not retry them.
		return jsonResponse(http.StatusOK, map[string]string{"status": "ignored"}, correlationID)
	}
	var malformed *MalformedPayloadError
	if errors.As(err, &malformed) {
		return errorResponse(http.StatusBadRequest, "MALFORMED_PAYLOAD", malformed.Field, correlationID)
	}
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "INTERNAL_ERROR", "", correlationID)
	}

	res, relayErr := h.relayer.Relay(ctx, req)
	if relayErr == nil {
		return jsonResponse(http.StatusOK, relayResponse{
			Reply:     res.Reply,
			Delivered: res.Delivered,
			Persisted: res.Persisted,
		}, correlationID)
	}

	status, code := statusForRelayError(res, relayErr)
	return errorResponse(status, code, relayErr.Error(), correlationID)
}

// statusForRelayError maps relay failures onto HTTP statuses. Partial
// dispatch failures keep their specific fault kind so the caller can tell a
// lost delivery from a lost persist.
func statusForRelayError(res relay.Result, err error) (int, string) {
	if kind, ok := domain.KindOf(err); ok {
		switch kind {
		case domain.GenerationRejected, domain.GenerationUnavailable,
			domain.DeliveryRejected, domain.DeliveryUnavailable:
			return http.StatusBadGateway, string(kind)
		case domain.StoreUnavailable, domain.StoreCorrupt, domain.CredentialUnavailable:
			return http.StatusInternalServerError, string(kind)
		}
	}
	if res.PartialFailure() {
		return http.StatusInternalServerError, "PARTIAL_FAILURE"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func verifySignature(appSecret string, body []byte, signature string) bool {
	const prefix = "sha256="
	if len(signature) <= len(prefix) || !strings.HasPrefix(signature, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature[len(prefix):]))
}

// header does a case-insensitive lookup; API Gateway does not normalize
// header casing.
func header(evt events.APIGatewayProxyRequest, name string) string {
	for k, v := range evt.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func plainHeaders(correlationID string) map[string]string {
	return map[string]string{
		"Content-Type":     "text/plain",
		"X-Correlation-Id": correlationID,
	}
}

func jsonHeaders(correlationID string) map[string]string {
	return map[string]string{
		"Content-Type":     "application/json",
		"X-Correlation-Id": correlationID,
	}
}

func jsonResponse(status int, payload any, correlationID string) Response {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    jsonHeaders(correlationID),
			Body:       `{"error":"INTERNAL_ERROR"}`,
		}
	}
	return Response{StatusCode: status, Headers: jsonHeaders(correlationID), Body: string(body)}
}

func errorResponse(status int, code, reason, correlationID string) Response {
	return jsonResponse(status, errorBody{Error: code, Reason: reason}, correlationID)
}
