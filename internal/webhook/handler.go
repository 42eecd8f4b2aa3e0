package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v72"

	"studko/internal/notify"
	"studko/pkg/logger"
)

const maxBodyBytes = 65536

// ErrBadPayload marks events that can never be processed. Stripe gets a 400
// and stops retrying.
var ErrBadPayload = errors.New("invalid event payload")

type Result string

const (
	ResultProcessed Result = "processed"
	ResultDuplicate Result = "duplicate"
	ResultIgnored   Result = "ignored"
)

type Verifier interface {
	VerifyWebhookSignature(payload []byte, sig string, webhookSecret string) (stripe.Event, error)
}

type Processor interface {
	Process(ctx context.Context, event stripe.Event) (Result, error)
}

// Notifier is the best-effort side-effect sink.
type Notifier interface {
	User(ctx context.Context, userID uuid.UUID, kind, title, body string, withEmail bool)
	Discord(ctx context.Context, content string)
	Operator(ctx context.Context, alert notify.OperatorAlert)
}

type Handler struct {
	verifier  Verifier
	secret    string
	processor Processor
	logger    *logger.Logger
}

func NewHandler(verifier Verifier, secret string, processor Processor, l *logger.Logger) *Handler {
	return &Handler{verifier: verifier, secret: secret, processor: processor, logger: l}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	// Read the request body
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Errorw("Failed to read webhook body", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
		return
	}

	if h.secret == "" {
		h.logger.Errorw("Webhook secret is not configured")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Webhook not configured"})
		return
	}

	// Verify webhook signature
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		h.logger.Warnw("Missing Stripe signature header")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing signature"})
		return
	}

	event, err := h.verifier.VerifyWebhookSignature(body, signature, h.secret)
	if err != nil {
		h.logger.Warnw("Failed to verify webhook signature", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid signature"})
		return
	}

	// Process the event
	result, err := h.processor.Process(r.Context(), event)
	if err != nil {
		if errors.Is(err, ErrBadPayload) {
			h.logger.Warnw("Rejected webhook event", "error", err, "eventID", event.ID, "type", event.Type)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Errorw("Failed to process webhook event", "error", err, "eventID", event.ID, "type", event.Type)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to process event"})
		return
	}

	h.logger.Infow("Webhook event handled", "eventID", event.ID, "type", event.Type, "result", result)
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true, "result": result})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeSession(event stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, errors.Join(ErrBadPayload, err)
	}
	return &session, nil
}

func metadataUUID(session *stripe.CheckoutSession, key string) (uuid.UUID, error) {
	raw := session.Metadata[key]
	if raw == "" {
		return uuid.Nil, errors.Join(ErrBadPayload, errors.New("missing metadata "+key))
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Join(ErrBadPayload, errors.New("invalid metadata "+key))
	}
	return id, nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
