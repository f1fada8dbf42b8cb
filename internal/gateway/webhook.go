package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// maxWebhookBody caps how much of a webhook payload is read.
const maxWebhookBody = 1 << 20

var tracer = otel.Tracer("telegate/gateway")

// ErrUnauthorized marks a webhook the handler rejected as unauthenticated.
// Handlers that do their own credential check (Telegram's secret-token
// header) wrap it so the dispatcher answers 401 instead of 500.
var ErrUnauthorized = errors.New("unauthorized")

// WebhookHandler processes a validated webhook payload.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

// WebhookDispatcher routes incoming webhooks to registered handlers.
// Sources with an HMAC secret (set from config or at registration) get
// their payload signature checked before the handler runs; sources that
// authenticate another way, like Telegram's secret-token header, register
// with an empty secret and validate inside the handler.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]WebhookHandler
	secrets  map[string]string
	logger   *slog.Logger
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers: make(map[string]WebhookHandler),
		secrets:  make(map[string]string),
		logger:   logger,
	}
}

// Register adds a handler for the given source. A non-empty secret turns on
// HMAC validation for the source; an empty one leaves any config-set secret
// in place.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = h
	if secret != "" {
		d.secrets[source] = secret
	}
}

// SetSecret configures the HMAC secret for a source ahead of handler
// registration. Called by the gateway for sources named in config.
func (d *WebhookDispatcher) SetSecret(source, secret string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if secret != "" {
		d.secrets[source] = secret
	}
}

// Sources returns the names of all sources with a registered handler, sorted.
func (d *WebhookDispatcher) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ServeHTTP implements http.Handler. It extracts the source from the chi URL
// param, validates the signature if a secret is configured, and dispatches
// to the registered handler. Unknown sources get a 404 so probes learn
// nothing about which integrations exist.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := chi.URLParam(r, "source")
	if source == "" {
		http.Error(w, "missing source", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	d.mu.RLock()
	handler, ok := d.handlers[source]
	secret := d.secrets[source]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("webhook received for unregistered source", "source", source)
		http.Error(w, "unknown source", http.StatusNotFound)
		return
	}

	if secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if !validateHMAC(body, sig, secret) {
			d.logger.Warn("webhook signature rejected", "source", source)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := tracer.Start(ctx, "gateway.webhook", trace.WithAttributes(
		attribute.String("webhook.source", source),
		attribute.Int("webhook.body_bytes", len(body)),
	))
	defer span.End()

	if err := handler.HandleWebhook(ctx, source, body, r.Header); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrUnauthorized) {
			span.SetStatus(codes.Error, "unauthorized")
			d.logger.Warn("webhook authentication rejected", "source", source)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		span.SetStatus(codes.Error, "handler failed")
		d.logger.Error("webhook handler failed", "source", source, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// validateHMAC checks an HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
