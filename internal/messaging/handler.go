package messaging

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rgarzadev/citabot/internal/observability/metrics"
	"github.com/rgarzadev/citabot/pkg/logging"
)

var webhookTracer = otel.Tracer("citabot.internal.messaging")

// Engine advances one conversation turn and returns the reply text.
type Engine interface {
	HandleMessage(ctx context.Context, key, body string) (string, error)
}

// ProcessedMarker records provider event IDs so redelivered webhooks are
// answered without replaying the conversation turn.
type ProcessedMarker interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Handler handles the Twilio WhatsApp webhook.
type Handler struct {
	authToken  string
	webhookURL string // overrides URL reconstruction when set
	engine     Engine
	processed  ProcessedMarker
	metrics    *metrics.WebhookMetrics
	logger     *logging.Logger
}

// NewHandler wires the webhook handler. An empty authToken disables
// signature validation, which is only acceptable in local development.
func NewHandler(authToken, webhookURL string, engine Engine, processed ProcessedMarker, m *metrics.WebhookMetrics, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("messaging: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		authToken:  authToken,
		webhookURL: webhookURL,
		engine:     engine,
		processed:  processed,
		metrics:    m,
		logger:     logger,
	}
}

// WhatsAppWebhook handles POST /webhook/whatsapp requests.
func (h *Handler) WhatsAppWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := webhookTracer.Start(r.Context(), "messaging.whatsapp.webhook")
	defer span.End()
	start := time.Now()

	if h.authToken != "" {
		signedURL := h.webhookURL
		if signedURL == "" {
			signedURL = buildAbsoluteURL(r)
		}
		if !ValidateTwilioSignature(r, h.authToken, signedURL) {
			h.logger.Warn("invalid twilio signature")
			span.RecordError(errors.New("invalid twilio signature"))
			h.metrics.ObserveInbound("unauthorized")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	webhook, err := ParseWebhook(r)
	if err != nil {
		h.logger.Error("failed to parse twilio webhook", "error", err)
		span.RecordError(err)
		h.metrics.ObserveInbound("bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	span.SetAttributes(
		attribute.String("citabot.twilio.message_sid", webhook.MessageSid),
		attribute.String("citabot.twilio.from", webhook.From),
	)

	if webhook.MessageSid == "" || webhook.From == "" || webhook.Body == "" {
		err := errors.New("missing required twilio fields")
		h.logger.Error("invalid twilio payload", "error", err)
		span.RecordError(err)
		h.metrics.ObserveInbound("bad_request")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.processed != nil {
		fresh, err := h.processed.MarkProcessed(ctx, "twilio", webhook.MessageSid)
		if err != nil {
			// Dedup is best effort; a store hiccup must not drop the message.
			h.logger.Warn("processed-event check failed", "error", err, "message_sid", webhook.MessageSid)
		} else if !fresh {
			h.logger.Info("duplicate webhook delivery ignored", "message_sid", webhook.MessageSid)
			h.metrics.ObserveInbound("duplicate")
			writeTwiML(w, "")
			return
		}
	}

	reply, err := h.engine.HandleMessage(ctx, webhook.From, webhook.Body)
	if err != nil {
		h.logger.Error("conversation turn failed", "error", err, "from", webhook.From)
		span.RecordError(err)
		h.metrics.ObserveInbound("error")
		h.metrics.ObserveTurnLatency("error", time.Since(start).Seconds())
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveInbound("ok")
	h.metrics.ObserveTurnLatency("ok", time.Since(start).Seconds())
	writeTwiML(w, reply)
}

func writeTwiML(w http.ResponseWriter, reply string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(EncodeTwiML(reply)))
}
