package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/Gustavo1341/meurepositorio/internal/batch"
	"github.com/Gustavo1341/meurepositorio/internal/observability/metrics"
	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

var webhookTracer = otel.Tracer("salesbot.internal.transport.webhook")

// fragmentSink is where parsed inbound fragments go. Satisfied by
// batch.Batcher.
type fragmentSink interface {
	Add(fragment batch.Fragment) error
}

// WebhookHandler translates WhatsApp Cloud API webhook payloads into
// fragments for the batcher.
type WebhookHandler struct {
	sink        fragmentSink
	verifyToken string
	metrics     *metrics.BotMetrics
	logger      *logging.Logger
}

// NewWebhookHandler creates a webhook handler. The sink is required.
func NewWebhookHandler(sink fragmentSink, verifyToken string, m *metrics.BotMetrics, logger *logging.Logger) *WebhookHandler {
	if sink == nil {
		panic("transport: fragment sink cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		sink:        sink,
		verifyToken: verifyToken,
		metrics:     m,
		logger:      logger,
	}
}

// Verify handles the Cloud API subscription handshake (GET with
// hub.challenge).
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
		h.logger.Warn("transport: webhook verification rejected")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, q.Get("hub.challenge"))
}

// Cloud API inbound payload, reduced to the fields the assistant consumes.
type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
					Image struct {
						Link    string `json:"link"`
						Caption string `json:"caption"`
					} `json:"image"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Receive handles POSTed message events. The provider expects a fast 200;
// processing happens asynchronously behind the batcher.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	_, span := webhookTracer.Start(r.Context(), "transport.webhook.receive")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("transport: webhook payload unparseable", "error", err)
		span.RecordError(err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				fragment := batch.Fragment{
					ConversationID: msg.From,
					Sender:         msg.From,
					Text:           msg.Text.Body,
					MediaURL:       msg.Image.Link,
					Timestamp:      parseUnixTimestamp(msg.Timestamp),
					Metadata: map[string]string{
						"message_id":   msg.ID,
						"message_type": msg.Type,
						"contact_name": names[msg.From],
					},
				}
				if msg.Type == "image" && fragment.Text == "" {
					fragment.Text = msg.Image.Caption
				}
				if fragment.Text == "" && fragment.MediaURL == "" {
					continue
				}
				if err := h.sink.Add(fragment); err != nil {
					if errors.Is(err, batch.ErrBatcherClosed) {
						h.metrics.ObserveInboundFragment("rejected")
						http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
						return
					}
					h.logger.Error("transport: fragment rejected", "error", err)
					h.metrics.ObserveInboundFragment("error")
					continue
				}
				accepted++
				h.metrics.ObserveInboundFragment("accepted")
			}
		}
	}

	h.logger.Debug("transport: webhook processed", "fragments", accepted)
	w.WriteHeader(http.StatusOK)
}

func parseUnixTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
