// Package conversation runs the assistant's turn pipeline: it receives a
// debounced batch of inbound fragments, resolves the funnel stage, prompts
// the model, acts on the reply's directives, and hands the cleaned reply to
// the dispatcher.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Gustavo1341/meurepositorio/internal/batch"
	"github.com/Gustavo1341/meurepositorio/internal/directive"
	"github.com/Gustavo1341/meurepositorio/internal/funnel"
	"github.com/Gustavo1341/meurepositorio/internal/llm"
	"github.com/Gustavo1341/meurepositorio/internal/memory"
	"github.com/Gustavo1341/meurepositorio/internal/observability/metrics"
	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

var processorTracer = otel.Tracer("salesbot.internal.conversation")

// apologyMessage goes out when a turn fails beyond recovery. It is fixed text
// so a broken model or store can never leak an internal error to the contact.
const apologyMessage = "Desculpa, tive um problema aqui agora. Pode me mandar sua mensagem de novo em instantes?"

// replyDispatcher is the outbound side of the pipeline. Satisfied by
// dispatch.Dispatcher.
type replyDispatcher interface {
	EnqueueText(conversationID, text string) error
	EnqueueMedia(conversationID, mediaURL, caption string) error
}

// Asset is a social-proof media item addressable from a directive.
type Asset struct {
	URL     string
	Caption string
}

// ProcessorConfig tunes the turn pipeline.
type ProcessorConfig struct {
	HistoryLimit    int
	Temperature     float32
	MaxTokens       int
	LLMTimeout      time.Duration
	PersonaPrompt   string
	SocialProofLib  map[string]Asset
	CheckoutLinks   map[string]string
	ContactNameFrom string // metadata key carrying the contact's profile name
}

// Processor executes one conversation turn per debounced batch.
type Processor struct {
	store      memory.Store
	engine     *funnel.Engine
	gateway    llm.Client
	dispatcher replyDispatcher
	metrics    *metrics.BotMetrics
	logger     *logging.Logger
	cfg        ProcessorConfig
	now        func() time.Time
}

// NewProcessor wires the turn pipeline. Store, engine, gateway, and
// dispatcher are required.
func NewProcessor(store memory.Store, engine *funnel.Engine, gateway llm.Client, dispatcher replyDispatcher, m *metrics.BotMetrics, cfg ProcessorConfig, logger *logging.Logger) *Processor {
	if store == nil {
		panic("conversation: store cannot be nil")
	}
	if engine == nil {
		panic("conversation: funnel engine cannot be nil")
	}
	if gateway == nil {
		panic("conversation: llm gateway cannot be nil")
	}
	if dispatcher == nil {
		panic("conversation: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 45 * time.Second
	}
	if cfg.PersonaPrompt == "" {
		cfg.PersonaPrompt = defaultPersonaPrompt
	}
	if cfg.ContactNameFrom == "" {
		cfg.ContactNameFrom = "contact_name"
	}
	return &Processor{
		store:      store,
		engine:     engine,
		gateway:    gateway,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessBatch is the batch.ProcessFunc entry point. A failure sends the
// fixed apology and propagates the error so the batcher aborts anything
// queued behind this turn.
func (p *Processor) ProcessBatch(ctx context.Context, conversationID string, fragments []batch.Fragment) error {
	ctx, span := processorTracer.Start(ctx, "conversation.process_batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("salesbot.conversation_id", conversationID),
		attribute.Int("salesbot.fragments", len(fragments)),
	)

	err := p.processTurn(ctx, conversationID, fragments)
	if err != nil {
		span.RecordError(err)
		p.metrics.ObserveBatch("error", len(fragments))
		p.logger.Error("conversation: turn failed, sending fallback reply",
			"conversation_id", conversationID, "error", err)
		if sendErr := p.dispatcher.EnqueueText(conversationID, apologyMessage); sendErr != nil {
			p.logger.Error("conversation: fallback reply not delivered",
				"conversation_id", conversationID, "error", sendErr)
		}
		return err
	}
	p.metrics.ObserveBatch("ok", len(fragments))
	return nil
}

func (p *Processor) processTurn(ctx context.Context, conversationID string, fragments []batch.Fragment) error {
	if len(fragments) == 0 {
		return nil
	}

	merged, contactName := p.recordInbound(ctx, conversationID, fragments)
	if strings.TrimSpace(merged) == "" {
		return nil
	}

	stage := p.engine.DetermineStage(ctx, conversationID, merged)

	// An open offer intercepts the turn: a confident yes/no is acted on
	// before the model ever sees the message.
	if stage == funnel.StageUpsell || stage == funnel.StageDownsell {
		if offer, ok := p.engine.ActiveOffer(ctx, conversationID, stage); ok {
			analysis := funnel.AnalyzeOfferResponse(merged)
			if analysis.Confidence > funnel.MinActionableConfidence {
				if err := p.engine.RecordOfferResponse(ctx, conversationID, *offer, analysis.Accepted, analysis.Confidence); err != nil {
					return fmt.Errorf("conversation: offer response: %w", err)
				}
				stage = p.engine.DetermineStage(ctx, conversationID, merged)
			}
		}
	}

	systemPrompt := p.buildSystemPrompt(ctx, conversationID, stage, contactName, merged)
	messages, err := p.loadHistory(ctx, conversationID)
	if err != nil {
		return err
	}

	// A hung provider must not wedge the conversation's only processing run.
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.LLMTimeout)
	start := p.now()
	completion, err := p.gateway.Complete(callCtx, llm.Request{
		System:      systemPrompt,
		Messages:    messages,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	})
	cancel()
	if err != nil {
		p.metrics.ObserveLLMAttempt("gateway", "error", p.now().Sub(start).Seconds())
		return fmt.Errorf("conversation: completion: %w", err)
	}
	p.metrics.ObserveLLMAttempt("gateway", "ok", p.now().Sub(start).Seconds())

	reply := completion.Content
	directives := directive.Extract(reply)
	clean := directive.Strip(reply)

	if suggested, ok := directive.DetectStageSuggestion(reply, stage); ok {
		applied, err := p.engine.UpdateStage(ctx, conversationID, suggested)
		if err != nil {
			p.logger.Warn("conversation: stage suggestion rejected",
				"conversation_id", conversationID, "suggested", suggested, "error", err)
		} else {
			p.metrics.ObserveStageChange(string(applied))
		}
	}

	if err := p.store.Append(ctx, conversationID, memory.Message{
		ID:        uuid.NewString(),
		Role:      memory.RoleAssistant,
		Content:   clean,
		Timestamp: p.now(),
	}); err != nil {
		return fmt.Errorf("conversation: persist reply: %w", err)
	}

	if clean != "" {
		if err := p.dispatcher.EnqueueText(conversationID, clean); err != nil {
			return fmt.Errorf("conversation: enqueue reply: %w", err)
		}
	}
	p.applyDirectives(ctx, conversationID, directives)

	if err := p.engine.TouchInteraction(ctx, conversationID); err != nil {
		p.logger.Warn("conversation: interaction timestamp not updated",
			"conversation_id", conversationID, "error", err)
	}
	return nil
}

// recordInbound persists every fragment and returns the merged user text plus
// the contact name when the transport captured one.
func (p *Processor) recordInbound(ctx context.Context, conversationID string, fragments []batch.Fragment) (string, string) {
	var parts []string
	var contactName string
	for _, fragment := range fragments {
		if name := fragment.Metadata[p.cfg.ContactNameFrom]; name != "" {
			contactName = name
		}
		text := strings.TrimSpace(fragment.Text)
		if text != "" {
			parts = append(parts, text)
		}
		msg := memory.Message{
			ID:        fragment.Metadata["message_id"],
			Role:      memory.RoleUser,
			Content:   fragment.Text,
			Timestamp: fragment.Timestamp,
			Metadata:  fragment.Metadata,
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if err := p.store.Append(ctx, conversationID, msg); err != nil {
			p.logger.Warn("conversation: inbound fragment not persisted",
				"conversation_id", conversationID, "error", err)
		}
	}
	return strings.Join(parts, "\n"), contactName
}

func (p *Processor) loadHistory(ctx context.Context, conversationID string) ([]llm.Message, error) {
	history, err := p.store.GetRecent(ctx, conversationID, p.cfg.HistoryLimit, memory.MessageFilter{})
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	messages := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		role := llm.RoleUser
		if msg.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}
	return messages, nil
}

// applyDirectives acts on the markers extracted from the model reply, in
// order. Unknown asset or plan ids are logged and skipped.
func (p *Processor) applyDirectives(ctx context.Context, conversationID string, directives []directive.Directive) {
	for _, d := range directives {
		switch d.Name {
		case directive.SocialProof:
			asset, ok := p.cfg.SocialProofLib[d.ID]
			if !ok {
				p.logger.Warn("conversation: unknown social proof asset",
					"conversation_id", conversationID, "asset_id", d.ID)
				continue
			}
			if err := p.dispatcher.EnqueueMedia(conversationID, asset.URL, asset.Caption); err != nil {
				p.logger.Error("conversation: social proof not enqueued",
					"conversation_id", conversationID, "asset_id", d.ID, "error", err)
			}
		case directive.Checkout:
			link, ok := p.cfg.CheckoutLinks[d.ID]
			if !ok {
				p.logger.Warn("conversation: unknown checkout plan",
					"conversation_id", conversationID, "plan_id", d.ID)
				continue
			}
			if err := p.dispatcher.EnqueueText(conversationID, link); err != nil {
				p.logger.Error("conversation: checkout link not enqueued",
					"conversation_id", conversationID, "plan_id", d.ID, "error", err)
			}
		case directive.Support:
			if err := p.store.SetValue(ctx, conversationID, "requested", p.now().Format(time.RFC3339), memory.CategorySupportFlag); err != nil {
				p.logger.Error("conversation: support flag not persisted",
					"conversation_id", conversationID, "error", err)
			}
		case directive.SetStage:
			// Already handled through DetectStageSuggestion.
		}
	}
}
