package funnel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gustavo1341/meurepositorio/internal/memory"
	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

// PriceResolver maps a plan id to its charge value. The default resolver
// returns zero, which records the purchase fact without a monetary amount.
type PriceResolver func(planID string) float64

// EngineConfig carries the funnel policy knobs.
type EngineConfig struct {
	UpsellEnabled            bool
	DownsellEnabled          bool
	DefaultStage             Stage
	AllowBackwardTransitions bool
}

// TransitionRecord is the immutable audit row appended on every stage change.
type TransitionRecord struct {
	From      Stage     `json:"from"`
	To        Stage     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseRecord is the stored purchase fact.
type PurchaseRecord struct {
	PlanID    string    `json:"plan_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// OfferResponseRecord is the stored outcome of a presented offer.
type OfferResponseRecord struct {
	Kind         OfferKind `json:"kind"`
	TargetPlanID string    `json:"target_plan_id"`
	Accepted     bool      `json:"accepted"`
	Confidence   float64   `json:"confidence"`
	Timestamp    time.Time `json:"timestamp"`
}

// RejectionRecord marks a rejected upsell so it is never re-offered.
type RejectionRecord struct {
	TargetPlanID string    `json:"target_plan_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// Engine drives stage resolution and offer lifecycle on top of the memory
// store. It owns no state of its own; every fact lives in the store so any
// instance can serve any conversation.
type Engine struct {
	store   memory.Store
	catalog *Catalog
	cfg     EngineConfig
	logger  *logging.Logger
	now     func() time.Time
	price   PriceResolver
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine clock. Tests use this to pin timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPriceResolver injects the plan pricing lookup used when an accepted
// offer is converted into a purchase.
func WithPriceResolver(r PriceResolver) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.price = r
		}
	}
}

// NewEngine creates a funnel engine. Store and catalog are required.
func NewEngine(store memory.Store, catalog *Catalog, cfg EngineConfig, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("funnel: store is required")
	}
	if catalog == nil {
		panic("funnel: catalog is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.DefaultStage == "" {
		cfg.DefaultStage = StageGreeting
	}
	e := &Engine{
		store:   store,
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		price:   func(string) float64 { return 0 },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetermineStage resolves the current stage for a conversation. Resolution
// order: persisted stage (with post-purchase upsell window activation), recent
// upsell rejection with a mapped downsell, then a heuristic over the latest
// message and history depth. Store failures degrade to the default stage so a
// conversation is never stalled by infrastructure.
func (e *Engine) DetermineStage(ctx context.Context, conversationID, latestMessage string) Stage {
	entry, err := e.store.GetLatest(ctx, conversationID, memory.CategoryStage)
	switch {
	case err == nil:
		stage, parseErr := ParseStage(entry.Value)
		if parseErr != nil {
			e.logger.Warn("funnel: persisted stage invalid, re-deriving",
				"conversation_id", conversationID, "value", entry.Value)
			break
		}
		if stage == StagePostPurchaseFollowup && e.cfg.UpsellEnabled {
			if next, activated := e.tryActivateUpsell(ctx, conversationID); activated {
				return next
			}
		}
		return stage
	case err == memory.ErrNotFound:
		// First contact with no persisted stage, fall through to heuristics.
	default:
		e.logger.Error("funnel: stage lookup failed, degrading to default",
			"conversation_id", conversationID, "error", err)
		return e.cfg.DefaultStage
	}

	if stage, ok := e.pendingDownsellStage(ctx, conversationID); ok {
		return stage
	}

	stage := e.heuristicStage(ctx, conversationID, latestMessage)
	if err := e.persistStage(ctx, conversationID, e.cfg.DefaultStage, stage); err != nil {
		e.logger.Error("funnel: persisting derived stage failed",
			"conversation_id", conversationID, "stage", stage, "error", err)
		return e.cfg.DefaultStage
	}
	return stage
}

// tryActivateUpsell checks the purchase window and, when an eligible offer
// exists, activates it and moves the conversation to the upsell stage.
func (e *Engine) tryActivateUpsell(ctx context.Context, conversationID string) (Stage, bool) {
	purchase, err := e.latestPurchase(ctx, conversationID)
	if err != nil {
		if err != memory.ErrNotFound {
			e.logger.Error("funnel: purchase lookup failed", "conversation_id", conversationID, "error", err)
		}
		return "", false
	}

	days := int(e.now().Sub(purchase.Timestamp).Hours() / 24)
	opp, ok := e.CheckUpsellOpportunity(purchase.PlanID, days)
	if !ok {
		return "", false
	}
	if e.wasRejected(ctx, conversationID, opp.TargetPlanID) {
		return "", false
	}

	raw, err := json.Marshal(opp)
	if err != nil {
		return "", false
	}
	if err := e.store.SetValue(ctx, conversationID, "current", string(raw), memory.CategoryActiveUpsell); err != nil {
		e.logger.Error("funnel: activating upsell failed", "conversation_id", conversationID, "error", err)
		return "", false
	}
	if err := e.persistStage(ctx, conversationID, StagePostPurchaseFollowup, StageUpsell); err != nil {
		e.logger.Error("funnel: upsell stage persist failed", "conversation_id", conversationID, "error", err)
		return "", false
	}
	e.logger.Info("funnel: upsell activated",
		"conversation_id", conversationID, "target_plan", opp.TargetPlanID, "days_since_purchase", days)
	return StageUpsell, true
}

// pendingDownsellStage reports whether a downsell presented within the last
// 24 hours is still awaiting a response.
func (e *Engine) pendingDownsellStage(ctx context.Context, conversationID string) (Stage, bool) {
	entry, err := e.store.GetLatest(ctx, conversationID, memory.CategoryActiveDownsell)
	if err != nil {
		return "", false
	}
	if e.now().Sub(entry.UpdatedAt) > 24*time.Hour {
		return "", false
	}
	return StageDownsell, true
}

// Keyword families scanned over the recent user messages once a conversation
// is deep enough for content signals to outweigh message count.
var (
	closingKeywords = []string{
		"podemos fechar", "vamos fechar", "quero fechar", "fechar negócio",
		"fechar negocio", "quero comprar", "como pago", "como faço para pagar",
		"como faco para pagar",
	}
	pricingKeywords = []string{
		"preço", "preco", "quanto custa", "quanto é", "quanto e", "valor do",
		"investimento",
	}
	demoKeywords = []string{
		"demonstração", "demonstracao", "quero ver funcionando",
		"me mostra como funciona", "como funciona na prática",
		"como funciona na pratica", "tem como testar",
	}
)

// heuristicStage derives a stage from history depth and content signals when
// no stage has been persisted yet. Short conversations follow the message
// count alone; past ten user messages the last five are scanned for keyword
// families, closing first, then pricing, objection, and demo request.
func (e *Engine) heuristicStage(ctx context.Context, conversationID, latestMessage string) Stage {
	msgs, err := e.store.GetRecent(ctx, conversationID, 50, memory.MessageFilter{Role: memory.RoleUser})
	if err != nil {
		e.logger.Warn("funnel: history lookup failed during stage derivation",
			"conversation_id", conversationID, "error", err)
		return e.cfg.DefaultStage
	}

	n := len(msgs)
	switch {
	case n <= 1:
		return StageGreeting
	case n < 5:
		return StageQualification
	case n < 10:
		return StageNeedDiscovery
	}

	window := make([]string, 0, 6)
	for _, msg := range msgs[max(0, n-5):] {
		window = append(window, msg.Content)
	}
	if latestMessage != "" {
		window = append(window, latestMessage)
	}

	if windowContainsAny(window, closingKeywords) {
		return StageClosing
	}
	if windowContainsAny(window, pricingKeywords) {
		return StagePriceDiscussion
	}
	for _, text := range window {
		if len(IdentifyObjections(text)) > 0 {
			return StageObjectionHandling
		}
	}
	if windowContainsAny(window, demoKeywords) {
		return StageProductDemonstration
	}

	switch {
	case n < 15:
		return StagePainPointExploration
	case n < 20:
		return StageSolutionPresentation
	default:
		return StageValueProposition
	}
}

func windowContainsAny(window []string, keywords []string) bool {
	for _, text := range window {
		if containsAny(text, keywords...) {
			return true
		}
	}
	return false
}

// UpdateStage transitions a conversation to newStage. An invalid stage fails
// with ErrInvalidStage and mutates nothing. Leaving the upsell stage with the
// offer still open counts as a rejection: the rejection is recorded, the
// active offer is cleared, and when a downsell mapping exists the transition
// is overridden to the downsell stage.
func (e *Engine) UpdateStage(ctx context.Context, conversationID string, newStage Stage) (Stage, error) {
	if !newStage.Valid() {
		return "", fmt.Errorf("funnel: update stage: %w: %q", ErrInvalidStage, newStage)
	}

	prior := e.cfg.DefaultStage
	if entry, err := e.store.GetLatest(ctx, conversationID, memory.CategoryStage); err == nil {
		if s, perr := ParseStage(entry.Value); perr == nil {
			prior = s
		}
	} else if err != memory.ErrNotFound {
		return "", fmt.Errorf("funnel: update stage: read current: %w", err)
	}

	if !e.cfg.AllowBackwardTransitions && regresses(prior, newStage) {
		e.logger.Info("funnel: backward transition ignored",
			"conversation_id", conversationID, "from", prior, "to", newStage)
		return prior, nil
	}

	applied := newStage
	if prior == StageUpsell && newStage != StageUpsell && newStage != StageDownsell {
		if opp, ok := e.activeOffer(ctx, conversationID, memory.CategoryActiveUpsell); ok {
			if err := e.recordRejection(ctx, conversationID, opp.TargetPlanID); err != nil {
				return "", err
			}
			if err := e.store.Delete(ctx, conversationID, "current", memory.CategoryActiveUpsell); err != nil {
				return "", fmt.Errorf("funnel: update stage: clear upsell: %w", err)
			}
			if down, found := e.catalog.DownsellFor(opp.TargetPlanID); found && e.cfg.DownsellEnabled {
				raw, merr := json.Marshal(down)
				if merr != nil {
					return "", fmt.Errorf("funnel: update stage: encode downsell: %w", merr)
				}
				if err := e.store.SetValue(ctx, conversationID, "current", string(raw), memory.CategoryActiveDownsell); err != nil {
					return "", fmt.Errorf("funnel: update stage: activate downsell: %w", err)
				}
				applied = StageDownsell
				e.logger.Info("funnel: upsell abandoned, overriding to downsell",
					"conversation_id", conversationID, "requested", newStage, "downsell_plan", down.TargetPlanID)
			}
		}
	}

	if err := e.persistStage(ctx, conversationID, prior, applied); err != nil {
		return "", err
	}
	return applied, nil
}

// persistStage writes the stage value and its transition record. Both writes
// must succeed for the operation to count.
func (e *Engine) persistStage(ctx context.Context, conversationID string, from, to Stage) error {
	if err := e.store.SetValue(ctx, conversationID, "current", string(to), memory.CategoryStage); err != nil {
		return fmt.Errorf("funnel: persist stage: %w", err)
	}
	rec := TransitionRecord{From: from, To: to, Timestamp: e.now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("funnel: persist stage: encode transition: %w", err)
	}
	key := fmt.Sprintf("%d", rec.Timestamp.UnixNano())
	if err := e.store.SetValue(ctx, conversationID, key, string(raw), memory.CategoryStageTransition); err != nil {
		return fmt.Errorf("funnel: persist stage: transition record: %w", err)
	}
	return nil
}

// CheckUpsellOpportunity returns the first catalog offer for the purchased
// plan whose window contains daysSincePurchase.
func (e *Engine) CheckUpsellOpportunity(planID string, daysSincePurchase int) (*Opportunity, bool) {
	for _, opp := range e.catalog.UpsellsFor(planID) {
		if opp.WindowContains(daysSincePurchase) {
			o := opp
			return &o, true
		}
	}
	return nil, false
}

// DownsellForRejected returns the downsell mapped to a rejected upsell plan.
func (e *Engine) DownsellForRejected(rejectedPlanID string) (*Opportunity, bool) {
	opp, ok := e.catalog.DownsellFor(rejectedPlanID)
	if !ok {
		return nil, false
	}
	return &opp, true
}

// RecordPurchase registers a completed purchase: the purchase fact, the
// interaction timestamp, and the move to post-purchase followup, in that
// order. The first failing write aborts and surfaces; earlier writes stand.
func (e *Engine) RecordPurchase(ctx context.Context, conversationID, planID string, value float64) error {
	rec := PurchaseRecord{PlanID: planID, Value: value, Timestamp: e.now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("funnel: record purchase: encode: %w", err)
	}
	if err := e.store.SetValue(ctx, conversationID, planID, string(raw), memory.CategoryPurchase); err != nil {
		return fmt.Errorf("funnel: record purchase: %w", err)
	}
	if err := e.touchInteraction(ctx, conversationID); err != nil {
		return fmt.Errorf("funnel: record purchase: %w", err)
	}
	if _, err := e.UpdateStage(ctx, conversationID, StagePostPurchaseFollowup); err != nil {
		return fmt.Errorf("funnel: record purchase: %w", err)
	}
	return nil
}

// RecordOfferResponse registers the contact's verdict on a presented offer.
// The response record is always written. Acceptance clears the active offer
// and converts it into a purchase of the target plan; a rejected upsell is
// marked so it is never re-offered and, when mapped, the downsell is
// presented; a rejected downsell ends the offer sequence.
func (e *Engine) RecordOfferResponse(ctx context.Context, conversationID string, opp Opportunity, accepted bool, confidence float64) error {
	rec := OfferResponseRecord{
		Kind:         opp.Kind,
		TargetPlanID: opp.TargetPlanID,
		Accepted:     accepted,
		Confidence:   confidence,
		Timestamp:    e.now(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("funnel: record offer response: encode: %w", err)
	}
	key := fmt.Sprintf("%s_%d", opp.TargetPlanID, rec.Timestamp.UnixNano())
	if err := e.store.SetValue(ctx, conversationID, key, string(raw), memory.CategoryOfferResponse); err != nil {
		return fmt.Errorf("funnel: record offer response: %w", err)
	}

	activeCategory := memory.CategoryActiveUpsell
	if opp.Kind == OfferDownsell {
		activeCategory = memory.CategoryActiveDownsell
	}

	if accepted {
		if err := e.store.Delete(ctx, conversationID, "current", activeCategory); err != nil {
			return fmt.Errorf("funnel: record offer response: clear active offer: %w", err)
		}
		return e.RecordPurchase(ctx, conversationID, opp.TargetPlanID, e.price(opp.TargetPlanID))
	}

	if err := e.store.Delete(ctx, conversationID, "current", activeCategory); err != nil {
		return fmt.Errorf("funnel: record offer response: clear active offer: %w", err)
	}

	if opp.Kind == OfferUpsell {
		if err := e.recordRejection(ctx, conversationID, opp.TargetPlanID); err != nil {
			return err
		}
		if down, ok := e.catalog.DownsellFor(opp.TargetPlanID); ok && e.cfg.DownsellEnabled {
			downRaw, merr := json.Marshal(down)
			if merr != nil {
				return fmt.Errorf("funnel: record offer response: encode downsell: %w", merr)
			}
			if err := e.store.SetValue(ctx, conversationID, "current", string(downRaw), memory.CategoryActiveDownsell); err != nil {
				return fmt.Errorf("funnel: record offer response: activate downsell: %w", err)
			}
			if _, err := e.UpdateStage(ctx, conversationID, StageDownsell); err != nil {
				return err
			}
			return nil
		}
	}

	_, err = e.UpdateStage(ctx, conversationID, StagePostPurchaseFollowup)
	return err
}

// ActiveOffer returns the pending offer for the given stage, when one exists.
func (e *Engine) ActiveOffer(ctx context.Context, conversationID string, stage Stage) (*Opportunity, bool) {
	switch stage {
	case StageUpsell:
		return e.activeOfferPtr(ctx, conversationID, memory.CategoryActiveUpsell)
	case StageDownsell:
		return e.activeOfferPtr(ctx, conversationID, memory.CategoryActiveDownsell)
	}
	return nil, false
}

// TouchInteraction records the contact's last interaction timestamp.
func (e *Engine) TouchInteraction(ctx context.Context, conversationID string) error {
	return e.touchInteraction(ctx, conversationID)
}

func (e *Engine) touchInteraction(ctx context.Context, conversationID string) error {
	return e.store.SetValue(ctx, conversationID, "ts", e.now().Format(time.RFC3339Nano), memory.CategoryLastInteraction)
}

func (e *Engine) recordRejection(ctx context.Context, conversationID, targetPlanID string) error {
	rec := RejectionRecord{TargetPlanID: targetPlanID, Timestamp: e.now()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("funnel: record rejection: encode: %w", err)
	}
	if err := e.store.SetValue(ctx, conversationID, targetPlanID, string(raw), memory.CategoryUpsellRejected); err != nil {
		return fmt.Errorf("funnel: record rejection: %w", err)
	}
	return nil
}

func (e *Engine) wasRejected(ctx context.Context, conversationID, targetPlanID string) bool {
	entries, err := e.store.GetAll(ctx, conversationID, memory.EntryFilter{Category: memory.CategoryUpsellRejected})
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Key == targetPlanID {
			return true
		}
	}
	return false
}

func (e *Engine) latestPurchase(ctx context.Context, conversationID string) (PurchaseRecord, error) {
	entry, err := e.store.GetLatest(ctx, conversationID, memory.CategoryPurchase)
	if err != nil {
		return PurchaseRecord{}, err
	}
	var rec PurchaseRecord
	if err := json.Unmarshal([]byte(entry.Value), &rec); err != nil {
		return PurchaseRecord{}, fmt.Errorf("funnel: decode purchase record: %w", err)
	}
	return rec, nil
}

func (e *Engine) activeOffer(ctx context.Context, conversationID, category string) (Opportunity, bool) {
	entry, err := e.store.GetLatest(ctx, conversationID, category)
	if err != nil {
		return Opportunity{}, false
	}
	var opp Opportunity
	if err := json.Unmarshal([]byte(entry.Value), &opp); err != nil {
		e.logger.Warn("funnel: active offer payload corrupt", "conversation_id", conversationID, "category", category)
		return Opportunity{}, false
	}
	return opp, true
}

func (e *Engine) activeOfferPtr(ctx context.Context, conversationID, category string) (*Opportunity, bool) {
	opp, ok := e.activeOffer(ctx, conversationID, category)
	if !ok {
		return nil, false
	}
	return &opp, true
}

func containsAny(text string, subs ...string) bool {
	lowered := strings.ToLower(text)
	for _, sub := range subs {
		if strings.Contains(lowered, sub) {
			return true
		}
	}
	return false
}
