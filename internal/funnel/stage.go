package funnel

import (
	"errors"
	"fmt"
	"strings"
)

// Stage identifies a phase of the sales conversation. The wire values are
// stable lowercase snake_case strings persisted in the memory store.
type Stage string

const (
	StageGreeting             Stage = "greeting"
	StageQualification        Stage = "qualification"
	StageNeedDiscovery        Stage = "need_discovery"
	StagePainPointExploration Stage = "pain_point_exploration"
	StageSolutionPresentation Stage = "solution_presentation"
	StageProductDemonstration Stage = "product_demonstration"
	StageValueProposition     Stage = "value_proposition"
	StageProofAndCredibility  Stage = "proof_and_credibility"
	StageObjectionHandling    Stage = "objection_handling"
	StagePriceDiscussion      Stage = "price_discussion"
	StageClosing              Stage = "closing"
	StageCheckout             Stage = "checkout"
	StagePostPurchaseFollowup Stage = "post_purchase_followup"
	StageUpsell               Stage = "upsell"
	StageDownsell             Stage = "downsell"
	StageCrossSell            Stage = "cross_sell"
	StageReactivation         Stage = "reactivation"
	StageFeedback             Stage = "feedback"
)

// ErrInvalidStage indicates a stage id outside the known enumeration.
var ErrInvalidStage = errors.New("funnel: invalid stage")

// AllStages lists every stage in funnel order.
var AllStages = []Stage{
	StageGreeting,
	StageQualification,
	StageNeedDiscovery,
	StagePainPointExploration,
	StageSolutionPresentation,
	StageProductDemonstration,
	StageValueProposition,
	StageProofAndCredibility,
	StageObjectionHandling,
	StagePriceDiscussion,
	StageClosing,
	StageCheckout,
	StagePostPurchaseFollowup,
	StageUpsell,
	StageDownsell,
	StageCrossSell,
	StageReactivation,
	StageFeedback,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(AllStages))
	for _, s := range AllStages {
		set[s] = struct{}{}
	}
	return set
}()

var stagePosition = func() map[Stage]int {
	pos := make(map[Stage]int, len(AllStages))
	for i, s := range AllStages {
		pos[s] = i
	}
	return pos
}()

// regresses reports whether moving from one stage to another walks backward
// within the linear pre-purchase ladder (greeting through checkout). Post-sale
// stages cycle by nature and never count as regressions.
func regresses(from, to Stage) bool {
	ladderEnd := stagePosition[StageCheckout]
	fi, fok := stagePosition[from]
	ti, tok := stagePosition[to]
	if !fok || !tok {
		return false
	}
	return fi <= ladderEnd && ti <= ladderEnd && ti < fi
}

// Valid reports whether the stage belongs to the enumeration.
func (s Stage) Valid() bool {
	_, ok := stageSet[s]
	return ok
}

// ParseStage validates a wire value and returns the typed stage.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, raw)
	}
	return s, nil
}
