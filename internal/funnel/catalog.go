package funnel

// OfferKind distinguishes upsell from downsell opportunities.
type OfferKind string

const (
	OfferUpsell   OfferKind = "upsell"
	OfferDownsell OfferKind = "downsell"
)

// Nominal timing buckets for upsell offers, in days since purchase.
const (
	TimingQuick    = "quick"    // ~3 days
	TimingStandard = "standard" // ~7 days
	TimingPremium  = "premium"  // ~30 days
)

// Opportunity describes a candidate upsell or downsell offer.
type Opportunity struct {
	Kind             OfferKind `json:"kind"`
	SourcePlanID     string    `json:"source_plan_id"`
	TargetPlanID     string    `json:"target_plan_id"`
	Title            string    `json:"title"`
	Pitch            string    `json:"pitch"`
	ValueProposition string    `json:"value_proposition"`
	Discount         float64   `json:"discount"` // fraction in [0,1]
	ValidityHours    int       `json:"validity_hours"`

	// Timing rule: a named bucket or an explicit day count. Buckets win when set.
	TimingBucket string `json:"timing_bucket,omitempty"`
	TimingDays   int    `json:"timing_days,omitempty"`
}

// NominalTimingDays resolves the timing rule to a day count.
func (o Opportunity) NominalTimingDays() int {
	switch o.TimingBucket {
	case TimingQuick:
		return 3
	case TimingStandard:
		return 7
	case TimingPremium:
		return 30
	}
	if o.TimingDays > 0 {
		return o.TimingDays
	}
	return 7
}

// WindowContains reports whether daysSincePurchase falls inside the offer
// window [timing-1, timing+3], inclusive.
func (o Opportunity) WindowContains(daysSincePurchase int) bool {
	timing := o.NominalTimingDays()
	return daysSincePurchase >= timing-1 && daysSincePurchase <= timing+3
}

// Catalog holds the static upsell/downsell offer definitions.
type Catalog struct {
	upsells   map[string][]Opportunity // keyed by source plan
	downsells map[string]Opportunity   // keyed by rejected upsell target plan
}

// NewCatalog builds a catalog from explicit offer lists.
func NewCatalog(upsells []Opportunity, downsells []Opportunity) *Catalog {
	c := &Catalog{
		upsells:   make(map[string][]Opportunity),
		downsells: make(map[string]Opportunity),
	}
	for _, o := range upsells {
		o.Kind = OfferUpsell
		c.upsells[o.SourcePlanID] = append(c.upsells[o.SourcePlanID], o)
	}
	for _, o := range downsells {
		o.Kind = OfferDownsell
		c.downsells[o.SourcePlanID] = o
	}
	return c
}

// UpsellsFor returns the ordered upsell candidates for a purchased plan.
func (c *Catalog) UpsellsFor(planID string) []Opportunity {
	return c.upsells[planID]
}

// DownsellFor returns the downsell mapped to a rejected upsell plan, if any.
func (c *Catalog) DownsellFor(planID string) (Opportunity, bool) {
	o, ok := c.downsells[planID]
	return o, ok
}

// DefaultCatalog returns the built-in offer definitions.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		[]Opportunity{
			{
				SourcePlanID:     "basic_plan",
				TargetPlanID:     "pro_plan",
				Title:            "Plano Pro",
				Pitch:            "Você já dominou o essencial. O Plano Pro libera as automações avançadas e o suporte prioritário.",
				ValueProposition: "Clientes que migram para o Pro relatam o dobro de conversões no primeiro mês.",
				Discount:         0.20,
				ValidityHours:    48,
				TimingBucket:     TimingStandard,
			},
			{
				SourcePlanID:     "basic_plan",
				TargetPlanID:     "premium_plan",
				Title:            "Plano Premium",
				Pitch:            "Para quem quer escalar de verdade: tudo do Pro mais consultoria mensal dedicada.",
				ValueProposition: "Acompanhamento individual para acelerar seus resultados.",
				Discount:         0.15,
				ValidityHours:    72,
				TimingBucket:     TimingPremium,
			},
			{
				SourcePlanID:     "pro_plan",
				TargetPlanID:     "premium_plan",
				Title:            "Plano Premium",
				Pitch:            "Seu uso do Pro mostra que você está pronto para o Premium.",
				ValueProposition: "Consultoria dedicada e prioridade total no suporte.",
				Discount:         0.15,
				ValidityHours:    72,
				TimingBucket:     TimingQuick,
			},
		},
		[]Opportunity{
			{
				SourcePlanID:     "pro_plan",
				TargetPlanID:     "pro_lite_plan",
				Title:            "Pro Lite",
				Pitch:            "Entendo que o Pro completo não é para agora. O Pro Lite entrega as automações principais por bem menos.",
				ValueProposition: "O caminho do meio: mais poder que o básico, sem o investimento do Pro.",
				Discount:         0.30,
				ValidityHours:    24,
			},
			{
				SourcePlanID:     "premium_plan",
				TargetPlanID:     "pro_plan",
				Title:            "Plano Pro",
				Pitch:            "Que tal começar pelo Pro? Dá para migrar ao Premium quando fizer sentido.",
				ValueProposition: "As automações avançadas que você queria, com investimento menor.",
				Discount:         0.25,
				ValidityHours:    24,
			},
		},
	)
}
