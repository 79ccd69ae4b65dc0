// Package directive extracts and strips inline action markers from model
// output. The model emits markers like !social_proof:depoimento_1 or
// !checkout:pro_plan inside its reply; the pipeline acts on them and the
// contact only ever sees the cleaned text.
package directive

import (
	"regexp"
	"strings"

	"github.com/Gustavo1341/meurepositorio/internal/funnel"
)

// Name is a recognized directive verb.
type Name string

const (
	SocialProof Name = "social_proof"
	Checkout    Name = "checkout"
	SetStage    Name = "stage"
	Support     Name = "support"
)

// Directive is one extracted marker. ID is empty for bare directives.
type Directive struct {
	Name Name
	ID   string
}

// The marker grammar: bang, a known verb, and an optional :id suffix.
// Matching is case-insensitive; "etapa" is the Portuguese alias the prompt
// uses for stage.
var markerPattern = regexp.MustCompile(`(?i)!(social_proof|checkout|stage|etapa|support)(?::([a-z0-9_-]+))?`)

func normalizeName(raw string) Name {
	lowered := strings.ToLower(raw)
	if lowered == "etapa" {
		return SetStage
	}
	return Name(lowered)
}

// Extract returns every directive in text, in order of appearance.
// Duplicates are preserved; ids are lowercased.
func Extract(text string) []Directive {
	matches := markerPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Directive, 0, len(matches))
	for _, m := range matches {
		out = append(out, Directive{
			Name: normalizeName(m[1]),
			ID:   strings.ToLower(m[2]),
		})
	}
	return out
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Strip removes every directive marker, collapses runs of three or more
// newlines left behind to two, and trims surrounding whitespace. Strip is
// idempotent: stripping already-clean text changes nothing. Removal loops
// until no marker remains, since deleting one marker can splice the
// surrounding text into another.
func Strip(text string) string {
	cleaned := text
	for {
		next := markerPattern.ReplaceAllString(cleaned, "")
		if next == cleaned {
			break
		}
		cleaned = next
	}
	cleaned = excessNewlines.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// stageCue pairs a funnel stage with the reply phrases that suggest the
// conversation has moved there. Ordered by priority: the first cue whose
// pattern matches wins.
type stageCue struct {
	stage    funnel.Stage
	patterns []string
}

var stageCues = []stageCue{
	{funnel.StageCheckout, []string{"link de pagamento", "finalizar a compra", "finalizar sua compra", "segue o link"}},
	{funnel.StageClosing, []string{"podemos fechar", "vamos fechar", "fechar negócio", "fechar negocio", "garantir sua vaga"}},
	{funnel.StagePriceDiscussion, []string{"o investimento é", "o investimento e", "o valor é", "o valor e", "condições de pagamento", "condicoes de pagamento"}},
	{funnel.StageObjectionHandling, []string{"entendo sua preocupação", "entendo sua preocupacao", "entendo perfeitamente sua"}},
	{funnel.StageProofAndCredibility, []string{"depoimento", "nossos alunos", "casos de sucesso", "resultados de clientes"}},
	{funnel.StageSolutionPresentation, []string{"deixa eu te mostrar como", "a plataforma resolve", "funciona assim"}},
}

// DetectStageSuggestion inspects a model reply for a stage change signal. An
// explicit stage directive always wins; otherwise the phrase cues apply in
// priority order. The current stage is never suggested back.
func DetectStageSuggestion(text string, current funnel.Stage) (funnel.Stage, bool) {
	for _, d := range Extract(text) {
		if d.Name != SetStage {
			continue
		}
		stage, err := funnel.ParseStage(d.ID)
		if err != nil {
			continue
		}
		if stage == current {
			return "", false
		}
		return stage, true
	}

	lowered := strings.ToLower(text)
	for _, cue := range stageCues {
		if cue.stage == current {
			continue
		}
		for _, pattern := range cue.patterns {
			if strings.Contains(lowered, pattern) {
				return cue.stage, true
			}
		}
	}
	return "", false
}
