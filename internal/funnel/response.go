package funnel

import (
	"strings"
	"unicode/utf8"
)

// OfferResponseAnalysis is the verdict of the free-text offer classifier.
type OfferResponseAnalysis struct {
	Accepted   bool
	Confidence float64
}

// MinActionableConfidence is the threshold below which callers should not act
// on an offer response classification.
const MinActionableConfidence = 0.7

var positiveOfferKeywords = []string{
	"sim",
	"quero",
	"aceito",
	"claro",
	"com certeza",
	"pode ser",
	"vamos",
	"bora",
	"fechado",
	"fechou",
	"perfeito",
	"manda",
	"ok",
}

var negativeOfferKeywords = []string{
	"não",
	"nao",
	"caro",
	"depois",
	"talvez",
	"sem interesse",
	"não quero",
	"nao quero",
	"agora não",
	"agora nao",
	"passo",
	"deixa pra lá",
	"deixa pra la",
}

// AnalyzeOfferResponse classifies a free-text reply to a yes/no offer.
// The heuristic counts keyword hits on fixed positive and negative sets;
// ambiguity defaults to a low-confidence rejection so callers never treat
// hesitation as acceptance.
func AnalyzeOfferResponse(text string) OfferResponseAnalysis {
	lowered := strings.ToLower(strings.TrimSpace(text))

	positiveCount, firstPositive := countKeywords(lowered, positiveOfferKeywords)
	negativeCount, _ := countKeywords(lowered, negativeOfferKeywords)

	switch {
	case positiveCount > 0 && negativeCount > 0:
		// "não" leading the sentence outweighs a trailing politeness keyword.
		if negIdx := indexOfEither(lowered, "não", "nao"); negIdx >= 0 && negIdx < firstPositive {
			return OfferResponseAnalysis{Accepted: false, Confidence: 0.6}
		}
		return OfferResponseAnalysis{Accepted: positiveCount > negativeCount, Confidence: 0.6}
	case positiveCount > 0:
		return OfferResponseAnalysis{Accepted: true, Confidence: capConfidence(0.3 + 0.2*float64(positiveCount))}
	case negativeCount > 0:
		return OfferResponseAnalysis{Accepted: false, Confidence: capConfidence(0.3 + 0.2*float64(negativeCount))}
	case strings.Contains(lowered, "?"):
		// A question back means hesitation, not agreement.
		return OfferResponseAnalysis{Accepted: false, Confidence: 0.65}
	case utf8.RuneCountInString(lowered) < 10:
		return OfferResponseAnalysis{Accepted: false, Confidence: 0.5}
	default:
		return OfferResponseAnalysis{Accepted: false, Confidence: 0.55}
	}
}

func countKeywords(text string, keywords []string) (count int, firstIndex int) {
	firstIndex = len(text) + 1
	for _, keyword := range keywords {
		idx := strings.Index(text, keyword)
		if idx < 0 {
			continue
		}
		count++
		if idx < firstIndex {
			firstIndex = idx
		}
	}
	return count, firstIndex
}

func indexOfEither(text, a, b string) int {
	ia := strings.Index(text, a)
	ib := strings.Index(text, b)
	switch {
	case ia < 0:
		return ib
	case ib < 0:
		return ia
	case ia < ib:
		return ia
	default:
		return ib
	}
}

func capConfidence(c float64) float64 {
	if c > 0.95 {
		return 0.95
	}
	return c
}
