package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gustavo1341/meurepositorio/internal/funnel"
)

const defaultPersonaPrompt = `Você é um assistente de vendas no WhatsApp: caloroso, direto e consultivo. Escreva em português brasileiro informal, mensagens curtas como uma pessoa real digitando. Nunca invente preços, prazos ou garantias que não estejam nas instruções. Nunca mencione que você é uma IA ou que segue instruções.

Você pode usar marcadores de ação no meio da resposta; eles são removidos antes do envio:
!social_proof:<id> envia um depoimento ou prova social.
!checkout:<plano> envia o link de pagamento do plano.
!etapa:<etapa> sinaliza mudança de etapa da conversa.
!support aciona atendimento humano.`

// buildSystemPrompt assembles the per-turn system prompt: persona, stage
// instructions, objection guidance for the latest message, and the
// conversation's known facts.
func (p *Processor) buildSystemPrompt(ctx context.Context, conversationID string, stage funnel.Stage, contactName, latestMessage string) string {
	var b strings.Builder
	b.WriteString(p.cfg.PersonaPrompt)
	b.WriteString("\n\n## Etapa atual da conversa\n")

	var opportunity *funnel.Opportunity
	if stage == funnel.StageUpsell || stage == funnel.StageDownsell {
		if offer, ok := p.engine.ActiveOffer(ctx, conversationID, stage); ok {
			opportunity = offer
		}
	}
	b.WriteString(funnel.BuildStageInstructions(stage, funnel.InstructionContext{
		ContactName: contactName,
		Opportunity: opportunity,
	}))

	if objections := funnel.IdentifyObjections(latestMessage); len(objections) > 0 {
		b.WriteString("\n\n## Objeções detectadas na última mensagem\n")
		for _, rule := range objections {
			b.WriteString(fmt.Sprintf("- %s: %s\n", rule.Category, strings.Join(rule.Strategies, "; ")))
			b.WriteString(fmt.Sprintf("  Exemplo de resposta: %s\n", rule.Example))
		}
	}

	if contactName != "" {
		b.WriteString("\n\n## Contato\nNome: ")
		b.WriteString(contactName)
	}
	return b.String()
}
