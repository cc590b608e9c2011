package answer

import (
	"fmt"
	"strings"

	"paperlens/internal/evidence"
)

// PersonaOptions tune register and length of the generated text without
// touching the grounding rules.
type PersonaOptions struct {
	Audience string `json:"audience,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

const groundingRules = `Rules:
- Every claim must be supported by one of the evidence chunks; cite its chunk_id.
- Quote page numbers exactly as given in the evidence.
- Never cite a chunk_id that does not appear in the evidence.
- If the evidence does not support an answer, say so explicitly instead of guessing.`

// BuildAnswerPrompt assembles the system/user prompts and the evidence
// context lines for one question. When retrieval found no direct hits the
// model is told so up front; it must not invent support.
func BuildAnswerPrompt(bundle evidence.Bundle, question string, persona PersonaOptions) (system, user string, context []string) {
	var sys strings.Builder
	sys.WriteString("You answer questions about a single scholarly paper using only the evidence provided.\n")
	sys.WriteString(groundingRules)
	writePersona(&sys, persona)

	var usr strings.Builder
	fmt.Fprintf(&usr, "Paper: %s\n\nQuestion: %s\n", bundle.PaperID, question)
	if bundle.NoDirectEvidence {
		usr.WriteString("\nNote: retrieval found no chunk directly matching the question. Answer only if the surrounding evidence genuinely supports it; otherwise set no_direct_evidence to true and say the paper does not address this.\n")
	}

	return sys.String(), usr.String(), evidenceContext(bundle)
}

// BuildSummaryPrompt assembles the prompts for a whole-paper summary
// request over the retrieved evidence.
func BuildSummaryPrompt(bundle evidence.Bundle, persona PersonaOptions) (system, user string, context []string) {
	var sys strings.Builder
	sys.WriteString("You summarize a scholarly paper using only the evidence provided.\n")
	sys.WriteString(groundingRules)
	writePersona(&sys, persona)

	var usr strings.Builder
	fmt.Fprintf(&usr, "Paper: %s\n\nProduce a structured summary of this paper from the evidence chunks.\n", bundle.PaperID)
	if bundle.NoDirectEvidence {
		usr.WriteString("\nNote: retrieval returned no ranked hits; only page-local context is available.\n")
	}

	return sys.String(), usr.String(), evidenceContext(bundle)
}

func writePersona(sys *strings.Builder, persona PersonaOptions) {
	if persona.Audience != "" {
		fmt.Fprintf(sys, "\nWrite for this audience: %s.", persona.Audience)
	}
	if persona.Detail != "" {
		fmt.Fprintf(sys, "\nDetail level: %s.", persona.Detail)
	}
}

// evidenceContext renders the bundle as labeled context lines: chunks first,
// then figure captions, then enriched citations.
func evidenceContext(bundle evidence.Bundle) []string {
	out := make([]string, 0, len(bundle.Chunks)+len(bundle.Figures)+len(bundle.Citations))
	for _, c := range bundle.Chunks {
		page := "?"
		if c.Page != nil {
			page = fmt.Sprintf("%d", *c.Page)
		}
		tag := ""
		if c.FromWindow {
			tag = " (page context)"
		}
		out = append(out, fmt.Sprintf("[chunk %s | page %s | %s]%s\n%s", c.ChunkID, page, c.SectionTitle, tag, c.Text))
	}
	for _, f := range bundle.Figures {
		page := "?"
		if f.Page != nil {
			page = fmt.Sprintf("%d", *f.Page)
		}
		out = append(out, fmt.Sprintf("[figure %s | page %s] %s: %s", f.ID, page, f.Label, f.Caption))
	}
	for _, cit := range bundle.Citations {
		line := fmt.Sprintf("[citation %s] %s", cit.ID, cit.Title)
		if cit.ResolvedTitle != "" && cit.ResolvedTitle != cit.Title {
			line = fmt.Sprintf("[citation %s] %s", cit.ID, cit.ResolvedTitle)
		}
		if cit.ResolvedAbstract != "" {
			line += "\nAbstract: " + cit.ResolvedAbstract
		}
		out = append(out, line)
	}
	return out
}
