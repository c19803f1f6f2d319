// Package scoring ranks leads for the commercial team. Weights: income 40,
// profession 25, marital status 20, data completeness 15.
package scoring

import (
	"strings"

	"consorcio_bot/internal/core"
)

// Lead categories by score band.
const (
	CategoryPremium   = "Premium"     // score >= 80
	CategoryQualified = "Qualificado" // score >= 60
	CategoryPotential = "Potencial"   // everything else
)

// Result holds the computed score with its explanation.
type Result struct {
	Score        int      `json:"score"`
	Category     string   `json:"categoria"`
	Reasons      []string `json:"razoes"`
	Completeness float64  `json:"completude_dados"`
}

var highStabilityProfessions = []string{
	"servidor", "funcionario publico", "funcionário público", "medico", "médico",
	"advogado", "engenheiro", "professor", "militar", "policial",
}

var mediumStabilityProfessions = []string{
	"clt", "empregado", "funcionario", "funcionário", "tecnico", "técnico",
	"analista", "gerente", "supervisor",
}

// Score computes the lead score from a session snapshot.
func Score(snap *core.SessionSnapshot) Result {
	var result Result

	if snap.Renda != "" {
		renda := strings.ToLower(snap.Renda)
		switch {
		case strings.Contains(renda, "5"):
			result.add(40, "Renda alta - excelente capacidade de pagamento (40 pts)")
		case strings.Contains(renda, "4"):
			result.add(35, "Renda muito boa - boa capacidade de pagamento (35 pts)")
		case strings.Contains(renda, "3"):
			result.add(30, "Renda média-alta - capacidade adequada (30 pts)")
		case strings.Contains(renda, "2"):
			result.add(20, "Renda média - capacidade limitada (20 pts)")
		default:
			result.add(10, "Renda baixa - análise especial necessária (10 pts)")
		}
	}

	if snap.Profissao != "" {
		profissao := strings.ToLower(snap.Profissao)
		switch {
		case containsAny(profissao, highStabilityProfessions):
			result.add(25, "Profissão de alta estabilidade (25 pts)")
		case containsAny(profissao, mediumStabilityProfessions):
			result.add(20, "Profissão de média estabilidade (20 pts)")
		case strings.Contains(profissao, "autonomo") || strings.Contains(profissao, "autônomo") || strings.Contains(profissao, "empresario") || strings.Contains(profissao, "empresário"):
			result.add(15, "Profissão autônoma - análise de renda necessária (15 pts)")
		default:
			result.add(10, "Profissão a ser analisada (10 pts)")
		}
	}

	if snap.EstadoCivil != "" {
		estadoCivil := strings.ToLower(snap.EstadoCivil)
		switch {
		case strings.Contains(estadoCivil, "casado") || strings.Contains(estadoCivil, "união estável"):
			result.add(20, "Estado civil favorável - maior estabilidade (20 pts)")
		case strings.Contains(estadoCivil, "solteiro"):
			result.add(15, "Solteiro - perfil adequado (15 pts)")
		default:
			result.add(10, "Estado civil neutro (10 pts)")
		}
	}

	fields := core.LeadFieldNames()
	filled := 0
	for _, name := range fields {
		if snap.LeadField(name) != "" {
			filled++
		}
	}
	result.Completeness = float64(filled) / float64(len(fields)) * 100

	switch {
	case result.Completeness == 100:
		result.add(15, "Dados 100% completos (15 pts)")
	case result.Completeness >= 80:
		result.add(12, "Dados quase completos (12 pts)")
	case result.Completeness >= 60:
		result.add(8, "Dados parcialmente completos (8 pts)")
	default:
		result.add(5, "Dados incompletos (5 pts)")
	}

	switch {
	case result.Score >= 80:
		result.Category = CategoryPremium
	case result.Score >= 60:
		result.Category = CategoryQualified
	default:
		result.Category = CategoryPotential
	}
	return result
}

func (r *Result) add(points int, reason string) {
	r.Score += points
	r.Reasons = append(r.Reasons, reason)
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
